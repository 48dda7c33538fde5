// Package dedup filters signals that were already processed for an
// organization within the rolling lookback window.
package dedup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/sentinel-cli/internal/model"
)

// SeenStore is the slice of the storage layer dedup needs. Implemented by
// the SQL stores and by RedisSeenStore.
type SeenStore interface {
	HasSeen(ctx context.Context, orgID string, urls []string, lookback time.Duration) (map[string]bool, error)
	MarkSeen(ctx context.Context, orgID string, markers []model.SeenMarker) error
}

const defaultBatchSize = 100

// Cache answers "is this signal new" against a SeenStore, batching lookups.
type Cache struct {
	store     SeenStore
	lookback  time.Duration
	batchSize int

	now func() time.Time
}

func New(store SeenStore, lookback time.Duration, batchSize int) *Cache {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	if batchSize <= 0 || batchSize > defaultBatchSize {
		batchSize = defaultBatchSize
	}
	return &Cache{
		store:     store,
		lookback:  lookback,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// WithNow overrides the clock for tests.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Filter splits signals into fresh ones and a skipped count. A store
// failure is loud but not fatal: every signal is treated as new so a
// storage outage degrades to duplicate analysis instead of silence.
func (c *Cache) Filter(ctx context.Context, orgID string, signals []model.RawSignal) ([]model.RawSignal, int, error) {
	if len(signals) == 0 {
		return nil, 0, nil
	}

	seen := make(map[string]bool, len(signals))
	for start := 0; start < len(signals); start += c.batchSize {
		end := start + c.batchSize
		if end > len(signals) {
			end = len(signals)
		}

		urls := make([]string, 0, end-start)
		for _, s := range signals[start:end] {
			urls = append(urls, s.URL)
		}

		chunk, err := c.store.HasSeen(ctx, orgID, urls, c.lookback)
		if err != nil {
			zap.L().Error("dedup: seen lookup failed, treating batch as new",
				zap.String("org", orgID),
				zap.Int("signals", len(signals)),
				zap.Error(err))
			return signals, 0, err
		}
		for url, s := range chunk {
			seen[url] = s
		}
	}

	fresh := make([]model.RawSignal, 0, len(signals))
	skipped := 0
	for _, s := range signals {
		if seen[s.URL] {
			skipped++
			continue
		}
		fresh = append(fresh, s)
	}

	zap.L().Debug("dedup: filtered batch",
		zap.String("org", orgID),
		zap.Int("fresh", len(fresh)),
		zap.Int("skipped", skipped))
	return fresh, skipped, nil
}

// MarkSeen records the given signals as processed, in batches. Called only
// after the dispatch decision so an aborted run can retry its batch.
func (c *Cache) MarkSeen(ctx context.Context, orgID string, signals []model.RawSignal) error {
	now := c.now().UTC()
	markers := make([]model.SeenMarker, 0, len(signals))
	for _, s := range signals {
		markers = append(markers, model.SeenMarker{
			OrgID:       orgID,
			URL:         s.URL,
			FirstSeenAt: now,
		})
	}

	for start := 0; start < len(markers); start += c.batchSize {
		end := start + c.batchSize
		if end > len(markers) {
			end = len(markers)
		}
		if err := c.store.MarkSeen(ctx, orgID, markers[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Lookback exposes the configured window for run summaries.
func (c *Cache) Lookback() time.Duration {
	return c.lookback
}
