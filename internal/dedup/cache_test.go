package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sentinel-cli/internal/model"
)

// memStore is an in-memory SeenStore recording call shapes.
type memStore struct {
	seen       map[string]time.Time
	hasCalls   [][]string
	markCalls  [][]model.SeenMarker
	failLookup bool
	failMark   bool
}

func newMemStore() *memStore {
	return &memStore{seen: make(map[string]time.Time)}
}

func (m *memStore) HasSeen(_ context.Context, orgID string, urls []string, lookback time.Duration) (map[string]bool, error) {
	if m.failLookup {
		return nil, eris.New("store down")
	}
	m.hasCalls = append(m.hasCalls, urls)

	cutoff := time.Now().Add(-lookback)
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		at, ok := m.seen[orgID+"|"+u]
		out[u] = ok && at.After(cutoff)
	}
	return out, nil
}

func (m *memStore) MarkSeen(_ context.Context, orgID string, markers []model.SeenMarker) error {
	if m.failMark {
		return eris.New("store down")
	}
	m.markCalls = append(m.markCalls, markers)
	for _, mk := range markers {
		key := orgID + "|" + mk.URL
		if _, exists := m.seen[key]; !exists {
			m.seen[key] = mk.FirstSeenAt
		}
	}
	return nil
}

func signalsN(n int) []model.RawSignal {
	out := make([]model.RawSignal, n)
	for i := range out {
		out[i] = model.RawSignal{
			Title: "story",
			URL:   fmt.Sprintf("https://news.example/%d", i),
		}
	}
	return out
}

func TestFilterSplitsFreshAndSeen(t *testing.T) {
	store := newMemStore()
	c := New(store, 24*time.Hour, 100)
	ctx := context.Background()

	signals := signalsN(3)
	require.NoError(t, c.MarkSeen(ctx, "org-1", signals[:1]))

	fresh, skipped, err := c.Filter(ctx, "org-1", signals)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
	assert.Equal(t, 1, skipped)
}

func TestFilterChunksLookups(t *testing.T) {
	store := newMemStore()
	c := New(store, 24*time.Hour, 100)

	fresh, skipped, err := c.Filter(context.Background(), "org-1", signalsN(250))
	require.NoError(t, err)
	assert.Len(t, fresh, 250)
	assert.Zero(t, skipped)

	require.Len(t, store.hasCalls, 3)
	assert.Len(t, store.hasCalls[0], 100)
	assert.Len(t, store.hasCalls[1], 100)
	assert.Len(t, store.hasCalls[2], 50)
}

func TestFilterBatchSizeCappedAt100(t *testing.T) {
	store := newMemStore()
	c := New(store, 24*time.Hour, 5000)

	_, _, err := c.Filter(context.Background(), "org-1", signalsN(150))
	require.NoError(t, err)
	require.Len(t, store.hasCalls, 2)
	assert.Len(t, store.hasCalls[0], 100)
}

func TestFilterStoreFailureTreatsAllAsNew(t *testing.T) {
	store := newMemStore()
	store.failLookup = true
	c := New(store, 24*time.Hour, 100)

	signals := signalsN(4)
	fresh, skipped, err := c.Filter(context.Background(), "org-1", signals)
	assert.Error(t, err)
	assert.Equal(t, signals, fresh, "availability beats exactness when the store is down")
	assert.Zero(t, skipped)
}

func TestMarkSeenChunksAndStampsNow(t *testing.T) {
	store := newMemStore()
	fixed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	c := New(store, 24*time.Hour, 100).WithNow(func() time.Time { return fixed })

	require.NoError(t, c.MarkSeen(context.Background(), "org-1", signalsN(120)))
	require.Len(t, store.markCalls, 2)
	assert.Equal(t, fixed, store.markCalls[0][0].FirstSeenAt)
	assert.Equal(t, "org-1", store.markCalls[0][0].OrgID)
}

func TestMarkSeenPropagatesError(t *testing.T) {
	store := newMemStore()
	store.failMark = true
	c := New(store, 24*time.Hour, 100)

	err := c.MarkSeen(context.Background(), "org-1", signalsN(1))
	assert.Error(t, err)
}

func TestMarkThenFilterRoundTrip(t *testing.T) {
	store := newMemStore()
	c := New(store, 24*time.Hour, 100)
	ctx := context.Background()

	signals := signalsN(10)
	require.NoError(t, c.MarkSeen(ctx, "org-1", signals))

	fresh, skipped, err := c.Filter(ctx, "org-1", signals)
	require.NoError(t, err)
	assert.Empty(t, fresh)
	assert.Equal(t, 10, skipped)

	// Same URLs for a different org are still fresh.
	fresh, skipped, err = c.Filter(ctx, "org-2", signals)
	require.NoError(t, err)
	assert.Len(t, fresh, 10)
	assert.Zero(t, skipped)
}
