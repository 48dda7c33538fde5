package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sentinel-cli/internal/model"
)

// RedisSeenStore keeps seen markers as per-URL keys with a TTL equal to the
// lookback window, so expiry needs no sweeper. SET NX keeps the first-seen
// timestamp under concurrent marking.
type RedisSeenStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisSeenStore(client redis.UniversalClient, ttl time.Duration) *RedisSeenStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSeenStore{client: client, ttl: ttl}
}

// NewRedisClient dials Redis from a URL like redis://host:6379/0.
func NewRedisClient(url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "dedup: parse redis url")
	}
	return redis.NewClient(opts), nil
}

func seenKey(orgID, url string) string {
	return "sentinel:seen:" + orgID + ":" + url
}

// HasSeen checks key existence in one pipeline round trip. The lookback
// argument is ignored; key TTLs enforce the window.
func (r *RedisSeenStore) HasSeen(ctx context.Context, orgID string, urls []string, _ time.Duration) (map[string]bool, error) {
	seen := make(map[string]bool, len(urls))
	if len(urls) == 0 {
		return seen, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(urls))
	for i, u := range urls {
		cmds[i] = pipe.Exists(ctx, seenKey(orgID, u))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, eris.Wrap(err, "dedup: redis exists pipeline")
	}

	for i, cmd := range cmds {
		seen[urls[i]] = cmd.Val() > 0
	}
	return seen, nil
}

func (r *RedisSeenStore) MarkSeen(ctx context.Context, orgID string, markers []model.SeenMarker) error {
	if len(markers) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, m := range markers {
		at := m.FirstSeenAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		pipe.SetNX(ctx, seenKey(orgID, m.URL), at.UTC().Format(time.RFC3339), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrap(err, "dedup: redis setnx pipeline")
	}
	return nil
}
