package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaultline/suisync/internal/domain"
)

// defaultDigestTTL keeps seen digests cached long enough to cover the safety
// net cadence; after that the database unique index is the only gate, which
// is correct just slower.
const defaultDigestTTL = 24 * time.Hour

// DigestCache implements domain.DigestCache using plain Redis keys with a
// TTL. It is a fast-path in front of the trade store's exists check; a cache
// miss or a Redis failure always falls back to the store.
type DigestCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDigestCache creates a DigestCache. A non-positive ttl selects the
// default.
func NewDigestCache(c *Client, ttl time.Duration) *DigestCache {
	if ttl <= 0 {
		ttl = defaultDigestTTL
	}
	return &DigestCache{rdb: c.Underlying(), ttl: ttl}
}

func digestKey(digest string) string {
	return "synced:" + digest
}

// Seen reports whether the digest was marked within the TTL window.
func (dc *DigestCache) Seen(ctx context.Context, digest string) (bool, error) {
	err := dc.rdb.Get(ctx, digestKey(digest)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis: digest seen %s: %w", digest, err)
	}
	return true, nil
}

// MarkSeen records the digest for the cache TTL.
func (dc *DigestCache) MarkSeen(ctx context.Context, digest string) error {
	if err := dc.rdb.Set(ctx, digestKey(digest), 1, dc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: mark digest %s: %w", digest, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.DigestCache = (*DigestCache)(nil)
