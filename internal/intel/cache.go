package intel

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long lookups are cached. Threat feeds update on
// the order of minutes; a short TTL keeps a newly flagged address from
// being served stale for long.
const DefaultCacheTTL = 5 * time.Minute

const cacheKeyPrefix = "walletguard:intel:"

// CachedFeed is a Redis read-through cache in front of another feed.
// Cache trouble degrades to a direct lookup; it never fails an evaluation
// on its own. Clean results are cached too (negative caching), since most
// addresses are clean.
type CachedFeed struct {
	inner  Feed
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedFeed wraps inner with a Redis cache.
func NewCachedFeed(inner Feed, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedFeed {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFeed{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

var _ Feed = (*CachedFeed)(nil)

func (c *CachedFeed) LookupThreats(ctx context.Context, address string, recentTxs []string, approvals []string) ([]Record, error) {
	key := cacheKeyPrefix + normalize(address)

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var records []Record
		if err := json.Unmarshal(data, &records); err == nil {
			return records, nil
		}
		// Corrupt entry: drop it and fall through to the inner feed.
		c.rdb.Del(ctx, key)
	} else if err != redis.Nil {
		c.logger.Warn("intel cache read failed, falling through", "error", err)
	}

	records, err := c.inner.LookupThreats(ctx, address, recentTxs, approvals)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(records); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("intel cache write failed", "error", err)
		}
	}
	return records, nil
}
