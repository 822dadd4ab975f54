package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voip-billing/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisCache caches configured rate lists per plan with a short TTL.
//
// Correctness does not depend on the cache: rate reads tolerate staleness of
// a few seconds (costs are never recomputed retroactively), and every cache
// failure silently falls back to the repository.
//
// Invalidation bumps a generation counter rather than scanning keys, so an
// import immediately shifts all readers to fresh keys while old entries
// expire via TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

const rateCacheGenKey = "rates:gen"

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) key(ctx context.Context, planID string) (string, error) {
	gen, err := c.rdb.Get(ctx, rateCacheGenKey).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("rates:configured:%d:%s", gen, planID), nil
}

func (c *RedisCache) GetConfiguredRates(ctx context.Context, planID string) ([]ConfiguredRate, bool) {
	k, err := c.key(ctx, planID)
	if err != nil {
		logger.From(ctx).Debug("rate cache key failed", "err", err)
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, k).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.From(ctx).Debug("rate cache get failed", "err", err)
		}
		return nil, false
	}
	var out []ConfiguredRate
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false
	}
	return out, true
}

func (c *RedisCache) SetConfiguredRates(ctx context.Context, planID string, list []ConfiguredRate) {
	k, err := c.key(ctx, planID)
	if err != nil {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, k, raw, c.ttl).Err(); err != nil {
		logger.From(ctx).Debug("rate cache set failed", "err", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Incr(ctx, rateCacheGenKey).Err(); err != nil {
		logger.From(ctx).Warn("rate cache invalidation failed", "err", err)
	}
}
