package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis, so the
// limit holds across multiple API instances. It uses a fixed window
// counter: INCR on a per-key counter whose TTL is the window duration.
//
// Redis failures fail open: a broken rate limiter must not take the API
// down with it. Fail-open events are counted via the optional metrics.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
}

// NewRedisRateLimitStore creates a new Redis-backed rate limit store.
// metrics may be nil.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// WithMetrics attaches middleware metrics for fail-open accounting.
func (s *RedisRateLimitStore) WithMetrics(metrics *Metrics) *RedisRateLimitStore {
	s.metrics = metrics
	return s
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := "ratelimit:" + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	// NX keeps the window anchored at the first request in it.
	pipe.ExpireNX(ctx, redisKey, config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "rate limit store unavailable, failing open", "error", err)
		if s.metrics != nil {
			s.metrics.IncRateLimitRedisErrors()
		}
		return true, 0
	}

	count := incr.Val()
	if count <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		return false, int(config.WindowDuration / time.Second)
	}
	retryAfter := int(ttl.Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}
