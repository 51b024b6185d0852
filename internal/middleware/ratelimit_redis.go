package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements RateLimitStore backed by Redis, so the limit
// is shared across API instances. It uses a fixed window counter keyed per
// window.
//
// The store fails open: if Redis is unreachable the request is allowed and the
// error is counted, so a Redis outage degrades to unlimited traffic rather
// than a full API outage.
type RedisRateLimitStore struct {
	client  *redis.Client
	metrics *Metrics
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// SetMetrics attaches middleware metrics for Redis error counting. Optional.
func (s *RedisRateLimitStore) SetMetrics(m *Metrics) {
	s.metrics = m
}

// Allow checks if a request from the given key should be allowed.
// Implements the RateLimitStore interface.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	windowMS := config.WindowDuration.Milliseconds()
	window := time.Now().UnixMilli() / windowMS
	redisKey := "ratelimit:" + key + ":" + strconv.FormatInt(window, 10)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		if s.metrics != nil {
			s.metrics.IncRateLimitRedisErrors()
		}
		slog.WarnContext(ctx, "rate limit check failed, allowing request", "error", err)
		return true, 0
	}

	if incr.Val() <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	windowEndMS := (window + 1) * windowMS
	retryAfter := int((windowEndMS - time.Now().UnixMilli()) / 1000)
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}
