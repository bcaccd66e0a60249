package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lukewarren/shelfd/pkg/observability"
)

// DistributedLimiter is a fixed-window rate limiter backed by Redis, so
// windows are shared across instances. On Redis errors it fails open;
// losing rate limiting briefly beats refusing every request.
type DistributedLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
	logger *observability.Logger
}

// NewDistributedLimiter creates a Redis-backed limiter.
func NewDistributedLimiter(redisClient *redis.Client, limit int, window time.Duration, logger *observability.Logger) *DistributedLimiter {
	return &DistributedLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		prefix: "shelfd:ratelimit",
		logger: logger,
	}
}

// Allow reports whether another request for (scope, key) fits in the
// shared window.
func (l *DistributedLimiter) Allow(ctx context.Context, scope, key string) bool {
	redisKey := fmt.Sprintf("%s:%s:%s", l.prefix, scope, key)

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter redis error, failing open", "error", err)
		return true
	}

	if incr.Val() > int64(l.limit) {
		observability.RateLimitDeniedTotal.WithLabelValues(scope).Inc()
		return false
	}
	return true
}

// Reset clears the window for a key. Intended for tests and operator use.
func (l *DistributedLimiter) Reset(ctx context.Context, scope, key string) error {
	return l.redis.Del(ctx, fmt.Sprintf("%s:%s:%s", l.prefix, scope, key)).Err()
}
