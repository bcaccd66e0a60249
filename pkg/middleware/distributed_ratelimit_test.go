package middleware

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukewarren/shelfd/pkg/observability"
)

func newDistributedLimiter(t *testing.T, limit int, window time.Duration) (*DistributedLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewDistributedLimiter(client, limit, window, logger), mr
}

func TestDistributedLimiterWindow(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newDistributedLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, ScopePrincipal, "r@example.com"), "request %d", i+1)
	}
	assert.False(t, limiter.Allow(ctx, ScopePrincipal, "r@example.com"), "4th request")

	// Other keys and scopes keep their own windows.
	assert.True(t, limiter.Allow(ctx, ScopePrincipal, "other@example.com"))
	assert.True(t, limiter.Allow(ctx, ScopeSource, "r@example.com"))
}

func TestDistributedLimiterWindowExpiry(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newDistributedLimiter(t, 1, time.Minute)

	require.True(t, limiter.Allow(ctx, ScopeSource, "192.0.2.1"))
	require.False(t, limiter.Allow(ctx, ScopeSource, "192.0.2.1"))

	mr.FastForward(time.Minute + time.Second)
	assert.True(t, limiter.Allow(ctx, ScopeSource, "192.0.2.1"), "new window after expiry")
}

func TestDistributedLimiterFailsOpen(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newDistributedLimiter(t, 1, time.Minute)
	mr.Close()

	assert.True(t, limiter.Allow(ctx, ScopeSource, "192.0.2.1"), "redis down")
	assert.True(t, limiter.Allow(ctx, ScopeSource, "192.0.2.1"), "redis down, second request")
}

func TestDistributedLimiterReset(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newDistributedLimiter(t, 1, time.Minute)

	require.True(t, limiter.Allow(ctx, ScopePrincipal, "r@example.com"))
	require.False(t, limiter.Allow(ctx, ScopePrincipal, "r@example.com"))

	require.NoError(t, limiter.Reset(ctx, ScopePrincipal, "r@example.com"))
	assert.True(t, limiter.Allow(ctx, ScopePrincipal, "r@example.com"))
}
