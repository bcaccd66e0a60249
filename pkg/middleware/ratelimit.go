package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/lukewarren/shelfd/pkg/httputil"
	"github.com/lukewarren/shelfd/pkg/observability"
)

// Rate limit scopes. A credential-issuance request must pass both the
// source-address check and the principal check.
const (
	ScopeSource    = "source"
	ScopePrincipal = "principal"
)

// RateLimiter is satisfied by both the in-process and the Redis-backed
// limiter, so handlers can be wired with either.
type RateLimiter interface {
	Allow(ctx context.Context, scope, key string) bool
}

// Limiter is a fixed-window in-process rate limiter. Windows are keyed by
// (scope, key); state is process-local and resets on restart.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

// NewLimiter creates a limiter allowing limit requests per window for each
// (scope, key) pair.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether another request for (scope, key) fits in the
// current window. The first request of a window resets the counter; a
// counter at the limit denies without incrementing further. The context
// is unused; windows are process-local.
func (l *Limiter) Allow(_ context.Context, scope, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	mapKey := scope + ":" + key
	b, ok := l.buckets[mapKey]
	if !ok || now.After(b.resetAt) {
		l.buckets[mapKey] = &bucket{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if b.count >= l.limit {
		observability.RateLimitDeniedTotal.WithLabelValues(scope).Inc()
		return false
	}
	b.count++
	return true
}

// Remaining returns how many requests are left in the current window.
func (l *Limiter) Remaining(scope, key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[scope+":"+key]
	if !ok || l.now().After(b.resetAt) {
		return l.limit
	}
	remaining := l.limit - b.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Handler wraps next with a per-source-address check. Used on endpoints
// where no principal is known yet.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.Context(), ScopeSource, httputil.ClientIP(r)) {
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
