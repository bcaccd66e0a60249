package observability

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level collectors on the default registry. Auth components
// increment these directly; the middleware layer feeds the HTTP ones.
var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Authentication metrics
	AuthRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfd_auth_requests_total",
			Help: "Authenticated request resolutions by credential source and outcome",
		},
		[]string{"source", "outcome"},
	)
	ServiceBypassTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfd_service_bypass_total",
			Help: "Service-credential bypass grants",
		},
	)
	KeySetFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfd_keyset_fallback_total",
			Help: "Times the fallback key-set endpoint was selected",
		},
	)
	SessionsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfd_sessions_issued_total",
			Help: "Session tokens issued",
		},
	)

	// Magic-link metrics
	MagicLinksIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shelfd_magic_links_issued_total",
			Help: "Magic-link tokens issued",
		},
	)
	MagicLinkVerifiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfd_magic_link_verifies_total",
			Help: "Magic-link verification attempts by result",
		},
		[]string{"result"},
	)

	// Rate limiting metrics
	RateLimitDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfd_rate_limit_denied_total",
			Help: "Requests denied by the rate limiter, by scope",
		},
		[]string{"scope"},
	)

	// Database metrics
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfd_db_connections_active",
			Help: "Active database connections",
		},
	)
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfd_db_connections_idle",
			Help: "Idle database connections",
		},
	)
)

// MetricsHandler serves the default registry for scraping.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records the standard per-request HTTP metrics.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, httpStatusLabel(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// CollectDBStats copies connection-pool stats into the database gauges.
// Call periodically from a background goroutine.
func CollectDBStats(db *sql.DB) {
	if db == nil {
		return
	}
	stats := db.Stats()
	DBConnectionsActive.Set(float64(stats.InUse))
	DBConnectionsIdle.Set(float64(stats.Idle))
}

func httpStatusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
