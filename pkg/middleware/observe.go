package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/lukewarren/shelfd/pkg/contextkeys"
	"github.com/lukewarren/shelfd/pkg/observability"
)

// RequestID assigns each request a UUID (or honors an incoming
// X-Request-ID) and stores it in the context and response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Observe logs each request and feeds the HTTP metrics. A request-scoped
// logger carrying the request id is placed in the context for handlers.
func Observe(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			requestLogger := logger
			if requestID := contextkeys.GetRequestID(r.Context()); requestID != "" {
				requestLogger = logger.WithField("request_id", requestID)
			}
			ctx := observability.WithLogger(r.Context(), requestLogger)

			next.ServeHTTP(sw, r.WithContext(ctx))

			duration := time.Since(start)
			observability.ObserveRequest(r.Method, routePattern(r), sw.status, duration)
			requestLogger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", duration.Milliseconds(),
			)
		})
	}
}

// Recover converts handler panics into 500 responses instead of killing
// the process.
func Recover(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in handler", "panic", rec, "path", r.URL.Path)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// routePattern prefers the mux route template over the raw path to keep
// metric label cardinality bounded.
func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if pattern, err := route.GetPathTemplate(); err == nil {
			return pattern
		}
	}
	return r.URL.Path
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
