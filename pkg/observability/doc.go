// Package observability provides structured logging, Prometheus metrics,
// health checks, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Create a logger and attach fields:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.Info("server started", "port", 8080)
//	logger.WithField("request_id", reqID).Warn("slow request")
//
// # Prometheus Metrics
//
// Metrics are package-level collectors on the default registry:
//
//	observability.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/items", "200").Inc()
//	observability.MagicLinksIssuedTotal.Inc()
//
// Expose them with observability.MetricsHandler on /metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	mux.HandleFunc("/healthz", checker.Liveness)
//	mux.HandleFunc("/readyz", checker.Readiness)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, otelCfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/middleware: request logging and metrics middleware
package observability
