// Command shelfd serves the content-catalog API: bearer and session
// authentication, magic-link issuance, the service-credential bypass, and
// the catalog endpoints behind them.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/lukewarren/shelfd/pkg/api"
	"github.com/lukewarren/shelfd/pkg/audit"
	"github.com/lukewarren/shelfd/pkg/auth"
	"github.com/lukewarren/shelfd/pkg/config"
	"github.com/lukewarren/shelfd/pkg/middleware"
	"github.com/lukewarren/shelfd/pkg/observability"
	"github.com/lukewarren/shelfd/pkg/storage/postgres"
)

const dbStatsInterval = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("OpenTelemetry initialization failed")
		os.Exit(1)
	}

	// Magic-link tokens need a persistent store, so the database is not
	// optional.
	if cfg.Storage.PostgresURL == "" {
		logger.Error("SHELFD_POSTGRES_URL is required")
		os.Exit(1)
	}
	db, err := postgres.Connect(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("database connection failed")
		os.Exit(1)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		logger.WithError(err).Error("schema setup failed")
		os.Exit(1)
	}
	logger.Info("connected to postgres")

	// Redis backs the distributed rate limiter. The service runs without
	// it; limiting then falls back to per-process windows.
	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, using in-process rate limiting")
			redisClient = nil
		} else {
			logger.Info("connected to redis")
		}
	}

	auditLogger, err := buildAuditLogger(cfg, db)
	if err != nil {
		logger.WithError(err).Error("audit logger setup failed")
		os.Exit(1)
	}

	users := postgres.NewUserStore(db)
	tokens := postgres.NewTokenStore(db)

	verifier, err := auth.NewBearerVerifier(auth.VerifierConfig{
		KeySetURL:      cfg.Auth.KeySetURL,
		PublishableKey: cfg.Auth.PublishableKey,
		Issuer:         cfg.Auth.Issuer,
		Audience:       cfg.Auth.Audience,
	}, users, logger)
	if err != nil {
		logger.WithError(err).Error("bearer verifier setup failed")
		os.Exit(1)
	}

	sessions := auth.NewSessionCodec(cfg.Auth.SessionSecret, cfg.Auth.SessionMaxAge, cfg.Server.Production, logger)

	magicLinks, err := auth.NewMagicLinkService(cfg.Auth.MagicLinkSecret, tokens, logger)
	if err != nil {
		logger.WithError(err).Error("magic-link service setup failed")
		os.Exit(1)
	}

	gate := auth.NewServiceGate(auth.ServiceGateConfig{
		Secret:      cfg.Auth.ServiceSecret,
		HeaderName:  cfg.Auth.InternalHeaderName,
		HeaderValue: cfg.Auth.InternalHeaderValue,
		AllowedIPs:  cfg.Auth.ServiceAllowedIPs,
	}, auditLogger, logger)

	var passwords *auth.PasswordAuthenticator
	if cfg.Auth.IdentityProviderTokenURL != "" {
		passwords, err = auth.NewPasswordAuthenticator(auth.IdentityProviderConfig{
			TokenURL:     cfg.Auth.IdentityProviderTokenURL,
			ClientID:     cfg.Auth.IdentityProviderClientID,
			ClientSecret: cfg.Auth.IdentityProviderClientSecret,
		}, users, logger)
		if err != nil {
			logger.WithError(err).Error("password authenticator setup failed")
			os.Exit(1)
		}
	}

	emailLimiter, sourceLimiter := buildLimiters(cfg, redisClient, logger)

	authHandlers := api.NewAuthHandlers(api.AuthHandlersConfig{
		MagicLinks:    magicLinks,
		Sessions:      sessions,
		Passwords:     passwords,
		Users:         users,
		Mailer:        api.NewLogMailer(logger),
		EmailLimiter:  emailLimiter,
		SourceLimiter: sourceLimiter,
		Audit:         auditLogger,
		Logger:        logger,
	})

	server := api.NewServer(api.ServerConfig{
		AuthHandlers:    authHandlers,
		CatalogHandlers: api.NewCatalogHandlers(postgres.NewItemStore(db), logger),
		Authenticator:   middleware.NewAuthenticator(verifier, sessions, gate, users, logger, false),
		Gate:            gate,
		Logger:          logger,
		AllowedOrigins:  cfg.Server.CORSOrigins,
	})

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter(cfg, db, redisClient),
	}

	statsDone := make(chan struct{})
	go collectDBStats(db, statsDone)

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		close(statsDone)
		return db.Close()
	})
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	sm.RegisterShutdownFunc(func(context.Context) error {
		return auditLogger.Close()
	})
	if providers != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	var g errgroup.Group
	g.Go(func() error {
		logger.Info("api server listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("health server listening", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(sm.WaitForShutdown)

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited")
		os.Exit(1)
	}
}

// buildAuditLogger assembles the configured audit sinks. With none
// configured, events are dropped.
func buildAuditLogger(cfg *config.Config, db *sql.DB) (audit.Logger, error) {
	var sinks []audit.Logger
	if cfg.Audit.FilePath != "" {
		fl, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.Audit.FilePath,
			MaxSize:  cfg.Audit.FileMaxSize,
			MaxFiles: cfg.Audit.MaxFiles,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fl)
	}
	if cfg.Audit.ToDatabase {
		dl, err := audit.NewDBLogger(db)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, dl)
	}
	switch len(sinks) {
	case 0:
		return audit.NopLogger{}, nil
	case 1:
		return sinks[0], nil
	default:
		return audit.NewMultiLogger(sinks...), nil
	}
}

// buildLimiters picks the limiter backend. With redis available the
// windows are shared across instances; otherwise they are per process.
func buildLimiters(cfg *config.Config, redisClient *redis.Client, logger *observability.Logger) (middleware.RateLimiter, middleware.RateLimiter) {
	if redisClient != nil {
		return middleware.NewDistributedLimiter(redisClient, cfg.Auth.MagicLinkEmailLimit, cfg.Auth.MagicLinkEmailWindow, logger),
			middleware.NewDistributedLimiter(redisClient, cfg.Auth.SourceIPLimit, cfg.Auth.SourceIPWindow, logger)
	}
	return middleware.NewLimiter(cfg.Auth.MagicLinkEmailLimit, cfg.Auth.MagicLinkEmailWindow),
		middleware.NewLimiter(cfg.Auth.SourceIPLimit, cfg.Auth.SourceIPWindow)
}

func healthRouter(cfg *config.Config, db *sql.DB, redisClient *redis.Client) *mux.Router {
	checker := observability.NewHealthChecker(db, redisClient)
	router := mux.NewRouter()
	router.HandleFunc("/healthz", checker.Liveness).Methods("GET")
	router.HandleFunc("/readyz", checker.Readiness).Methods("GET")
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	}
	return router
}

func collectDBStats(db *sql.DB, done <-chan struct{}) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			observability.CollectDBStats(db)
		case <-done:
			return
		}
	}
}
