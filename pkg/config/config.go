package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lukewarren/shelfd/pkg/auth"
	"github.com/lukewarren/shelfd/pkg/observability"
	"github.com/lukewarren/shelfd/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Authentication configuration
	Auth AuthConfig

	// Storage configuration
	Storage storage.Config

	// Audit configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	// CORSOrigins lists the origins allowed to call the API from a
	// browser. Empty disables the CORS headers entirely.
	CORSOrigins []string

	// Production toggles Secure cookies and disables dev fallbacks.
	Production bool
}

// AuthConfig holds the authentication subsystem's configuration
type AuthConfig struct {
	// Bearer verification
	KeySetURL      string
	PublishableKey string
	Issuer         string
	Audience       string

	// Sessions
	SessionSecret string
	SessionMaxAge time.Duration

	// Service credential bypass
	ServiceSecret       string
	InternalHeaderName  string
	InternalHeaderValue string
	ServiceAllowedIPs   []string

	// Magic links
	MagicLinkSecret      string
	MagicLinkEmailLimit  int
	MagicLinkEmailWindow time.Duration

	// Per-source rate limit on credential issuance endpoints
	SourceIPLimit  int
	SourceIPWindow time.Duration

	// Upstream identity provider (password logins)
	IdentityProviderTokenURL     string
	IdentityProviderClientID     string
	IdentityProviderClientSecret string
}

// AuditConfig holds audit sink configuration
type AuditConfig struct {
	// FilePath enables the JSON-lines file sink when non-empty.
	FilePath    string
	FileMaxSize int64
	MaxFiles    int

	// ToDatabase enables the postgres sink.
	ToDatabase bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Auth:          loadAuthConfig(),
		Storage:       loadStorageConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SHELFD_HOST", "0.0.0.0"),
		Port:            getEnv("SHELFD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SHELFD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SHELFD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SHELFD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHELFD_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SHELFD_HEALTH_PORT", "9090"),
		CORSOrigins:     splitCSV(getEnv("SHELFD_CORS_ORIGINS", "")),
		Production:      getEnvBool("SHELFD_PRODUCTION", false),
	}
}

// loadAuthConfig loads the authentication configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		KeySetURL:      getEnv("SHELFD_KEYSET_URL", ""),
		PublishableKey: getEnv("SHELFD_PUBLISHABLE_KEY", ""),
		Issuer:         getEnv("SHELFD_ISSUER", ""),
		Audience:       getEnv("SHELFD_AUDIENCE", "shelfd"),

		SessionSecret: getEnv("SHELFD_SESSION_SECRET", ""),
		SessionMaxAge: getEnvDuration("SHELFD_SESSION_MAX_AGE", auth.DefaultSessionMaxAge),

		ServiceSecret:       getEnv("SHELFD_SERVICE_SECRET", ""),
		InternalHeaderName:  getEnv("SHELFD_INTERNAL_HEADER_NAME", ""),
		InternalHeaderValue: getEnv("SHELFD_INTERNAL_HEADER_VALUE", ""),
		ServiceAllowedIPs:   splitCSV(getEnv("SHELFD_SERVICE_ALLOWED_IPS", "")),

		MagicLinkSecret:      getEnv("SHELFD_MAGIC_LINK_SECRET", ""),
		MagicLinkEmailLimit:  getEnvInt("SHELFD_MAGIC_LINK_EMAIL_LIMIT", 5),
		MagicLinkEmailWindow: getEnvDuration("SHELFD_MAGIC_LINK_EMAIL_WINDOW", time.Hour),

		SourceIPLimit:  getEnvInt("SHELFD_SOURCE_IP_LIMIT", 30),
		SourceIPWindow: getEnvDuration("SHELFD_SOURCE_IP_WINDOW", time.Hour),

		IdentityProviderTokenURL:     getEnv("SHELFD_IDP_TOKEN_URL", ""),
		IdentityProviderClientID:     getEnv("SHELFD_IDP_CLIENT_ID", ""),
		IdentityProviderClientSecret: getEnv("SHELFD_IDP_CLIENT_SECRET", ""),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.PostgresURL = getEnv("SHELFD_POSTGRES_URL", "")
	if maxConns := getEnvInt("SHELFD_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("SHELFD_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("SHELFD_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	cfg.RedisURL = getEnv("SHELFD_REDIS_URL", "")
	cfg.RedisPassword = getEnv("SHELFD_REDIS_PASSWORD", "")
	if redisDB := getEnvInt("SHELFD_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if poolSize := getEnvInt("SHELFD_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	return cfg
}

// loadAuditConfig loads audit sink configuration from environment
func loadAuditConfig() AuditConfig {
	return AuditConfig{
		FilePath:    getEnv("SHELFD_AUDIT_FILE", ""),
		FileMaxSize: getEnvInt64("SHELFD_AUDIT_FILE_MAX_SIZE", 50*1024*1024),
		MaxFiles:    getEnvInt("SHELFD_AUDIT_MAX_FILES", 10),
		ToDatabase:  getEnvBool("SHELFD_AUDIT_TO_DATABASE", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("SHELFD_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("SHELFD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("SHELFD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("SHELFD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("SHELFD_OTEL_SERVICE_NAME", "shelfd"),
		OTelServiceVersion: getEnv("SHELFD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("SHELFD_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Bearer verification needs a key source and issuer/audience checks.
	if c.Auth.KeySetURL == "" && c.Auth.PublishableKey == "" {
		return fmt.Errorf("a key-set URL or publishable key is required")
	}
	if c.Auth.Issuer == "" {
		return fmt.Errorf("token issuer is required")
	}
	if c.Auth.Audience == "" {
		return fmt.Errorf("token audience is required")
	}

	// Sessions may run unsigned only outside production.
	if c.Server.Production && c.Auth.SessionSecret == "" {
		return fmt.Errorf("session secret is required in production")
	}
	if c.Server.Production && c.Auth.MagicLinkSecret == "" {
		return fmt.Errorf("magic-link secret is required in production")
	}

	// A service secret without hardening can never authorize, which is
	// almost certainly an operator mistake.
	if c.Auth.ServiceSecret != "" {
		if c.Auth.InternalHeaderName == "" || c.Auth.InternalHeaderValue == "" {
			return fmt.Errorf("service secret is set but the internal header is not configured")
		}
		if len(c.Auth.ServiceAllowedIPs) == 0 {
			return fmt.Errorf("service secret is set but the IP allow-list is empty")
		}
	}

	if c.Auth.MagicLinkEmailLimit <= 0 {
		return fmt.Errorf("magic-link per-email limit must be positive")
	}
	if c.Auth.SourceIPLimit <= 0 {
		return fmt.Errorf("source IP limit must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// splitCSV parses a comma-separated list, trimming whitespace and dropping
// empty entries
func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
