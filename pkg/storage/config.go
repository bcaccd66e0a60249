package storage

import "time"

// Config for the storage backends.
type Config struct {
	// PostgreSQL config
	PostgresURL         string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration
	PostgresMaxLifetime time.Duration
	PostgresMaxIdleTime time.Duration

	// Redis config. Empty RedisURL means Redis is disabled.
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns:    20,
		PostgresMinConns:    2,
		PostgresTimeout:     10 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		PostgresMaxIdleTime: 5 * time.Minute,
		RedisDB:             0,
		RedisPoolSize:       10,
	}
}
