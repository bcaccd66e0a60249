package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements create the tables this package reads and writes. They are
// idempotent so startup can apply them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		external_id TEXT UNIQUE,
		role TEXT,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS magic_link_tokens (
		jti TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		user_id BIGINT REFERENCES users(id),
		expires_at TIMESTAMPTZ NOT NULL,
		consumed BOOLEAN NOT NULL DEFAULT FALSE,
		consumed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		creator TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		user_id BIGINT,
		username TEXT,
		resource_type TEXT,
		resource_id TEXT,
		ip_address TEXT,
		request_id TEXT,
		message TEXT,
		metadata JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_magic_link_tokens_email ON magic_link_tokens(email)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp)`,
}

// EnsureSchema applies the schema statements in order.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
