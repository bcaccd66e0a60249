package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lukewarren/shelfd/pkg/auth"
)

// TokenStore persists magic-link tokens. Consumed rows are retained for
// replay detection and audit; nothing here deletes them.
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore creates a store over an open connection pool.
func NewTokenStore(db *sql.DB) *TokenStore {
	return &TokenStore{db: db}
}

// Create inserts a fresh, unconsumed token record.
func (s *TokenStore) Create(ctx context.Context, token *auth.MagicLinkToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO magic_link_tokens (jti, email, user_id, expires_at, consumed, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, $5)`,
		token.JTI, token.Email, token.UserID, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert magic-link token: %w", err)
	}
	return nil
}

// FindByJTI returns the token record, or (nil, nil) when the jti is unknown.
func (s *TokenStore) FindByJTI(ctx context.Context, jti string) (*auth.MagicLinkToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT jti, email, user_id, expires_at, consumed, consumed_at, created_at
		 FROM magic_link_tokens WHERE jti = $1`, jti)

	var (
		token      auth.MagicLinkToken
		userID     sql.NullInt64
		consumedAt sql.NullTime
	)
	err := row.Scan(&token.JTI, &token.Email, &userID, &token.ExpiresAt,
		&token.Consumed, &consumedAt, &token.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan magic-link token: %w", err)
	}
	if userID.Valid {
		token.UserID = &userID.Int64
	}
	if consumedAt.Valid {
		token.ConsumedAt = &consumedAt.Time
	}
	return &token, nil
}

// Consume marks the token consumed only if it is not already. The conditional
// update makes consumption atomic: under concurrent verification exactly one
// caller sees a row affected and wins.
func (s *TokenStore) Consume(ctx context.Context, jti string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE magic_link_tokens SET consumed = TRUE, consumed_at = $2
		 WHERE jti = $1 AND consumed = FALSE`, jti, at)
	if err != nil {
		return false, fmt.Errorf("failed to consume magic-link token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read consume result: %w", err)
	}
	return affected == 1, nil
}
