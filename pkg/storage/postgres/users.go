package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lukewarren/shelfd/pkg/auth"
)

// UserStore reads user records for identity enrichment. Lookups that find
// nothing return (nil, nil); only infrastructure failures are errors.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a store over an open connection pool.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = "id, email, external_id, role, is_admin"

// FindByEmail looks up a user by email, case-insensitively.
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE lower(email) = $1",
		strings.ToLower(email))
	return scanUser(row)
}

// FindByExternalID looks up a user by the identity provider's subject id.
func (s *UserStore) FindByExternalID(ctx context.Context, externalID string) (*auth.UserRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE external_id = $1",
		externalID)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*auth.UserRecord, error) {
	var (
		record     auth.UserRecord
		externalID sql.NullString
		role       sql.NullString
	)
	err := row.Scan(&record.ID, &record.Email, &externalID, &role, &record.IsAdmin)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if externalID.Valid {
		record.ExternalID = &externalID.String
	}
	if role.Valid {
		record.Role = role.String
	}
	return &record, nil
}
