package auth

import "context"

// Role names attached to identities. An identity without any matching user
// record stays role-less (empty string).
const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleService = "service"
)

// Identity is the principal resolved from a request credential. It lives
// only for the request; handlers read it from the request context.
type Identity struct {
	// Subject is the credential's subject claim: an external id, an email,
	// or "service" for the shared-secret principal.
	Subject  string                 `json:"subject"`
	Email    string                 `json:"email,omitempty"`
	Issuer   string                 `json:"issuer,omitempty"`
	Audience string                 `json:"audience,omitempty"`
	Role     string                 `json:"role,omitempty"`
	IsAdmin  bool                   `json:"is_admin,omitempty"`
	UserID   *int64                 `json:"user_id,omitempty"`
	Claims   map[string]interface{} `json:"-"`
}

// IsService reports whether this is the shared-secret service principal.
func (i *Identity) IsService() bool {
	return i.Role == RoleService
}

// UserRecord is the persisted principal owned by the user store. The auth
// core only reads it to enrich identities with a local role.
type UserRecord struct {
	ID         int64   `json:"id"`
	Email      string  `json:"email"`
	ExternalID *string `json:"external_id,omitempty"`
	Role       string  `json:"role,omitempty"`
	IsAdmin    bool    `json:"is_admin"`
}

// DerivedRole returns the explicit role name when one exists, otherwise
// admin for admin-flagged users and user for everyone else.
func (u *UserRecord) DerivedRole() string {
	if u.Role != "" {
		return u.Role
	}
	if u.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// UserStore looks up persisted user records. Implementations return
// (nil, nil) when no record matches.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindByExternalID(ctx context.Context, externalID string) (*UserRecord, error)
}
