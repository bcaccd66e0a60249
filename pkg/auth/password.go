package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/lukewarren/shelfd/pkg/observability"
)

// IdentityProviderConfig points at the upstream provider's token endpoint
// for password logins.
type IdentityProviderConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// PasswordAuthenticator exchanges email+password for an upstream token and
// resolves the local identity. Provider rejections surface as
// KindInvalidCredential; provider outages as KindUpstreamUnavailable.
type PasswordAuthenticator struct {
	oauth  oauth2.Config
	users  UserStore
	logger *observability.Logger
}

// NewPasswordAuthenticator creates an authenticator. A missing token URL is
// rejected with KindMisconfigured.
func NewPasswordAuthenticator(cfg IdentityProviderConfig, users UserStore, logger *observability.Logger) (*PasswordAuthenticator, error) {
	if cfg.TokenURL == "" {
		return nil, E(KindMisconfigured, "auth: identity provider token URL is required")
	}
	return &PasswordAuthenticator{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
		users:  users,
		logger: logger,
	}, nil
}

// Authenticate performs the password grant against the upstream provider
// and returns the local identity for the email.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, E(KindInvalidCredential, "auth: email and password are required")
	}

	_, err := a.oauth.PasswordCredentialsToken(ctx, email, password)
	if err != nil {
		return nil, classifyProviderError(err)
	}

	ident := &Identity{Subject: email, Email: email}
	if a.users != nil {
		record, err := a.users.FindByEmail(ctx, email)
		if err != nil {
			a.logger.Warn("user enrichment lookup failed", "email", email, "error", err)
		} else if record != nil {
			ident.Role = record.DerivedRole()
			ident.IsAdmin = record.IsAdmin
			ident.UserID = &record.ID
		}
	}
	return ident, nil
}

// classifyProviderError separates a provider saying "no" from a provider
// being down. A 4xx token response is a credential failure; anything else
// is an upstream outage.
func classifyProviderError(err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		if retrieve.Response != nil &&
			retrieve.Response.StatusCode >= http.StatusBadRequest &&
			retrieve.Response.StatusCode < http.StatusInternalServerError {
			return Wrap(err, KindInvalidCredential, "auth: identity provider rejected credentials")
		}
	}
	return Wrap(err, KindUpstreamUnavailable, "auth: identity provider unavailable")
}
