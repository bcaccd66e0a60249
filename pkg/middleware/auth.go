package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lukewarren/shelfd/pkg/auth"
	"github.com/lukewarren/shelfd/pkg/contextkeys"
	"github.com/lukewarren/shelfd/pkg/httputil"
	"github.com/lukewarren/shelfd/pkg/observability"
)

// Authenticator resolves the request's identity from its credential and
// attaches it to the context.
type Authenticator struct {
	verifier *auth.BearerVerifier
	sessions *auth.SessionCodec
	gate     *auth.ServiceGate
	users    auth.UserStore
	logger   *observability.Logger
	optional bool
}

// NewAuthenticator creates the middleware. When optional is true, requests
// without any credential pass through unauthenticated; protected endpoints
// still deny through RequireAdmin.
func NewAuthenticator(verifier *auth.BearerVerifier, sessions *auth.SessionCodec, gate *auth.ServiceGate, users auth.UserStore, logger *observability.Logger, optional bool) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		sessions: sessions,
		gate:     gate,
		users:    users,
		logger:   logger,
		optional: optional,
	}
}

// Handler wraps next with credential resolution. The service secret is
// checked before bearer verification so the shared secret never reaches
// the key-set path.
func (m *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := httputil.BearerToken(r); token != "" {
			if m.gate != nil && m.gate.Recognize(token) {
				observability.AuthRequestsTotal.WithLabelValues("service", "success").Inc()
				m.serve(w, r, next, m.gate.ServiceIdentity())
				return
			}
			ident, err := m.verifier.Verify(r.Context(), token)
			if err != nil {
				observability.AuthRequestsTotal.WithLabelValues("bearer", "failure").Inc()
				m.logger.Debug("bearer verification failed", "error", err)
				httputil.WriteAuthError(w, err)
				return
			}
			observability.AuthRequestsTotal.WithLabelValues("bearer", "success").Inc()
			m.serve(w, r, next, ident)
			return
		}

		if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
			payload, err := m.sessions.Verify(cookie.Value)
			if err != nil {
				observability.AuthRequestsTotal.WithLabelValues("session", "failure").Inc()
				httputil.WriteAuthError(w, err)
				return
			}
			observability.AuthRequestsTotal.WithLabelValues("session", "success").Inc()
			m.serve(w, r, next, m.identityFromSession(r.Context(), payload))
			return
		}

		if m.optional {
			next.ServeHTTP(w, r)
			return
		}
		httputil.WriteUnauthorized(w, "missing credentials")
	})
}

func (m *Authenticator) serve(w http.ResponseWriter, r *http.Request, next http.Handler, ident *auth.Identity) {
	ctx := contextkeys.WithIdentity(r.Context(), ident)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// identityFromSession rebuilds an identity from a verified session payload,
// enriching it from the user store by external id or email. Lookup
// failures leave the identity role-less.
func (m *Authenticator) identityFromSession(ctx context.Context, payload *auth.SessionPayload) *auth.Identity {
	ident := &auth.Identity{
		Subject: payload.Subject,
		UserID:  payload.UserID,
	}
	if strings.Contains(payload.Subject, "@") {
		ident.Email = payload.Subject
	}
	if m.users == nil {
		return ident
	}

	var (
		record *auth.UserRecord
		err    error
	)
	switch {
	case isUUIDShaped(payload.Subject):
		record, err = m.users.FindByExternalID(ctx, payload.Subject)
	case strings.Contains(payload.Subject, "@"):
		record, err = m.users.FindByEmail(ctx, strings.ToLower(payload.Subject))
	default:
		return ident
	}
	if err != nil {
		m.logger.Warn("session enrichment lookup failed", "subject", payload.Subject, "error", err)
		return ident
	}
	if record == nil {
		return ident
	}

	ident.Role = record.DerivedRole()
	ident.IsAdmin = record.IsAdmin
	ident.UserID = &record.ID
	if ident.Email == "" {
		ident.Email = record.Email
	}
	return ident
}

func isUUIDShaped(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// IdentityFromContext returns the identity attached by Authenticator, or
// nil for unauthenticated requests.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	if ident, ok := ctx.Value(contextkeys.IdentityKey).(*auth.Identity); ok {
		return ident
	}
	return nil
}
