package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lukewarren/shelfd/pkg/audit"
	"github.com/lukewarren/shelfd/pkg/auth"
	"github.com/lukewarren/shelfd/pkg/httputil"
	"github.com/lukewarren/shelfd/pkg/middleware"
	"github.com/lukewarren/shelfd/pkg/observability"
)

// AuthHandlersConfig collects the collaborators of the auth endpoints.
type AuthHandlersConfig struct {
	MagicLinks *auth.MagicLinkService
	Sessions   *auth.SessionCodec

	// Passwords is optional; when nil, password login responds 501.
	Passwords *auth.PasswordAuthenticator

	Users  auth.UserStore
	Mailer Mailer

	// EmailLimiter bounds magic-link requests per email; SourceLimiter
	// bounds all credential-issuance requests per source address. A
	// magic-link request must pass both.
	EmailLimiter  middleware.RateLimiter
	SourceLimiter middleware.RateLimiter

	Audit  audit.Logger
	Logger *observability.Logger
}

// AuthHandlers handles the authentication endpoints
type AuthHandlers struct {
	cfg AuthHandlersConfig
}

// NewAuthHandlers creates the auth handlers instance
func NewAuthHandlers(cfg AuthHandlersConfig) *AuthHandlers {
	if cfg.Mailer == nil {
		cfg.Mailer = NewLogMailer(cfg.Logger)
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopLogger{}
	}
	return &AuthHandlers{cfg: cfg}
}

// RegisterRoutes registers the credential-issuance routes. These sit in
// front of authentication; the session-dependent routes (me, logout) are
// registered by the server on its authenticated subrouter.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/magic-link", h.requestMagicLink).Methods("POST")
	router.HandleFunc("/auth/magic-link/verify", h.verifyMagicLink).Methods("GET", "POST")
	router.HandleFunc("/auth/login", h.login).Methods("POST")
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
}

// requestMagicLink handles POST /api/v1/auth/magic-link. It always responds
// 202 on acceptance so callers cannot probe which emails exist.
func (h *AuthHandlers) requestMagicLink(w http.ResponseWriter, r *http.Request) {
	if !h.allowSource(w, r) {
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !httputil.RequireNonEmpty(w, email, "email") {
		return
	}

	if h.cfg.EmailLimiter != nil && !h.cfg.EmailLimiter.Allow(r.Context(), middleware.ScopePrincipal, email) {
		h.auditAuth(audit.EventTypeRateLimited, nil, email, audit.EventStatusDenied, "magic-link request rate limited")
		httputil.WriteTooManyRequests(w, "rate limit exceeded")
		return
	}

	var userID *int64
	if h.cfg.Users != nil {
		record, err := h.cfg.Users.FindByEmail(r.Context(), email)
		if err != nil {
			h.cfg.Logger.Warn("magic-link user lookup failed", "email", email, "error", err)
		} else if record != nil {
			userID = &record.ID
		}
	}

	token, jti, err := h.cfg.MagicLinks.Issue(r.Context(), email, userID)
	if err != nil {
		h.cfg.Logger.WithError(err).Error("magic-link issue failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.cfg.Mailer.SendMagicLink(r.Context(), email, token); err != nil {
		// Delivery failure stays invisible to the caller.
		h.cfg.Logger.Error("magic-link delivery failed", "email", email, "jti", jti, "error", err)
	}
	h.auditAuth(audit.EventTypeMagicLinkIssued, userID, email, audit.EventStatusSuccess, "magic link issued")

	httputil.WriteAccepted(w, map[string]string{"status": "accepted"})
}

// verifyMagicLink handles GET and POST /api/v1/auth/magic-link/verify with
// identical semantics: the token comes from ?token= or a JSON body.
func (h *AuthHandlers) verifyMagicLink(w http.ResponseWriter, r *http.Request) {
	if !h.allowSource(w, r) {
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var req struct {
			Token string `json:"token"`
		}
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		token = req.Token
	}
	if !httputil.RequireNonEmpty(w, token, "token") {
		return
	}

	result, err := h.cfg.MagicLinks.Verify(r.Context(), token)
	if err != nil {
		h.auditAuth(eventForVerifyFailure(err), nil, "", audit.EventStatusFailure, "magic-link verification failed")
		httputil.WriteAuthError(w, err)
		return
	}

	if !h.issueSession(w, auth.SessionPayload{Subject: result.Email, UserID: result.UserID}) {
		return
	}
	h.auditAuth(audit.EventTypeMagicLinkVerified, result.UserID, result.Email, audit.EventStatusSuccess, "magic link verified")

	httputil.WriteSuccess(w, map[string]string{
		"status": "ok",
		"email":  result.Email,
	})
}

// login handles POST /api/v1/auth/login against the upstream identity
// provider.
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	if !h.allowSource(w, r) {
		return
	}
	if h.cfg.Passwords == nil {
		httputil.WriteErrorMessage(w, http.StatusNotImplemented, "password login is not configured")
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ident, err := h.cfg.Passwords.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.auditAuth(audit.EventTypeAuthLoginFailed, nil, req.Email, audit.EventStatusFailure, "password login failed")
		httputil.WriteAuthError(w, err)
		return
	}

	if !h.issueSession(w, auth.SessionPayload{Subject: ident.Subject, UserID: ident.UserID}) {
		return
	}
	h.auditAuth(audit.EventTypeAuthLogin, ident.UserID, ident.Email, audit.EventStatusSuccess, "password login")

	httputil.WriteSuccess(w, identityView(ident))
}

// logout handles POST /api/v1/auth/logout. It clears the cookie whether or
// not the presented session was valid.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	if ident := middleware.IdentityFromContext(r.Context()); ident != nil {
		h.auditAuth(audit.EventTypeAuthLogout, ident.UserID, ident.Email, audit.EventStatusSuccess, "logout")
	}
	h.cfg.Sessions.ClearCookie(w)
	httputil.WriteNoContent(w)
}

// me handles GET /api/v1/auth/me for authenticated requests.
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	ident := middleware.IdentityFromContext(r.Context())
	if ident == nil {
		httputil.WriteUnauthorized(w, "missing credentials")
		return
	}
	httputil.WriteSuccess(w, identityView(ident))
}

// issueSession signs a session token and sets the cookie. Reports whether
// it succeeded; on failure the response has been written.
func (h *AuthHandlers) issueSession(w http.ResponseWriter, payload auth.SessionPayload) bool {
	token, err := h.cfg.Sessions.Issue(payload, 0)
	if err != nil {
		h.cfg.Logger.WithError(err).Error("session issue failed")
		httputil.WriteInternalError(w)
		return false
	}
	h.cfg.Sessions.SetCookie(w, token)
	h.auditAuth(audit.EventTypeAuthSessionIssued, payload.UserID, payload.Subject, audit.EventStatusSuccess, "session issued")
	return true
}

// allowSource applies the per-source-address window shared by the
// credential-issuance endpoints.
func (h *AuthHandlers) allowSource(w http.ResponseWriter, r *http.Request) bool {
	if h.cfg.SourceLimiter == nil {
		return true
	}
	if !h.cfg.SourceLimiter.Allow(r.Context(), middleware.ScopeSource, httputil.ClientIP(r)) {
		httputil.WriteTooManyRequests(w, "rate limit exceeded")
		return false
	}
	return true
}

// auditAuth records an authentication event without blocking the request.
func (h *AuthHandlers) auditAuth(eventType audit.EventType, userID *int64, username string, status audit.EventStatus, message string) {
	go func() {
		if err := h.cfg.Audit.LogAuthentication(context.Background(), eventType, userID, username, status, message); err != nil {
			h.cfg.Logger.Warn("audit write failed", "event_type", string(eventType), "error", err)
		}
	}()
}

func eventForVerifyFailure(err error) audit.EventType {
	switch auth.KindOf(err) {
	case auth.KindReplayedToken:
		return audit.EventTypeMagicLinkReplayed
	case auth.KindExpiredToken:
		return audit.EventTypeMagicLinkExpired
	default:
		return audit.EventTypeAuthTokenRejected
	}
}

func identityView(ident *auth.Identity) map[string]interface{} {
	view := map[string]interface{}{
		"subject": ident.Subject,
		"email":   ident.Email,
		"role":    ident.Role,
	}
	if ident.UserID != nil {
		view["user_id"] = *ident.UserID
	}
	return view
}
