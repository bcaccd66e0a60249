package middleware

import (
	"context"
	"net/http"

	"github.com/lukewarren/shelfd/pkg/audit"
	"github.com/lukewarren/shelfd/pkg/auth"
	"github.com/lukewarren/shelfd/pkg/httputil"
)

// RequireAdmin gates protected endpoints. It allows a request when the
// identity has the admin role, or when it is the service principal and the
// gate's hardening checks (header plus allow-list) pass. Everything else is
// denied with 403, including unauthenticated requests.
func RequireAdmin(gate *auth.ServiceGate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := IdentityFromContext(r.Context())
			if ident == nil {
				httputil.WriteForbidden(w, "forbidden")
				return
			}

			if ident.IsService() {
				if gate == nil {
					httputil.WriteForbidden(w, "forbidden")
					return
				}
				if err := gate.Authorize(r); err != nil {
					recordDenial(r, ident)
					httputil.WriteAuthError(w, err)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if ident.Role == auth.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}

			recordDenial(r, ident)
			httputil.WriteForbidden(w, "forbidden")
		})
	}
}

// recordDenial writes an access-denied audit record without blocking the
// response.
func recordDenial(r *http.Request, ident *auth.Identity) {
	sink := audit.FromContext(r.Context())
	subject := ident.Subject
	userID := ident.UserID
	path := r.URL.Path
	go func() {
		_ = sink.LogAuthorization(context.Background(), audit.EventTypeAccessDenied,
			userID, audit.ResourceTypeItem, path, audit.EventStatusDenied,
			"admin access denied for "+subject)
	}()
}
