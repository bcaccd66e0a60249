// Package middleware wires the auth core into the HTTP request path.
//
// Authenticator resolves an identity from one of three credential sources,
// tried in order: the shared service secret, an externally-issued bearer
// token, and the session cookie. The resolved identity is attached to the
// request context; downstream gates read it from there.
//
// RequireAdmin is the privilege gate for protected endpoints. It allows
// admins, and the service principal only when the hardening checks of
// auth.ServiceGate pass.
//
// The rate limiters guard the credential-issuance endpoints. Limiter is
// the in-process fixed-window implementation; DistributedLimiter shares
// windows across instances through Redis and fails open when Redis is
// unreachable.
package middleware
