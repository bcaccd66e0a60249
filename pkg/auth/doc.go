// Package auth implements the authentication and session lifecycle core:
// verification of externally-issued bearer credentials against a remote
// key set, signed session cookies, single-use magic-link tokens, a hardened
// service-to-service bypass, and password logins against an upstream
// identity provider.
//
// # Bearer Credentials
//
// BearerVerifier validates tokens from the Authorization header:
//
//	verifier, err := auth.NewBearerVerifier(cfg, userStore, logger)
//	ident, err := verifier.Verify(ctx, rawToken)
//
// The key set is resolved by probing the configured endpoint first and
// falling back to the endpoint derived from the publishable key. Verified
// identities are enriched with the local user record when one matches the
// token subject.
//
// # Sessions
//
// SessionCodec issues and verifies compact signed session tokens and
// manages the session cookie:
//
//	codec := auth.NewSessionCodec(secret, 7*24*time.Hour, production, logger)
//	token, err := codec.Issue(auth.SessionPayload{Subject: "u1"}, 0)
//	payload, err := codec.Verify(token)
//
// # Magic Links
//
// MagicLinkService issues single-use tokens with a fixed 15 minute window
// and enforces at-most-once consumption through the token store's atomic
// conditional update:
//
//	svc := auth.NewMagicLinkService(secret, store, logger)
//	token, jti, err := svc.Issue(ctx, "a@example.com", nil)
//	result, err := svc.Verify(ctx, token)
//
// A second Verify of the same token fails with KindReplayedToken.
//
// # Failure Classification
//
// All failures carry a Kind so callers branch on the failure class rather
// than matching message strings; Kind.HTTPStatus maps each class to the
// wire status contract.
//
// # Related Packages
//
//   - pkg/middleware: attaches verified identities to request contexts
//   - pkg/storage/postgres: persistent user and magic-link token stores
//   - pkg/audit: sink for service-bypass audit records
package auth
