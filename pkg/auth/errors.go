package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies authentication and authorization failures so callers can
// branch on the failure class instead of matching message strings.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidCredential covers bad signature, issuer, audience, or expiry
	// on an externally-issued bearer credential.
	KindInvalidCredential
	// KindKeySetUnavailable means both the primary and fallback key-set
	// endpoints were unreachable.
	KindKeySetUnavailable
	// KindMisconfigured means required configuration is absent.
	KindMisconfigured
	// KindInvalidSession covers signature failure or expiry of a session token.
	KindInvalidSession
	// KindInvalidToken covers malformed or unknown magic-link tokens.
	KindInvalidToken
	// KindExpiredToken means a never-consumed magic-link token was verified
	// after its window.
	KindExpiredToken
	// KindReplayedToken means a magic-link token was already consumed.
	KindReplayedToken
	// KindRateLimited means a per-source or per-principal window is exhausted.
	KindRateLimited
	// KindForbidden covers role and service-bypass authorization failures.
	KindForbidden
	// KindUpstreamUnavailable means the upstream identity provider failed
	// during a password flow.
	KindUpstreamUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredential:
		return "invalid_credential"
	case KindKeySetUnavailable:
		return "keyset_unavailable"
	case KindMisconfigured:
		return "misconfigured"
	case KindInvalidSession:
		return "invalid_session"
	case KindInvalidToken:
		return "invalid_token"
	case KindExpiredToken:
		return "expired_token"
	case KindReplayedToken:
		return "replayed_token"
	case KindRateLimited:
		return "rate_limited"
	case KindForbidden:
		return "forbidden"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	default:
		return "unknown"
	}
}

// HTTPStatus maps a failure class to the wire status contract: 401 for
// credential failures, 403 for authorization, 410 for expired or replayed
// magic links, 429 for rate limiting, 502 for upstream failures.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidCredential, KindInvalidSession, KindInvalidToken:
		return http.StatusUnauthorized
	case KindExpiredToken, KindReplayedToken:
		return http.StatusGone
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindForbidden:
		return http.StatusForbidden
	case KindKeySetUnavailable, KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified authentication failure. Message is safe to return
// to clients; wrapped internal detail is for server-side logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a classified error.
func E(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the failure class from an error chain. Unclassified
// errors report KindUnknown.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}
