package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lukewarren/shelfd/pkg/observability"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session"

// DefaultSessionMaxAge is used when no max-age is configured.
const DefaultSessionMaxAge = 7 * 24 * time.Hour

// SessionPayload is the transient claim set embedded in a session token.
// Validity is purely cryptographic plus time-based; nothing is persisted.
type SessionPayload struct {
	Subject   string `json:"sub"`
	UserID    *int64 `json:"uid,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

type sessionClaims struct {
	UserID *int64 `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// SessionCodec issues and verifies compact signed session tokens and
// manages the session cookie.
//
// With an empty secret the codec degrades to unsigned base64 JSON payloads.
// That mode exists for local development only and is announced loudly at
// construction; production configuration must always carry a secret.
type SessionCodec struct {
	secret     []byte
	maxAge     time.Duration
	production bool
	logger     *observability.Logger
	now        func() time.Time
}

// NewSessionCodec creates a codec. maxAge <= 0 selects DefaultSessionMaxAge.
func NewSessionCodec(secret string, maxAge time.Duration, production bool, logger *observability.Logger) *SessionCodec {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	c := &SessionCodec{
		secret:     []byte(secret),
		maxAge:     maxAge,
		production: production,
		logger:     logger,
		now:        time.Now,
	}
	if len(c.secret) == 0 {
		logger.Warn("SESSION SECRET NOT CONFIGURED: issuing UNSIGNED session tokens, do not run this configuration in production")
	}
	return c
}

// Issue signs a session token for the payload. ttl <= 0 selects the codec's
// max-age. IssuedAt and ExpiresAt on the payload are overwritten.
func (c *SessionCodec) Issue(payload SessionPayload, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.maxAge
	}
	now := c.now()
	payload.IssuedAt = now.Unix()
	payload.ExpiresAt = now.Add(ttl).Unix()

	if len(c.secret) == 0 {
		raw, err := json.Marshal(payload)
		if err != nil {
			return "", Wrap(err, KindUnknown, "auth: encoding unsigned session payload")
		}
		return base64.RawURLEncoding.EncodeToString(raw), nil
	}

	claims := sessionClaims{
		UserID: payload.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", Wrap(err, KindUnknown, "auth: signing session token")
	}
	return signed, nil
}

// Verify checks a session token and returns its payload. Signature failure
// or expiry is KindInvalidSession.
func (c *SessionCodec) Verify(token string) (*SessionPayload, error) {
	if token == "" {
		return nil, E(KindInvalidSession, "auth: empty session token")
	}

	if len(c.secret) == 0 {
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			return nil, Wrap(err, KindInvalidSession, "auth: undecodable session token")
		}
		var payload SessionPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, Wrap(err, KindInvalidSession, "auth: malformed session payload")
		}
		if payload.ExpiresAt != 0 && c.now().Unix() >= payload.ExpiresAt {
			return nil, E(KindInvalidSession, "auth: session expired")
		}
		return &payload, nil
	}

	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(c.now))
	if err != nil || !parsed.Valid {
		if err == nil {
			err = E(KindInvalidSession, "auth: invalid session token")
		}
		return nil, Wrap(err, KindInvalidSession, "auth: session rejected")
	}

	payload := &SessionPayload{
		Subject: claims.Subject,
		UserID:  claims.UserID,
	}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		payload.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return payload, nil
}

// SetCookie writes the session cookie. Secure is tied to the production
// flag so local HTTP development still works.
func (c *SessionCodec) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.production,
	})
}

// ClearCookie expires the session cookie immediately.
func (c *SessionCodec) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.production,
	})
}
