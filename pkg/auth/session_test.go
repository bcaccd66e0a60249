package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lukewarren/shelfd/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestSessionRoundTrip(t *testing.T) {
	codec := NewSessionCodec("0123456789abcdef0123456789abcdef", time.Hour, false, testLogger())

	userID := int64(7)
	token, err := codec.Issue(SessionPayload{Subject: "u1", UserID: &userID}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	payload, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if payload.Subject != "u1" {
		t.Errorf("subject = %q, want u1", payload.Subject)
	}
	if payload.UserID == nil || *payload.UserID != 7 {
		t.Errorf("user id = %v, want 7", payload.UserID)
	}
	if payload.ExpiresAt <= payload.IssuedAt {
		t.Errorf("expiry %d not after issuance %d", payload.ExpiresAt, payload.IssuedAt)
	}
}

func TestSessionExpiry(t *testing.T) {
	codec := NewSessionCodec("0123456789abcdef0123456789abcdef", time.Hour, false, testLogger())
	issued := time.Now()
	codec.now = func() time.Time { return issued }

	token, err := codec.Issue(SessionPayload{Subject: "u1"}, 10*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	codec.now = func() time.Time { return issued.Add(11 * time.Minute) }
	_, err = codec.Verify(token)
	if err == nil {
		t.Fatal("expected expired session to fail verification")
	}
	if KindOf(err) != KindInvalidSession {
		t.Errorf("kind = %v, want KindInvalidSession", KindOf(err))
	}
}

func TestSessionTamperedSignature(t *testing.T) {
	codec := NewSessionCodec("0123456789abcdef0123456789abcdef", time.Hour, false, testLogger())
	other := NewSessionCodec("ffffffffffffffffffffffffffffffff", time.Hour, false, testLogger())

	token, err := other.Issue(SessionPayload{Subject: "u1"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.Verify(token); KindOf(err) != KindInvalidSession {
		t.Errorf("kind = %v, want KindInvalidSession for wrong key", KindOf(err))
	}
}

func TestSessionUnsignedFallback(t *testing.T) {
	codec := NewSessionCodec("", time.Hour, false, testLogger())

	token, err := codec.Issue(SessionPayload{Subject: "dev@example.com"}, 0)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	payload, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if payload.Subject != "dev@example.com" {
		t.Errorf("subject = %q", payload.Subject)
	}
}

func TestSessionUnsignedFallbackExpiry(t *testing.T) {
	codec := NewSessionCodec("", time.Hour, false, testLogger())
	issued := time.Now()
	codec.now = func() time.Time { return issued }

	token, err := codec.Issue(SessionPayload{Subject: "dev"}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	codec.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := codec.Verify(token); KindOf(err) != KindInvalidSession {
		t.Errorf("kind = %v, want KindInvalidSession", KindOf(err))
	}
}

func TestSessionCookieAttributes(t *testing.T) {
	codec := NewSessionCodec("0123456789abcdef0123456789abcdef", time.Hour, true, testLogger())

	rec := httptest.NewRecorder()
	codec.SetCookie(rec, "token-value")

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != SessionCookieName {
		t.Errorf("name = %q", c.Name)
	}
	if !c.HttpOnly {
		t.Error("cookie must be httpOnly")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("sameSite = %v, want lax", c.SameSite)
	}
	if !c.Secure {
		t.Error("cookie must be secure in production")
	}

	rec = httptest.NewRecorder()
	codec.ClearCookie(rec)
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge != -1 {
		t.Errorf("clear cookie = %+v, want MaxAge -1", cleared)
	}
}

func TestSessionDefaultMaxAge(t *testing.T) {
	codec := NewSessionCodec("0123456789abcdef0123456789abcdef", 0, false, testLogger())
	if codec.maxAge != DefaultSessionMaxAge {
		t.Errorf("maxAge = %v, want %v", codec.maxAge, DefaultSessionMaxAge)
	}
}
