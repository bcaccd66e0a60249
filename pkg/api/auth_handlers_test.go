package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lukewarren/shelfd/pkg/auth"
	"github.com/lukewarren/shelfd/pkg/middleware"
	"github.com/lukewarren/shelfd/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

type captureMailer struct {
	email string
	token string
}

func (m *captureMailer) SendMagicLink(_ context.Context, email, token string) error {
	m.email = email
	m.token = token
	return nil
}

type stubUserStore struct {
	byEmail    map[string]*auth.UserRecord
	byExternal map[string]*auth.UserRecord
}

func (s *stubUserStore) FindByEmail(_ context.Context, email string) (*auth.UserRecord, error) {
	return s.byEmail[email], nil
}

func (s *stubUserStore) FindByExternalID(_ context.Context, id string) (*auth.UserRecord, error) {
	return s.byExternal[id], nil
}

type testServer struct {
	server   *Server
	mailer   *captureMailer
	sessions *auth.SessionCodec
	users    *stubUserStore
}

func newTestServer(t *testing.T, catalog *CatalogHandlers) *testServer {
	t.Helper()
	logger := testLogger()

	users := &stubUserStore{byEmail: map[string]*auth.UserRecord{}}
	sessions := auth.NewSessionCodec("session-secret-for-tests", time.Hour, false, logger)
	magicLinks, err := auth.NewMagicLinkService("magic-link-secret-for-tests", auth.NewMemoryTokenStore(), logger)
	if err != nil {
		t.Fatalf("NewMagicLinkService: %v", err)
	}
	gate := auth.NewServiceGate(auth.ServiceGateConfig{
		Secret:      "shared-service-secret",
		HeaderName:  "X-Internal-Auth",
		HeaderValue: "second-secret",
		AllowedIPs:  []string{"10.0.0.5"},
	}, nil, logger)
	verifier, err := auth.NewBearerVerifier(auth.VerifierConfig{
		FallbackKeySetURL: "https://keys.invalid/.well-known/jwks.json",
		Issuer:            "https://issuer.example.com",
		Audience:          "shelfd",
	}, users, logger)
	if err != nil {
		t.Fatalf("NewBearerVerifier: %v", err)
	}

	mailer := &captureMailer{}
	handlers := NewAuthHandlers(AuthHandlersConfig{
		MagicLinks:    magicLinks,
		Sessions:      sessions,
		Users:         users,
		Mailer:        mailer,
		EmailLimiter:  middleware.NewLimiter(5, time.Hour),
		SourceLimiter: middleware.NewLimiter(100, time.Hour),
		Logger:        logger,
	})

	server := NewServer(ServerConfig{
		AuthHandlers:    handlers,
		CatalogHandlers: catalog,
		Authenticator:   middleware.NewAuthenticator(verifier, sessions, gate, users, logger, false),
		Gate:            gate,
		Logger:          logger,
	})
	return &testServer{server: server, mailer: mailer, sessions: sessions, users: users}
}

func (ts *testServer) do(method, path, body string, decorate func(*http.Request)) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestMagicLinkRequestVerifyFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("POST", "/api/v1/auth/magic-link", `{"email":"R@Example.com"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("request status = %d, want 202", rec.Code)
	}
	if ts.mailer.email != "r@example.com" || ts.mailer.token == "" {
		t.Fatalf("mailer got (%q, token present %v)", ts.mailer.email, ts.mailer.token != "")
	}

	rec = ts.do("GET", "/api/v1/auth/magic-link/verify?token="+ts.mailer.token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	cookie := sessionCookie(t, rec)

	rec = ts.do("GET", "/api/v1/auth/me", "", func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "r@example.com") {
		t.Errorf("me body = %s", rec.Body.String())
	}
}

func TestMagicLinkVerifyPostBodyParity(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do("POST", "/api/v1/auth/magic-link", `{"email":"r@example.com"}`, nil)
	rec := ts.do("POST", "/api/v1/auth/magic-link/verify", `{"token":"`+ts.mailer.token+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST verify status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	sessionCookie(t, rec)
}

func TestMagicLinkReplayReturnsGone(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do("POST", "/api/v1/auth/magic-link", `{"email":"r@example.com"}`, nil)
	first := ts.do("GET", "/api/v1/auth/magic-link/verify?token="+ts.mailer.token, "", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first verify status = %d", first.Code)
	}

	second := ts.do("GET", "/api/v1/auth/magic-link/verify?token="+ts.mailer.token, "", nil)
	if second.Code != http.StatusGone {
		t.Errorf("replayed verify status = %d, want 410", second.Code)
	}
}

func TestMagicLinkPerEmailRateLimit(t *testing.T) {
	ts := newTestServer(t, nil)

	for i := 0; i < 5; i++ {
		rec := ts.do("POST", "/api/v1/auth/magic-link", `{"email":"r@example.com"}`, nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d status = %d, want 202", i+1, rec.Code)
		}
	}
	rec := ts.do("POST", "/api/v1/auth/magic-link", `{"email":"r@example.com"}`, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("6th request status = %d, want 429", rec.Code)
	}

	// A different principal still has its own window.
	rec = ts.do("POST", "/api/v1/auth/magic-link", `{"email":"other@example.com"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Errorf("other email status = %d, want 202", rec.Code)
	}
}

func TestMagicLinkRequestValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	if rec := ts.do("POST", "/api/v1/auth/magic-link", `{"email":""}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("empty email status = %d, want 400", rec.Code)
	}
	if rec := ts.do("POST", "/api/v1/auth/magic-link", `not json`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
	if rec := ts.do("GET", "/api/v1/auth/magic-link/verify", "", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing token status = %d, want 400", rec.Code)
	}
}

func TestMeRequiresCredentials(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("GET", "/api/v1/auth/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("POST", "/api/v1/auth/logout", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	cookie := sessionCookie(t, rec)
	if cookie.MaxAge != -1 {
		t.Errorf("cookie MaxAge = %d, want -1", cookie.MaxAge)
	}
}

func TestLoginNotConfigured(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do("POST", "/api/v1/auth/login", `{"email":"a@example.com","password":"x"}`, nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}
