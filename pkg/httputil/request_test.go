package httputil

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer lower-scheme", "lower-scheme"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		if got := BearerToken(r); got != tc.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:54321"
	if got := ClientIP(r); got != "192.0.2.10" {
		t.Errorf("ClientIP = %q, want 192.0.2.10", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 192.0.2.10")
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Errorf("ClientIP with XFF = %q, want 203.0.113.7", got)
	}
}

func TestParseJSON(t *testing.T) {
	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"email":"a@example.com"}`))
	var body struct {
		Email string `json:"email"`
	}
	if err := ParseJSON(r, &body); err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if body.Email != "a@example.com" {
		t.Errorf("email = %q", body.Email)
	}

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{bad`))
	if err := ParseJSON(r, &body); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestParsePathInt64(t *testing.T) {
	r := httptest.NewRequest("GET", "/items/42", nil)
	r = mux.SetURLVars(r, map[string]string{"id": "42"})

	id, err := ParsePathInt64(r, "id")
	if err != nil {
		t.Fatalf("ParsePathInt64: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d", id)
	}

	r = mux.SetURLVars(httptest.NewRequest("GET", "/items/x", nil), map[string]string{"id": "x"})
	if _, err := ParsePathInt64(r, "id"); err == nil {
		t.Error("expected error for non-integer path parameter")
	}
}

func TestParseQueryString(t *testing.T) {
	r := httptest.NewRequest("GET", "/verify?token=abc", nil)
	if got := ParseQueryString(r, "token", ""); got != "abc" {
		t.Errorf("token = %q", got)
	}
	if got := ParseQueryString(r, "missing", "fallback"); got != "fallback" {
		t.Errorf("default = %q", got)
	}
}
