package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindInvalidCredential, http.StatusUnauthorized},
		{KindInvalidSession, http.StatusUnauthorized},
		{KindInvalidToken, http.StatusUnauthorized},
		{KindExpiredToken, http.StatusGone},
		{KindReplayedToken, http.StatusGone},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindForbidden, http.StatusForbidden},
		{KindKeySetUnavailable, http.StatusBadGateway},
		{KindUpstreamUnavailable, http.StatusBadGateway},
		{KindMisconfigured, http.StatusInternalServerError},
		{KindUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.kind.HTTPStatus(); got != tc.want {
			t.Errorf("%v.HTTPStatus() = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestKindOfUnwrapsChain(t *testing.T) {
	inner := Wrap(errors.New("dial tcp: connection refused"), KindKeySetUnavailable, "auth: key set unreachable")
	wrapped := fmt.Errorf("verifying request: %w", inner)

	if KindOf(wrapped) != KindKeySetUnavailable {
		t.Errorf("kind = %v, want KindKeySetUnavailable through wrapping", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("unclassified error must report KindUnknown")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("nil must report KindUnknown")
	}
}

func TestErrorMessageSeparatesInternalDetail(t *testing.T) {
	err := Wrap(errors.New("pq: connection reset"), KindInvalidToken, "auth: token not recognized")
	if err.Message != "auth: token not recognized" {
		t.Errorf("client message = %q", err.Message)
	}
	if err.Error() != "auth: token not recognized: pq: connection reset" {
		t.Errorf("full error = %q", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Error("wrapped cause must remain reachable via errors.Is")
	}
}
