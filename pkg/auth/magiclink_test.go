package auth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestMagicLinkService(t *testing.T) (*MagicLinkService, *MemoryTokenStore) {
	t.Helper()
	store := NewMemoryTokenStore()
	svc, err := NewMagicLinkService("magic-link-secret-for-tests", store, testLogger())
	if err != nil {
		t.Fatalf("NewMagicLinkService: %v", err)
	}
	return svc, store
}

func TestMagicLinkIssueAndVerify(t *testing.T) {
	svc, store := newTestMagicLinkService(t)
	ctx := context.Background()

	userID := int64(3)
	token, jti, err := svc.Issue(ctx, "a@example.com", &userID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" || jti == "" {
		t.Fatal("empty token or jti")
	}

	record, err := store.FindByJTI(ctx, jti)
	if err != nil || record == nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if record.Consumed {
		t.Error("fresh record must not be consumed")
	}

	result, err := svc.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Email != "a@example.com" {
		t.Errorf("email = %q", result.Email)
	}
	if result.UserID == nil || *result.UserID != 3 {
		t.Errorf("user id = %v, want 3", result.UserID)
	}
}

func TestMagicLinkReplay(t *testing.T) {
	svc, _ := newTestMagicLinkService(t)
	ctx := context.Background()

	token, _, err := svc.Issue(ctx, "a@example.com", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(ctx, token); err != nil {
		t.Fatalf("first Verify: %v", err)
	}

	_, err = svc.Verify(ctx, token)
	if KindOf(err) != KindReplayedToken {
		t.Errorf("kind = %v, want KindReplayedToken", KindOf(err))
	}
}

func TestMagicLinkExpiry(t *testing.T) {
	svc, _ := newTestMagicLinkService(t)
	ctx := context.Background()
	issued := time.Now()
	svc.now = func() time.Time { return issued }

	token, _, err := svc.Issue(ctx, "a@example.com", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(MagicLinkTTL + time.Minute) }
	_, err = svc.Verify(ctx, token)
	if KindOf(err) != KindExpiredToken {
		t.Errorf("kind = %v, want KindExpiredToken", KindOf(err))
	}
}

func TestMagicLinkReplayReportedBeforeExpiry(t *testing.T) {
	// A consumed token must report replay even when it has since expired.
	svc, _ := newTestMagicLinkService(t)
	ctx := context.Background()
	issued := time.Now()
	svc.now = func() time.Time { return issued }

	token, _, err := svc.Issue(ctx, "a@example.com", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.Verify(ctx, token); err != nil {
		t.Fatalf("first Verify: %v", err)
	}

	svc.now = func() time.Time { return issued.Add(MagicLinkTTL + time.Hour) }
	_, err = svc.Verify(ctx, token)
	if KindOf(err) != KindReplayedToken {
		t.Errorf("kind = %v, want KindReplayedToken ahead of expiry", KindOf(err))
	}
}

func TestMagicLinkGarbageToken(t *testing.T) {
	svc, _ := newTestMagicLinkService(t)
	_, err := svc.Verify(context.Background(), "not-a-token")
	if KindOf(err) != KindInvalidToken {
		t.Errorf("kind = %v, want KindInvalidToken", KindOf(err))
	}
}

func TestMagicLinkUnknownJTI(t *testing.T) {
	svc, _ := newTestMagicLinkService(t)
	other, _ := newTestMagicLinkService(t)
	ctx := context.Background()

	// Signed with the same secret but persisted in a different store.
	token, _, err := other.Issue(ctx, "a@example.com", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = svc.Verify(ctx, token)
	if KindOf(err) != KindInvalidToken {
		t.Errorf("kind = %v, want KindInvalidToken for unknown jti", KindOf(err))
	}
}

func TestMagicLinkWrongSignature(t *testing.T) {
	svc, store := newTestMagicLinkService(t)
	forger, err := NewMagicLinkService("a-different-secret-entirely", store, testLogger())
	if err != nil {
		t.Fatalf("NewMagicLinkService: %v", err)
	}

	token, _, err := forger.Issue(context.Background(), "a@example.com", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = svc.Verify(context.Background(), token)
	if KindOf(err) != KindInvalidToken {
		t.Errorf("kind = %v, want KindInvalidToken for bad signature", KindOf(err))
	}
}

func TestMagicLinkConcurrentVerifyExactlyOneWins(t *testing.T) {
	svc, _ := newTestMagicLinkService(t)
	ctx := context.Background()

	token, _, err := svc.Issue(ctx, "race@example.com", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Verify(ctx, token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, replays int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case KindOf(err) == KindReplayedToken:
			replays++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if replays != attempts-1 {
		t.Errorf("replays = %d, want %d", replays, attempts-1)
	}
}

func TestMagicLinkRequiresStoreAndSecret(t *testing.T) {
	if _, err := NewMagicLinkService("", NewMemoryTokenStore(), testLogger()); KindOf(err) != KindMisconfigured {
		t.Errorf("missing secret: kind = %v, want KindMisconfigured", KindOf(err))
	}
	if _, err := NewMagicLinkService("secret", nil, testLogger()); KindOf(err) != KindMisconfigured {
		t.Errorf("missing store: kind = %v, want KindMisconfigured", KindOf(err))
	}
}
