package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lukewarren/shelfd/pkg/observability"
)

// MagicLinkTTL is the fixed validity window for magic-link tokens.
const MagicLinkTTL = 15 * time.Minute

// MagicLinkToken is the persisted record behind a single-use token. Records
// are never deleted by this subsystem; consumed rows are retained for audit
// and replay detection.
type MagicLinkToken struct {
	JTI        string     `json:"jti"`
	Email      string     `json:"email"`
	UserID     *int64     `json:"user_id,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Consumed   bool       `json:"consumed"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TokenStore persists magic-link tokens. FindByJTI returns (nil, nil) for
// an unknown jti. Consume must be atomic: it marks the record consumed only
// if it is not already, and reports whether this call won.
type TokenStore interface {
	Create(ctx context.Context, token *MagicLinkToken) error
	FindByJTI(ctx context.Context, jti string) (*MagicLinkToken, error)
	Consume(ctx context.Context, jti string, at time.Time) (bool, error)
}

type magicLinkClaims struct {
	Email  string `json:"email"`
	UserID *int64 `json:"uid,omitempty"`
	jwt.RegisteredClaims
}

// VerifyResult is the outcome of a successful magic-link verification.
type VerifyResult struct {
	Email  string
	UserID *int64
}

// MagicLinkService issues and redeems single-use signed tokens. A persistent
// store is required; operating without one is a configuration error, and the
// in-memory substitute exists only for explicit injection in tests.
type MagicLinkService struct {
	secret []byte
	store  TokenStore
	logger *observability.Logger
	now    func() time.Time
}

// NewMagicLinkService creates the service. A nil store or empty secret is
// rejected with KindMisconfigured.
func NewMagicLinkService(secret string, store TokenStore, logger *observability.Logger) (*MagicLinkService, error) {
	if secret == "" {
		return nil, E(KindMisconfigured, "auth: magic-link signing secret is required")
	}
	if store == nil {
		return nil, E(KindMisconfigured, "auth: magic-link token store is required")
	}
	return &MagicLinkService{
		secret: []byte(secret),
		store:  store,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Issue creates and persists a fresh single-use token bound to email and
// optionally a user id, then returns the signed token and its jti. The
// caller delivers the token; this service never sends mail.
func (s *MagicLinkService) Issue(ctx context.Context, email string, userID *int64) (string, string, error) {
	now := s.now()
	jti := uuid.NewString()

	record := &MagicLinkToken{
		JTI:       jti,
		Email:     email,
		UserID:    userID,
		ExpiresAt: now.Add(MagicLinkTTL),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return "", "", Wrap(err, KindUnknown, "auth: persisting magic-link token")
	}

	claims := magicLinkClaims{
		Email:  email,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(MagicLinkTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", Wrap(err, KindUnknown, "auth: signing magic-link token")
	}

	observability.MagicLinksIssuedTotal.Inc()
	s.logger.Info("magic link issued", "jti", jti, "email", email)
	return signed, jti, nil
}

// Verify redeems a token. Checks run in a fixed order against the persisted
// record: unknown jti is KindInvalidToken, an already-consumed record is
// KindReplayedToken even when the record has also expired, an unconsumed
// record past its window is KindExpiredToken. Consumption is an atomic
// conditional update, so exactly one concurrent verification can win.
func (s *MagicLinkService) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	claims, err := s.decode(token)
	if err != nil {
		observability.MagicLinkVerifiesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	record, err := s.store.FindByJTI(ctx, claims.ID)
	if err != nil {
		return nil, Wrap(err, KindUnknown, "auth: looking up magic-link token")
	}
	if record == nil {
		observability.MagicLinkVerifiesTotal.WithLabelValues("invalid").Inc()
		return nil, E(KindInvalidToken, "auth: unknown magic-link token")
	}
	if record.Consumed {
		observability.MagicLinkVerifiesTotal.WithLabelValues("replayed").Inc()
		s.logger.Warn("magic link replay attempt", "jti", record.JTI, "email", record.Email)
		return nil, E(KindReplayedToken, "auth: magic-link token already used")
	}
	now := s.now()
	if now.After(record.ExpiresAt) {
		observability.MagicLinkVerifiesTotal.WithLabelValues("expired").Inc()
		return nil, E(KindExpiredToken, "auth: magic-link token expired")
	}

	won, err := s.store.Consume(ctx, record.JTI, now)
	if err != nil {
		return nil, Wrap(err, KindUnknown, "auth: consuming magic-link token")
	}
	if !won {
		// A concurrent verification consumed the token first.
		observability.MagicLinkVerifiesTotal.WithLabelValues("replayed").Inc()
		return nil, E(KindReplayedToken, "auth: magic-link token already used")
	}

	observability.MagicLinkVerifiesTotal.WithLabelValues("success").Inc()
	return &VerifyResult{Email: record.Email, UserID: record.UserID}, nil
}

// decode checks the token's signature but not its exp claim; expiry and
// replay are judged against the persisted record so that a consumed token
// reports replay even after its window has passed.
func (s *MagicLinkService) decode(token string) (*magicLinkClaims, error) {
	var claims magicLinkClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		if err == nil {
			err = E(KindInvalidToken, "auth: invalid magic-link token")
		}
		return nil, Wrap(err, KindInvalidToken, "auth: magic-link token rejected")
	}
	if claims.ID == "" {
		return nil, E(KindInvalidToken, "auth: magic-link token missing jti")
	}
	return &claims, nil
}

// MemoryTokenStore is an in-memory TokenStore for tests. It must be
// injected explicitly; nothing substitutes it for a missing persistent
// store.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*MagicLinkToken
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]*MagicLinkToken)}
}

func (m *MemoryTokenStore) Create(_ context.Context, token *MagicLinkToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.JTI] = &cp
	return nil
}

func (m *MemoryTokenStore) FindByJTI(_ context.Context, jti string) (*MagicLinkToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[jti]
	if !ok {
		return nil, nil
	}
	cp := *token
	return &cp, nil
}

func (m *MemoryTokenStore) Consume(_ context.Context, jti string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[jti]
	if !ok || token.Consumed {
		return false, nil
	}
	token.Consumed = true
	consumedAt := at
	token.ConsumedAt = &consumedAt
	return true, nil
}
