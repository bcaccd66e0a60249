package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lukewarren/shelfd/pkg/observability"
)

const tracerName = "github.com/lukewarren/shelfd/pkg/auth"

// maxTokenSize caps accepted bearer token length (8 KB).
const maxTokenSize = 8192

const (
	defaultTokenCacheTTL  = 5 * time.Minute
	defaultTokenCacheSize = 10000
)

// VerifierConfig configures a BearerVerifier.
type VerifierConfig struct {
	// KeySetURL is the primary JWKS endpoint. Probed with a plain GET before
	// use; a non-2xx response triggers the fallback.
	KeySetURL string

	// PublishableKey derives the fallback JWKS endpoint when the primary
	// probe fails. Format: pk_<env>_<base64 frontend-api domain>.
	PublishableKey string

	// FallbackKeySetURL overrides the endpoint derived from PublishableKey
	// when set. Mostly useful in tests.
	FallbackKeySetURL string

	// Issuer and Audience are matched against the token's iss and aud
	// claims. Mismatch on either rejects the token.
	Issuer   string
	Audience string

	// CacheTTL bounds how long a verified identity is reused without
	// re-verification. Zero means defaultTokenCacheTTL.
	CacheTTL time.Duration

	// CacheSize bounds the verified-token cache. Zero means
	// defaultTokenCacheSize.
	CacheSize int

	// HTTPClient is used for the key-set probe and fetches. Nil means a
	// 10-second-timeout client.
	HTTPClient *http.Client
}

// Validate reports missing required configuration.
func (c *VerifierConfig) Validate() error {
	if c.KeySetURL == "" && c.PublishableKey == "" && c.FallbackKeySetURL == "" {
		return E(KindMisconfigured, "auth: no key-set endpoint configured")
	}
	if c.Issuer == "" {
		return E(KindMisconfigured, "auth: issuer is required")
	}
	if c.Audience == "" {
		return E(KindMisconfigured, "auth: audience is required")
	}
	return nil
}

// FallbackKeySetURL derives the fallback JWKS endpoint from a publishable
// key of the form pk_<env>_<base64 domain>. The decoded domain carries a
// trailing "$" marker which is stripped.
func FallbackKeySetURL(publishableKey string) (string, error) {
	parts := strings.SplitN(publishableKey, "_", 3)
	if len(parts) != 3 || parts[0] != "pk" {
		return "", Errorf(KindMisconfigured, "auth: malformed publishable key")
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", Wrap(err, KindMisconfigured, "auth: publishable key is not base64")
	}
	domain := strings.TrimSuffix(string(decoded), "$")
	if domain == "" {
		return "", E(KindMisconfigured, "auth: publishable key decodes to empty domain")
	}
	return "https://" + domain + "/.well-known/jwks.json", nil
}

// BearerVerifier validates externally-issued bearer tokens against a remote
// key set, checks issuer and audience, and enriches the result with the
// local user record when one matches the subject.
//
// Safe for concurrent use.
type BearerVerifier struct {
	cfg    VerifierConfig
	users  UserStore
	logger *observability.Logger
	client *http.Client
	tracer trace.Tracer
	cache  *lru.LRU[string, *Identity]

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
	fallback bool
}

// NewBearerVerifier creates a verifier. users may be nil, in which case
// identities are never enriched.
func NewBearerVerifier(cfg VerifierConfig, users UserStore, logger *observability.Logger) (*BearerVerifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultTokenCacheTTL
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultTokenCacheSize
	}
	return &BearerVerifier{
		cfg:    cfg,
		users:  users,
		logger: logger,
		client: client,
		tracer: otel.Tracer(tracerName),
		cache:  lru.NewLRU[string, *Identity](size, nil, ttl),
	}, nil
}

// Verify validates a raw bearer token and returns the identity it carries.
// Failures are classified: KindInvalidCredential for signature, issuer,
// audience, or expiry problems; KindKeySetUnavailable when no key-set
// endpoint answered.
func (v *BearerVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	ctx, span := v.tracer.Start(ctx, "auth.Verify")
	defer span.End()

	if rawToken == "" {
		return nil, spanErr(span, E(KindInvalidCredential, "auth: empty bearer token"))
	}
	if len(rawToken) > maxTokenSize {
		return nil, spanErr(span, E(KindInvalidCredential, "auth: bearer token exceeds maximum size"))
	}

	hash := tokenHash(rawToken)
	if ident, ok := v.cache.Get(hash); ok {
		span.SetAttributes(attribute.Bool("auth.cache_hit", true))
		return ident, nil
	}
	span.SetAttributes(attribute.Bool("auth.cache_hit", false))

	verifier, err := v.resolveVerifier(ctx)
	if err != nil {
		return nil, spanErr(span, err)
	}

	idToken, err := verifier.Verify(oidc.ClientContext(ctx, v.client), rawToken)
	if err != nil {
		return nil, spanErr(span, Wrap(err, KindInvalidCredential, "auth: bearer token rejected"))
	}

	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, spanErr(span, Wrap(err, KindInvalidCredential, "auth: unreadable token claims"))
	}

	ident := &Identity{
		Subject:  idToken.Subject,
		Issuer:   idToken.Issuer,
		Audience: v.cfg.Audience,
		Claims:   claims,
	}
	if email, ok := claims["email"].(string); ok {
		ident.Email = email
	}

	v.enrich(ctx, ident)

	v.cache.Add(hash, ident)
	span.SetAttributes(
		attribute.String("auth.subject", ident.Subject),
		attribute.String("auth.role", ident.Role),
	)
	return ident, nil
}

// resolveVerifier picks the key-set endpoint (primary, then fallback) and
// builds the OIDC verifier once; subsequent calls reuse it.
func (v *BearerVerifier) resolveVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.verifier != nil {
		return v.verifier, nil
	}

	keySetURL, usedFallback, err := v.selectKeySetURL(ctx)
	if err != nil {
		return nil, err
	}
	if usedFallback {
		observability.KeySetFallbackTotal.Inc()
		v.logger.Warn("key-set primary endpoint unavailable, using fallback",
			"fallback_url", keySetURL)
	}

	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), v.client), keySetURL)
	v.verifier = oidc.NewVerifier(v.cfg.Issuer, keySet, &oidc.Config{
		ClientID: v.cfg.Audience,
	})
	v.fallback = usedFallback
	return v.verifier, nil
}

// selectKeySetURL probes the primary endpoint and falls back to the
// publishable-key-derived endpoint. Both unreachable is KindKeySetUnavailable.
func (v *BearerVerifier) selectKeySetURL(ctx context.Context) (string, bool, error) {
	if v.cfg.KeySetURL != "" {
		if err := v.probe(ctx, v.cfg.KeySetURL); err == nil {
			return v.cfg.KeySetURL, false, nil
		} else {
			v.logger.Warn("key-set probe failed", "url", v.cfg.KeySetURL, "error", err)
		}
	}

	fallbackURL := v.cfg.FallbackKeySetURL
	if fallbackURL == "" && v.cfg.PublishableKey != "" {
		derived, err := FallbackKeySetURL(v.cfg.PublishableKey)
		if err != nil {
			return "", false, err
		}
		fallbackURL = derived
	}
	if fallbackURL == "" {
		return "", false, E(KindKeySetUnavailable, "auth: key-set endpoint unreachable and no fallback configured")
	}
	if err := v.probe(ctx, fallbackURL); err != nil {
		return "", false, Wrap(err, KindKeySetUnavailable, "auth: primary and fallback key-set endpoints unreachable")
	}
	return fallbackURL, v.cfg.KeySetURL != "", nil
}

// probe issues a plain GET and requires a 2xx response. The body is drained
// up to 1 MB so the connection can be reused.
func (v *BearerVerifier) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("auth: building probe request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: key-set probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("auth: key-set probe returned status %d", resp.StatusCode)
	}
	return nil
}

// enrich resolves the local user record for a verified identity and attaches
// its role. Lookup failures are logged and swallowed; a role-less identity
// is still valid.
func (v *BearerVerifier) enrich(ctx context.Context, ident *Identity) {
	if v.users == nil {
		return
	}

	var (
		record *UserRecord
		err    error
	)
	switch {
	case isUUID(ident.Subject):
		record, err = v.users.FindByExternalID(ctx, ident.Subject)
	case strings.Contains(ident.Subject, "@"):
		record, err = v.users.FindByEmail(ctx, strings.ToLower(ident.Subject))
	default:
		return
	}
	if err != nil {
		v.logger.Warn("user enrichment lookup failed", "subject", ident.Subject, "error", err)
		return
	}
	if record == nil {
		return
	}

	ident.Role = record.DerivedRole()
	ident.IsAdmin = record.IsAdmin
	ident.UserID = &record.ID
	if ident.Email == "" {
		ident.Email = record.Email
	}
}

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// tokenHash is the cache key for a verified token, so raw tokens are never
// held in memory.
func tokenHash(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
