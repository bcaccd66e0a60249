package auth

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/lukewarren/shelfd/pkg/audit"
	"github.com/lukewarren/shelfd/pkg/contextkeys"
	"github.com/lukewarren/shelfd/pkg/observability"
)

// ServiceGateConfig configures the shared-secret service bypass.
type ServiceGateConfig struct {
	// Secret is the bearer value recognized as the service principal.
	// Empty disables recognition entirely.
	Secret string

	// HeaderName and HeaderValue are the hardening header required on top
	// of the bearer match. Both must be configured or the bypass can never
	// authorize.
	HeaderName  string
	HeaderValue string

	// AllowedIPs is the source-address allow-list. Empty means no address
	// is allowed, so the bypass can never authorize.
	AllowedIPs []string
}

// ServiceGate recognizes the shared-secret service principal and hardens
// it with a second header secret plus an IP allow-list. Missing hardening
// configuration means Authorize always denies; recognition alone never
// grants anything.
type ServiceGate struct {
	cfg    ServiceGateConfig
	logger *observability.Logger
	sink   audit.Logger
}

// NewServiceGate creates a gate. sink may be nil; bypass grants are then
// only counted, not audited.
func NewServiceGate(cfg ServiceGateConfig, sink audit.Logger, logger *observability.Logger) *ServiceGate {
	return &ServiceGate{cfg: cfg, logger: logger, sink: sink}
}

// Recognize reports whether the bearer value is the shared service secret.
// Comparison is constant-time.
func (g *ServiceGate) Recognize(bearer string) bool {
	if g.cfg.Secret == "" || bearer == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(bearer), []byte(g.cfg.Secret)) == 1
}

// ServiceIdentity returns the distinguished service principal. It never has
// a user record.
func (g *ServiceGate) ServiceIdentity() *Identity {
	return &Identity{Subject: "service", Role: RoleService}
}

// Authorize applies the hardening checks to a request already recognized as
// the service principal: the hardening header must carry the second secret
// AND the source address must be on the allow-list. Either check failing,
// or either being unconfigured, denies with KindForbidden.
func (g *ServiceGate) Authorize(r *http.Request) error {
	if g.cfg.HeaderName == "" || g.cfg.HeaderValue == "" {
		return E(KindForbidden, "auth: service bypass hardening header not configured")
	}
	got := r.Header.Get(g.cfg.HeaderName)
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(g.cfg.HeaderValue)) != 1 {
		g.logger.Warn("service bypass denied: hardening header mismatch", "remote_addr", r.RemoteAddr)
		return E(KindForbidden, "auth: service bypass denied")
	}

	ip := sourceIP(r)
	if !g.ipAllowed(ip) {
		g.logger.Warn("service bypass denied: source address not allowed", "ip", ip)
		return E(KindForbidden, "auth: service bypass denied")
	}

	g.recordBypass(r.Context(), ip)
	return nil
}

func (g *ServiceGate) ipAllowed(ip string) bool {
	if len(g.cfg.AllowedIPs) == 0 || ip == "" {
		return false
	}
	for _, allowed := range g.cfg.AllowedIPs {
		if strings.TrimSpace(allowed) == ip {
			return true
		}
	}
	return false
}

// recordBypass counts the grant and writes an audit record without blocking
// the request. Sink failures are logged and dropped.
func (g *ServiceGate) recordBypass(ctx context.Context, ip string) {
	observability.ServiceBypassTotal.Inc()
	if g.sink == nil {
		return
	}
	requestID := contextkeys.GetRequestID(ctx)
	go func() {
		err := g.sink.LogAuthorization(context.Background(), audit.EventTypeServiceBypass,
			nil, audit.ResourceTypeService, ip, audit.EventStatusSuccess,
			"service bypass granted (request "+requestID+")")
		if err != nil {
			g.logger.Warn("service bypass audit write failed", "error", err)
		}
	}()
}

// sourceIP resolves the caller's address, preferring the first entry of
// X-Forwarded-For when present.
func sourceIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
