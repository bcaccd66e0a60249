package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lukewarren/shelfd/pkg/auth"
	"github.com/lukewarren/shelfd/pkg/httputil"
	"github.com/lukewarren/shelfd/pkg/middleware"
	"github.com/lukewarren/shelfd/pkg/observability"
)

// maxRequestBody bounds request bodies. No endpoint accepts more than a
// small JSON document.
const maxRequestBody = 1 << 20

// ServerConfig collects the server's collaborators.
type ServerConfig struct {
	AuthHandlers    *AuthHandlers
	CatalogHandlers *CatalogHandlers
	Authenticator   *middleware.Authenticator
	Gate            *auth.ServiceGate
	Logger          *observability.Logger

	// AllowedOrigins enables CORS headers for the listed origins. Empty
	// leaves CORS off.
	AllowedOrigins []string
}

// Server is the API server. Routing happens in three layers: the
// credential-issuance endpoints sit in front of authentication, the rest
// of /api/v1 requires a resolved identity, and mutating catalog routes
// additionally require the admin decision.
type Server struct {
	router *mux.Router
}

// NewServer creates the API server and wires its routes.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{router: mux.NewRouter()}
	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupRoutes(cfg ServerConfig) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Observe(cfg.Logger))
	s.router.Use(middleware.Recover(cfg.Logger))
	if len(cfg.AllowedOrigins) > 0 {
		s.router.Use(httputil.CORSMiddleware(cfg.AllowedOrigins))
	}
	s.router.Use(httputil.MaxBytesMiddleware(maxRequestBody))
	s.router.Use(httputil.ContentTypeMiddleware)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Credential issuance, rate limited instead of authenticated.
	cfg.AuthHandlers.RegisterRoutes(v1)

	protected := v1.NewRoute().Subrouter()
	protected.Use(cfg.Authenticator.Handler)
	protected.HandleFunc("/auth/me", cfg.AuthHandlers.me).Methods("GET")

	if cfg.CatalogHandlers != nil {
		cfg.CatalogHandlers.RegisterReadRoutes(protected)

		admin := protected.NewRoute().Subrouter()
		admin.Use(middleware.RequireAdmin(cfg.Gate))
		cfg.CatalogHandlers.RegisterWriteRoutes(admin)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional registrations.
func (s *Server) Router() *mux.Router {
	return s.router
}
