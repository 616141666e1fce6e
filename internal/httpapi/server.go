// Package httpapi assembles the HTTP route tree: the MCP endpoint, the
// OAuth login routes, the claim endpoint and the operational endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"devbridge-go/internal/config"
	"devbridge-go/internal/credentials"
	"devbridge-go/internal/oauth"
	"devbridge-go/internal/observability"
)

// SessionRouter serves /mcp and answers whether a session id is live.
type SessionRouter interface {
	http.Handler
	Known(sessionID string) bool
}

// Deps wires the route tree. OAuth and Observability may be nil.
type Deps struct {
	Config        *config.Config
	Sessions      SessionRouter
	Claimer       *credentials.Claimer
	OAuth         *oauth.Handlers
	Observability *observability.Manager
	Logger        *zap.Logger
}

type Server struct {
	cfg           *config.Config
	sessions      SessionRouter
	claimer       *credentials.Claimer
	oauth         *oauth.Handlers
	observability *observability.Manager
	logger        *zap.Logger
	claimLimiter  *ClientRateLimiter
	loginLimiter  *ClientRateLimiter
	router        chi.Router
}

func NewServer(d Deps) *Server {
	s := &Server{
		cfg:           d.Config,
		sessions:      d.Sessions,
		claimer:       d.Claimer,
		oauth:         d.OAuth,
		observability: d.Observability,
		logger:        d.Logger.Named("httpapi"),
		claimLimiter:  NewClientRateLimiter(d.Config.ClaimRateLimit),
		loginLimiter:  NewClientRateLimiter(d.Config.LoginRateLimit),
		router:        chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	if s.observability != nil {
		s.router.Use(s.observability.HTTPMiddleware())
	}
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestIDLoggerMiddleware(s.logger.Sugar()))
	s.router.Use(httpLoggingMiddleware(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(corsMiddleware(s.cfg.FrontendURL))

	if s.sessions != nil {
		s.router.Handle("/mcp", s.sessions)
	}

	if s.oauth != nil {
		// Every login issues a state token that is held until it expires.
		login := s.router.With(s.loginLimiter.Middleware(func(w http.ResponseWriter, _ *http.Request) {
			s.writeError(w, http.StatusTooManyRequests, "too many login attempts, retry later")
		}))
		if s.cfg.GitHub.Flow == config.FlowRedirect {
			login.Get("/github/login", s.oauth.GitHubLogin())
			s.router.Get(s.cfg.GitHub.CallbackPath, s.oauth.GitHubCallback())
		}
		login.Get("/clickup/login", s.oauth.ClickUpLogin())
		s.router.Get(s.cfg.ClickUp.CallbackPath, s.oauth.ClickUpCallback())
	}

	s.router.Post("/api/claim-session", s.handleClaimSession)

	if s.observability != nil {
		health := s.observability.Health()
		s.router.Get("/healthz", health.HealthzHandler())
		s.router.Get("/readyz", health.ReadyzHandler())
		if metrics := s.observability.Metrics(); metrics != nil {
			s.router.Handle("/metrics", metrics.Handler())
		}
	} else {
		ok := func(w http.ResponseWriter, _ *http.Request) {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}
		s.router.Get("/healthz", ok)
		s.router.Get("/readyz", ok)
	}

	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
