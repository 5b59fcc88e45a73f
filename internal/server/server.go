package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/demewebsolutions/truai/internal/audit"
	"github.com/demewebsolutions/truai/internal/orchestrator"
	"github.com/demewebsolutions/truai/internal/otel"
)

const defaultTimeout = 60 * time.Second

// Server holds all dependencies for the HTTP API.
type Server struct {
	router     *chi.Mux
	engine     *orchestrator.Orchestrator
	auditStore *audit.Store
	apiKeys    map[string]string
	adminKey   string
	rateRPS    int
	rateBurst  int
	startTime  time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithRateLimit sets the per-user rate limit; rps <= 0 disables it.
func WithRateLimit(rps, burst int) Option {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

// NewServer builds a Server with the required dependencies.
func NewServer(
	engine *orchestrator.Orchestrator,
	auditStore *audit.Store,
	apiKeys map[string]string,
	adminKey string,
	opts ...Option,
) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		engine:     engine,
		auditStore: auditStore,
		apiKeys:    apiKeys,
		adminKey:   adminKey,
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	// Authenticated API group
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys, s.adminKey))
		r.Use(RateLimitMiddleware(s.rateRPS, s.rateBurst))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/v1/tasks", s.handleTaskCreate)
		r.Get("/v1/tasks", s.handleTaskList)
		r.Get("/v1/tasks/{id}", s.handleTaskGet)
		r.Post("/v1/tasks/{id}/approve", s.handleTaskApprove)

		// Admin-only unlock path for LOCKED tasks.
		r.With(AdminOnly).Post("/v1/tasks/{id}/override", s.handleTaskOverride)

		r.Get("/v1/audit", s.handleAuditList)
		r.Get("/v1/audit/{id}/verify", s.handleAuditVerify)
	})

	return r
}
