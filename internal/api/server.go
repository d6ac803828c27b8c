package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openproctor/kestrel/internal/assess"
	"github.com/openproctor/kestrel/internal/domain"
	"github.com/openproctor/kestrel/internal/model"
	"github.com/openproctor/kestrel/internal/signal"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, assessor *assess.Assessor, bank *model.Bank, signals *signal.Engine, version string) *Server {
	handler := NewHandler(repo, cache, bus, assessor, bank, signals, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Session risk assessment
		r.Post("/assess", handler.Assess)

		// Feature extraction (debugging / integration aid)
		r.Post("/features/extract", handler.ExtractFeatures)

		// Assessment and session retrieval
		r.Get("/assessments/{id}", handler.GetAssessment)
		r.Get("/sessions/{id}", handler.GetSession)

		// Model bank management
		r.Get("/models", handler.ListModels)
		r.Post("/models/{domain}/seed", handler.SeedModels)
		r.Post("/models/{domain}/{model}/train", handler.TrainModel)
		r.Post("/models/{domain}/{model}/score", handler.ScoreModel)

		// Suspicion signal management
		r.Get("/signals", handler.ListSignals)
		r.Get("/signals/{id}", handler.GetSignal)
		r.Post("/signals", handler.CreateSignal)
		r.Delete("/signals/{id}", handler.DeleteSignal)
		r.Post("/signals/reload", handler.ReloadSignals)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
