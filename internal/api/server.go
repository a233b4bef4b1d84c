package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/templar/internal/cache"
	"github.com/foxzi/templar/internal/config"
	"github.com/foxzi/templar/internal/editor"
	"github.com/foxzi/templar/internal/metrics"
	"github.com/foxzi/templar/internal/sync"
)

// Server is the control-plane HTTP server the browser UI talks to.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cache      *cache.Store
	writer     *cache.Writer
	editors    *editor.Store
	orch       *sync.Orchestrator
	config     *config.APIConfig
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new control-plane server
func NewServer(c *cache.Store, w *cache.Writer, e *editor.Store, o *sync.Orchestrator, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cache:     c,
		writer:    w,
		editors:   e,
		orch:      o,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListTemplates)
			r.Post("/", s.handleOpenTemplate)
			r.Get("/{id}", s.handleGetTemplate)
			r.Put("/{id}", s.handleUpdateTemplate)
			r.Delete("/{id}", s.handleDeleteTemplate)
			r.Post("/{id}/variables", s.handleTemplateVariables)
		})

		r.Route("/editors", func(r chi.Router) {
			r.Get("/", s.handleListEditors)
			r.Post("/", s.handleCreateEditor)
			r.Get("/{id}", s.handleGetEditor)
			r.Put("/{id}", s.handleUpdateEditor)
			r.Delete("/{id}", s.handleDeleteEditor)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/", s.handleTriggerSync)
			r.Get("/", s.handleSyncStatus)
			r.Get("/ws", s.handleSyncStream)
			r.Get("/auto", s.handleGetAutoSync)
			r.Put("/auto", s.handleSetAutoSync)
		})
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
	}

	s.logger.Info("starting control API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down control API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
