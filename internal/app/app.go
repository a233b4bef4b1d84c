package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/templar/internal/api"
	"github.com/foxzi/templar/internal/cache"
	"github.com/foxzi/templar/internal/config"
	"github.com/foxzi/templar/internal/editor"
	"github.com/foxzi/templar/internal/metrics"
	"github.com/foxzi/templar/internal/remote"
	"github.com/foxzi/templar/internal/store"
	"github.com/foxzi/templar/internal/sync"
)

// App is the main application
type App struct {
	config        *config.Config
	db            *bolt.DB
	cache         *cache.Store
	writer        *cache.Writer
	editors       *editor.Store
	orchestrator  *sync.Orchestrator
	apiServer     *api.Server
	metricsServer *metrics.Server
	collector     *metrics.Collector
	logger        *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	cacheStore, err := cache.NewStore(db, logger.With("component", "cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to create template cache: %w", err)
	}

	editorStore, err := editor.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create editor store: %w", err)
	}

	settings, err := sync.NewSettings(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync settings: %w", err)
	}

	writer := cache.NewWriter(cacheStore, cfg.Sync.WriteDelay, logger.With("component", "writer"))

	client := remote.NewClient(logger.With("component", "remote")).
		SetTimeout(cfg.Remote.RequestTimeout)

	orch := sync.NewOrchestrator(
		cacheStore,
		editorStore,
		client,
		settings,
		sync.Config{
			Interval: cfg.Sync.Interval,
			Pacing:   cfg.Sync.Pacing,
		},
		logger.With("component", "sync"),
	)

	apiServer := api.NewServer(cacheStore, writer, editorStore, orch, &cfg.API, logger.With("component", "api"))

	a := &App{
		config:       cfg,
		db:           db,
		cache:        cacheStore,
		writer:       writer,
		editors:      editorStore,
		orchestrator: orch,
		apiServer:    apiServer,
		logger:       logger,
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		a.collector = metrics.NewCollector(m, cacheStore, 0)
	}

	return a, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting templar",
		"api_addr", a.config.API.ListenAddr,
		"storage", a.config.Storage.Path,
		"sync_interval", a.config.Sync.Interval,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start the auto-sync loop
	a.orchestrator.Start(ctx)

	if a.collector != nil {
		a.collector.Start(ctx)
	}

	// Channel to collect errors
	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop the auto-sync loop first; an in-flight cycle finishes its batch
	a.orchestrator.Stop()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if a.collector != nil {
		a.collector.Stop()
	}

	// Flush pending edits before closing storage
	a.writer.Close()

	if err := a.db.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
