// Package tracefold is the public API for embedding the tracefold
// event time-series server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := tracefold.New(
//	    tracefold.WithVersion(version),
//	    tracefold.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: tracefold (root)
// imports internal/*, but internal/* never imports tracefold (root).
package tracefold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/tracefold/tracefold/internal/analyze"
	"github.com/tracefold/tracefold/internal/config"
	"github.com/tracefold/tracefold/internal/mcp"
	"github.com/tracefold/tracefold/internal/ratelimit"
	"github.com/tracefold/tracefold/internal/runs"
	"github.com/tracefold/tracefold/internal/server"
	"github.com/tracefold/tracefold/internal/store"
	"github.com/tracefold/tracefold/internal/stream"
	"github.com/tracefold/tracefold/internal/telemetry"
)

// App is the tracefold server lifecycle. Construct with New(), run with
// Run(). App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	store        store.EventStore
	registry     *runs.Registry
	aggregator   *stream.Aggregator
	analyzer     *analyze.Analyzer
	limiter      ratelimit.Limiter
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the tracefold server. It opens the configured store
// backend and wires all subsystems, but does not start any goroutines
// or accept HTTP connections. Call Run() for that.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("tracefold starting", "version", version, "port", cfg.Port, "backend", cfg.StoreBackend)

	ctx := context.Background()

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	eventStore := o.store
	if eventStore == nil {
		eventStore, err = openStore(ctx, cfg, logger)
		if err != nil {
			_ = otelShutdown(ctx)
			return nil, err
		}
	}

	registry := runs.NewRegistry(logger)
	aggregator := stream.New(registry, logger)
	analyzer := analyze.New(eventStore, logger)

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	// Register observable gauges after the meter provider exists.
	aggregator.RegisterMetrics()
	if mem, ok := eventStore.(*store.Memory); ok {
		mem.RegisterMetrics()
	}

	mcpSrv := mcp.New(registry, eventStore, analyzer, version, logger)

	srv := server.New(server.ServerConfig{
		Registry:            registry,
		Store:               eventStore,
		Aggregator:          aggregator,
		Analyzer:            analyzer,
		Logger:              logger,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	return &App{
		cfg:          cfg,
		store:        eventStore,
		registry:     registry,
		aggregator:   aggregator,
		analyzer:     analyzer,
		limiter:      limiter,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.EventStore, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemory(logger), nil
	case config.BackendSQLite:
		s, err := store.NewSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		return s, nil
	case config.BackendPostgres:
		s, err := store.NewPostgres(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains the HTTP server and releases store, limiter, and
// telemetry resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("tracefold shutting down")

	if err := a.srv.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	_ = a.limiter.Close()
	if err := a.store.Close(ctx); err != nil {
		a.logger.Error("store close error", "error", err)
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("tracefold stopped")
	return nil
}

// Handler exposes the root HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}
