package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/tracefold/tracefold/internal/analyze"
	"github.com/tracefold/tracefold/internal/ratelimit"
	"github.com/tracefold/tracefold/internal/runs"
	"github.com/tracefold/tracefold/internal/store"
	"github.com/tracefold/tracefold/internal/stream"
)

// Server is the tracefold HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Optional fields (nil-safe): Limiter, MCPServer.
type ServerConfig struct {
	Registry   *runs.Registry
	Store      store.EventStore
	Aggregator *stream.Aggregator
	Analyzer   *analyze.Analyzer
	Logger     *slog.Logger

	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Registry:            cfg.Registry,
		Store:               cfg.Store,
		Aggregator:          cfg.Aggregator,
		Analyzer:            cfg.Analyzer,
		Limiter:             cfg.Limiter,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Run lifecycle.
	mux.HandleFunc("POST /v1/runs", h.HandleCreateRun)
	mux.HandleFunc("GET /v1/runs", h.HandleListRuns)
	mux.HandleFunc("GET /v1/runs/{run_id}", h.HandleGetRun)
	mux.HandleFunc("POST /v1/runs/{run_id}/stop", h.HandleStopRun)
	mux.HandleFunc("POST /v1/runs/{run_id}/pause", h.HandlePauseRun)
	mux.HandleFunc("POST /v1/runs/{run_id}/resume", h.HandleResumeRun)
	mux.HandleFunc("DELETE /v1/runs/{run_id}", h.HandleDeleteRun)

	// Ingest and query.
	mux.HandleFunc("POST /v1/runs/{run_id}/events", h.HandleIngestEvent)
	mux.HandleFunc("POST /v1/runs/{run_id}/query", h.HandleQueryEvents)
	mux.HandleFunc("POST /v1/runs/{run_id}/window", h.HandleWindowEvents)

	// Metrics.
	mux.HandleFunc("GET /v1/runs/{run_id}/metrics", h.HandleRunMetrics)
	mux.HandleFunc("GET /v1/runs/{run_id}/metrics/live", h.HandleLiveMetrics)
	mux.HandleFunc("POST /v1/runs/{run_id}/metrics/reset", h.HandleResetLiveMetrics)
	mux.HandleFunc("GET /v1/runs/{run_id}/metrics/windows", h.HandleWindowedMetrics)
	mux.HandleFunc("POST /v1/compare", h.HandleCompareRuns)

	// Export.
	mux.HandleFunc("GET /v1/runs/{run_id}/export", h.HandleExportRun)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no middleware concerns beyond the shared chain).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID -> tracing -> logging -> recovery -> handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
