package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tracefold/tracefold/internal/analyze"
	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/ratelimit"
	"github.com/tracefold/tracefold/internal/runs"
	"github.com/tracefold/tracefold/internal/store"
	"github.com/tracefold/tracefold/internal/stream"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	registry            *runs.Registry
	store               store.EventStore
	aggregator          *stream.Aggregator
	analyzer            *analyze.Analyzer
	limiter             ratelimit.Limiter
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Limiter may be nil (no rate limiting).
type HandlersDeps struct {
	Registry            *runs.Registry
	Store               store.EventStore
	Aggregator          *stream.Aggregator
	Analyzer            *analyze.Analyzer
	Limiter             ratelimit.Limiter
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	limiter := d.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	return &Handlers{
		registry:            d.Registry,
		store:               d.Store,
		aggregator:          d.Aggregator,
		analyzer:            d.Analyzer,
		limiter:             limiter,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// writeInternalError logs the underlying error and returns a generic
// 500 so internals never leak into responses.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}
