package tracefold

import (
	"log/slog"

	"github.com/tracefold/tracefold/internal/store"
)

// Option configures the App created by New.
type Option func(*resolvedOptions)

type resolvedOptions struct {
	port    int
	logger  *slog.Logger
	version string
	store   store.EventStore
}

// WithPort overrides the HTTP listen port from configuration.
func WithPort(port int) Option {
	return func(o *resolvedOptions) {
		o.port = port
	}
}

// WithLogger sets the structured logger used by all subsystems.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) {
		o.logger = logger
	}
}

// WithVersion sets the version string reported by /health and the MCP
// server. Defaults to "dev".
func WithVersion(version string) Option {
	return func(o *resolvedOptions) {
		o.version = version
	}
}

// WithStore injects a pre-built event store, bypassing the configured
// backend. Useful for embedding and tests.
func WithStore(st store.EventStore) Option {
	return func(o *resolvedOptions) {
		o.store = st
	}
}
