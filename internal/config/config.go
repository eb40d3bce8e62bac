// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends selectable via TRACEFOLD_STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Event store backend selection.
	StoreBackend string // "memory", "sqlite", or "postgres"
	SQLitePath   string // path to the sqlite database file
	DatabaseURL  string // Postgres URL, required for the postgres backend

	// Ingest rate limiting (per run id).
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("TRACEFOLD_PORT", 8080),
		ReadTimeout:         envDuration("TRACEFOLD_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("TRACEFOLD_WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBodyBytes: int64(envInt("TRACEFOLD_MAX_REQUEST_BODY_BYTES", 1*1024*1024)),
		StoreBackend:        envStr("TRACEFOLD_STORE_BACKEND", BackendMemory),
		SQLitePath:          envStr("TRACEFOLD_SQLITE_PATH", "tracefold.db"),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		RateLimitEnabled:    envBool("TRACEFOLD_RATE_LIMIT", true),
		RateLimitRPS:        envFloat("TRACEFOLD_RATE_LIMIT_RPS", 500),
		RateLimitBurst:      envInt("TRACEFOLD_RATE_LIMIT_BURST", 1000),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "tracefold"),
		LogLevel:            envStr("TRACEFOLD_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("config: unknown TRACEFOLD_STORE_BACKEND %q", c.StoreBackend)
	}
	if c.StoreBackend == BackendPostgres && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
	}
	if c.StoreBackend == BackendSQLite && c.SQLitePath == "" {
		return fmt.Errorf("config: TRACEFOLD_SQLITE_PATH must not be empty")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: TRACEFOLD_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return fmt.Errorf("config: rate limit rps and burst must be positive when enabled")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
