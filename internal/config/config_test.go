package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v", cfg.ReadTimeout)
	}
	if !cfg.RateLimitEnabled {
		t.Error("rate limiting should default to enabled")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TRACEFOLD_PORT", "9000")
	t.Setenv("TRACEFOLD_STORE_BACKEND", "sqlite")
	t.Setenv("TRACEFOLD_SQLITE_PATH", "/tmp/t.db")
	t.Setenv("TRACEFOLD_READ_TIMEOUT", "5s")
	t.Setenv("TRACEFOLD_RATE_LIMIT", "false")
	t.Setenv("TRACEFOLD_RATE_LIMIT_RPS", "12.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("StoreBackend = %q, want sqlite", cfg.StoreBackend)
	}
	if cfg.SQLitePath != "/tmp/t.db" {
		t.Errorf("SQLitePath = %q", cfg.SQLitePath)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.ReadTimeout)
	}
	if cfg.RateLimitEnabled {
		t.Error("rate limiting should be disabled")
	}
	if cfg.RateLimitRPS != 12.5 {
		t.Errorf("RateLimitRPS = %v, want 12.5", cfg.RateLimitRPS)
	}
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("TRACEFOLD_PORT", "not-a-number")
	t.Setenv("TRACEFOLD_READ_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("malformed port should fall back to default, got %d", cfg.Port)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("malformed duration should fall back to default, got %v", cfg.ReadTimeout)
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("TRACEFOLD_STORE_BACKEND", "dynamodb")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestValidatePostgresRequiresDSN(t *testing.T) {
	t.Setenv("TRACEFOLD_STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/tracefold")
	if _, err := Load(); err != nil {
		t.Fatalf("Load with DSN: %v", err)
	}
}

func TestValidateRateLimitBounds(t *testing.T) {
	t.Setenv("TRACEFOLD_RATE_LIMIT", "true")
	t.Setenv("TRACEFOLD_RATE_LIMIT_RPS", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative rps with limiting enabled")
	}

	t.Setenv("TRACEFOLD_RATE_LIMIT", "false")
	if _, err := Load(); err != nil {
		t.Fatalf("negative rps should be ignored when limiting is disabled: %v", err)
	}
}
