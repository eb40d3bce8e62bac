package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of an experimental run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusPaused  RunStatus = "paused"
	RunStatusStopped RunStatus = "stopped"
)

// Run is an isolated experimental session scoping a set of events.
// The engine only reads RunID to scope storage operations; lifecycle
// state is owned by the runs registry.
type Run struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	Status    RunStatus      `json:"status"`
	StartedAt time.Time      `json:"started_at"`
	StoppedAt *time.Time     `json:"stopped_at,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Active reports whether the run still accepts events.
func (r Run) Active() bool {
	return r.Status == RunStatusRunning
}
