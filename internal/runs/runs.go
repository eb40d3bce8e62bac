// Package runs is the run-lifecycle collaborator: simple state
// bookkeeping for experimental sessions. The event engine only consults
// it to validate run ids; it never mutates run state on the engine's
// behalf.
package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracefold/tracefold/internal/model"
)

var (
	// ErrNotFound is returned when a run id is unknown to the registry.
	ErrNotFound = errors.New("runs: not found")

	// ErrStopped is returned for lifecycle transitions on a stopped run.
	ErrStopped = errors.New("runs: run already stopped")
)

// Registry is a thread-safe, in-memory run directory.
type Registry struct {
	logger *slog.Logger

	mu   sync.RWMutex
	runs map[uuid.UUID]model.Run
}

// NewRegistry creates an empty run registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger, runs: make(map[uuid.UUID]model.Run)}
}

// Create registers a new running run and returns it.
func (r *Registry) Create(_ context.Context, name string, metadata map[string]any) model.Run {
	now := time.Now().UTC()
	if metadata == nil {
		metadata = map[string]any{}
	}
	run := model.Run{
		ID:        uuid.New(),
		Name:      name,
		Status:    model.RunStatusRunning,
		StartedAt: now,
		Metadata:  metadata,
		CreatedAt: now,
	}

	r.mu.Lock()
	r.runs[run.ID] = run
	r.mu.Unlock()

	r.logger.Info("runs: created", "run_id", run.ID, "name", name)
	return run
}

// GetRun looks a run up by id.
func (r *Registry) GetRun(_ context.Context, runID uuid.UUID) (model.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[runID]
	if !ok {
		return model.Run{}, fmt.Errorf("runs: get %s: %w", runID, ErrNotFound)
	}
	return run, nil
}

// List returns all runs, most recently started first.
func (r *Registry) List(_ context.Context) []model.Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Stop marks a run stopped. Stopping twice is an error; stopped is a
// terminal state.
func (r *Registry) Stop(ctx context.Context, runID uuid.UUID) (model.Run, error) {
	return r.transition(runID, func(run *model.Run) error {
		if run.Status == model.RunStatusStopped {
			return ErrStopped
		}
		now := time.Now().UTC()
		run.Status = model.RunStatusStopped
		run.StoppedAt = &now
		return nil
	})
}

// Pause suspends a running run.
func (r *Registry) Pause(_ context.Context, runID uuid.UUID) (model.Run, error) {
	return r.transition(runID, func(run *model.Run) error {
		switch run.Status {
		case model.RunStatusRunning:
			run.Status = model.RunStatusPaused
			return nil
		case model.RunStatusStopped:
			return ErrStopped
		default:
			return nil // pausing a paused run is a no-op
		}
	})
}

// Resume returns a paused run to running.
func (r *Registry) Resume(_ context.Context, runID uuid.UUID) (model.Run, error) {
	return r.transition(runID, func(run *model.Run) error {
		switch run.Status {
		case model.RunStatusPaused:
			run.Status = model.RunStatusRunning
			return nil
		case model.RunStatusStopped:
			return ErrStopped
		default:
			return nil
		}
	})
}

// Delete removes the run from the registry. Idempotent.
func (r *Registry) Delete(_ context.Context, runID uuid.UUID) {
	r.mu.Lock()
	delete(r.runs, runID)
	r.mu.Unlock()
}

func (r *Registry) transition(runID uuid.UUID, apply func(*model.Run) error) (model.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return model.Run{}, fmt.Errorf("runs: transition %s: %w", runID, ErrNotFound)
	}
	if err := apply(&run); err != nil {
		return model.Run{}, err
	}
	r.runs[runID] = run
	return run, nil
}
