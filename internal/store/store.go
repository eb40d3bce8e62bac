// Package store provides per-run ordered event storage.
//
// An EventStore keeps, for each run, an append-only collection of event
// records totally ordered by (timestamp, event_id). The primary backend
// is in-memory (Memory); sqlite and postgres backends implement the same
// interface for deployments that need the history to survive a restart.
// Backends are selected by configuration at startup, never by runtime
// type inspection.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tracefold/tracefold/internal/model"
)

var (
	// ErrRunNotFound is returned by writes that reference a run with no
	// open container (never opened, or already deleted).
	ErrRunNotFound = errors.New("store: run not found")

	// ErrRunExists is returned by Open when a container already exists
	// for the run. Open never resets existing data; callers that want a
	// fresh container must Delete first.
	ErrRunExists = errors.New("store: run already exists")
)

// Predicate filters events after window selection. Predicates are not
// index-accelerated; they always run after the window has been cut.
type Predicate func(model.EventRecord) bool

// EventStore is the per-run ordered event container.
//
// Read operations treat an unknown run the same as a run with zero
// events and return empty results, keeping the read path free of
// "no experiment" failures. Only Insert distinguishes a missing
// container, failing with ErrRunNotFound.
type EventStore interface {
	// Open allocates an empty container for the run. A second Open for
	// the same run fails with ErrRunExists.
	Open(ctx context.Context, runID uuid.UUID) error

	// Insert adds one record keyed by (timestamp, event_id). Out-of-order
	// arrival is fine; ordering is restored by the key, not arrival order.
	Insert(ctx context.Context, runID uuid.UUID, event model.EventRecord) error

	// GetAll returns every record for the run in ascending key order.
	GetAll(ctx context.Context, runID uuid.UUID) ([]model.EventRecord, error)

	// Query returns records matching all set filter predicates, in
	// ascending key order. An empty filter set is equivalent to GetAll.
	Query(ctx context.Context, runID uuid.UUID, f model.Filters) ([]model.EventRecord, error)

	// QueryWindow cuts a window (trailing, last-N, or explicit range) and
	// then applies the optional predicate. Malformed window specs select
	// nothing rather than erroring.
	QueryWindow(ctx context.Context, runID uuid.UUID, q model.WindowQuery, pred Predicate) ([]model.EventRecord, error)

	// WindowedMetrics computes sliding-window aggregates over the run's
	// full history. Non-positive sizes yield an empty result.
	WindowedMetrics(ctx context.Context, runID uuid.UUID, windowSize, stepSize int64) ([]model.WindowResult, error)

	// Delete removes all records and the container itself. Idempotent:
	// deleting an unknown run succeeds silently.
	Delete(ctx context.Context, runID uuid.UUID) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Matches reports whether the event satisfies every set predicate in f.
// Shared by backends that cannot push a given predicate down to their
// index.
func Matches(e model.EventRecord, f model.Filters) bool {
	if f.EventName != nil && e.EventName != *f.EventName {
		return false
	}
	if f.Success != nil {
		if e.Success == nil || *e.Success != *f.Success {
			return false
		}
	}
	if f.From != nil && e.Timestamp < *f.From {
		return false
	}
	if f.To != nil && e.Timestamp > *f.To {
		return false
	}
	for key, want := range f.Fields {
		if !fieldMatches(e, key, want) {
			return false
		}
	}
	return true
}

func fieldMatches(e model.EventRecord, key string, want any) bool {
	switch key {
	case "event_id":
		return e.EventID == want
	case "event_name":
		return e.EventName == want
	case "run_id":
		return e.RunID.String() == want
	}
	if v, ok := e.Measurements[key]; ok {
		if f, ok := toFloat(want); ok {
			return v == f
		}
		return false
	}
	got, ok := e.Metadata[key]
	if !ok {
		return false
	}
	// JSON round-trips turn ints into float64; compare numerics loosely.
	if gf, ok := toFloat(got); ok {
		if wf, ok := toFloat(want); ok {
			return gf == wf
		}
		return false
	}
	return got == want
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
