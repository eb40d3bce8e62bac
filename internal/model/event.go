// Package model defines the core domain types for tracefold.
//
// Events are the unit of storage and analysis: immutable, enriched
// instrumentation records ordered by (timestamp, event_id). Types use
// strong typing (UUIDs, explicit pointer-nullability for derived fields)
// and avoid interface{} outside the free-form metadata payload.
package model

import (
	"strings"

	"github.com/google/uuid"
)

// EventRecord is one captured, enriched instrumentation occurrence.
// Append-only. Never mutated after insertion; removed only by whole-run
// deletion.
type EventRecord struct {
	EventID   string    `json:"event_id"`
	RunID     uuid.UUID `json:"run_id"`
	EventName string    `json:"event_name"`

	// Timestamp is microseconds since the Unix epoch, from a monotonic
	// source. Not strictly increasing across concurrent producers; ties
	// are broken by EventID.
	Timestamp int64 `json:"timestamp"`

	Measurements map[string]float64 `json:"measurements,omitempty"`
	Metadata     map[string]any     `json:"metadata,omitempty"`

	// Derived fields, computed once at enrichment time. Nil means the
	// enrichment step could not determine a value.
	LatencyMs *float64 `json:"latency_ms,omitempty"`
	CostUSD   *float64 `json:"cost_usd,omitempty"`
	Success   *bool    `json:"success,omitempty"`
}

// Key is the total ordering key for an event within a run.
type Key struct {
	Timestamp int64
	EventID   string
}

// Key returns the event's ordering key.
func (e EventRecord) Key() Key {
	return Key{Timestamp: e.Timestamp, EventID: e.EventID}
}

// Less reports whether k orders strictly before other.
func (k Key) Less(other Key) bool {
	if k.Timestamp != other.Timestamp {
		return k.Timestamp < other.Timestamp
	}
	return k.EventID < other.EventID
}

// Before reports whether e orders strictly before other in
// (timestamp, event_id) order.
func (e EventRecord) Before(other EventRecord) bool {
	return e.Key().Less(other.Key())
}

// Category returns the first segment of the dotted event name, used for
// per-category counting ("llm.request.completed" -> "llm"). Events with
// no dot are their own category.
func (e EventRecord) Category() string {
	if i := strings.IndexByte(e.EventName, '.'); i > 0 {
		return e.EventName[:i]
	}
	return e.EventName
}

// MicrosPerSecond converts between the stored time unit and seconds.
const MicrosPerSecond = 1_000_000
