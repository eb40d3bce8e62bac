// Package enrich turns a raw instrumentation call into a structured
// event record. The transform is pure: given the same inputs and clock
// it always produces the same record, so enrichment can run on any
// producer goroutine before the insert/update pair.
package enrich

import (
	"time"

	"github.com/google/uuid"

	"github.com/tracefold/tracefold/internal/model"
)

// Measurement keys recognized for derived fields.
const (
	keyDurationMs = "duration_ms"
	keyLatencyMs  = "latency_ms"
	keyCostUSD    = "cost_usd"
)

// Input is one raw instrumentation call.
type Input struct {
	EventName    string             `json:"event_name"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
	Metadata     map[string]any     `json:"metadata,omitempty"`

	// Timestamp overrides the capture time (microseconds since epoch).
	// Zero means "now".
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Event builds an enriched, immutable record from a raw call. A fresh
// event id is assigned; latency, cost, and tri-state success are derived
// once here and stored alongside the payload.
func Event(runID uuid.UUID, in Input, now time.Time) model.EventRecord {
	ts := in.Timestamp
	if ts == 0 {
		ts = now.UnixMicro()
	}

	e := model.EventRecord{
		EventID:      uuid.NewString(),
		RunID:        runID,
		EventName:    in.EventName,
		Timestamp:    ts,
		Measurements: in.Measurements,
		Metadata:     in.Metadata,
	}
	e.LatencyMs = latency(in.Measurements)
	e.CostUSD = cost(in.Measurements, in.Metadata)
	e.Success = outcome(in.Metadata)
	return e
}

// latency prefers an explicit latency_ms measurement, falling back to
// duration_ms.
func latency(m map[string]float64) *float64 {
	if v, ok := m[keyLatencyMs]; ok {
		return &v
	}
	if v, ok := m[keyDurationMs]; ok {
		return &v
	}
	return nil
}

func cost(m map[string]float64, metadata map[string]any) *float64 {
	if v, ok := m[keyCostUSD]; ok {
		return &v
	}
	if v, ok := metadata[keyCostUSD]; ok {
		if f, ok := v.(float64); ok {
			return &f
		}
	}
	return nil
}

// outcome derives the tri-state success flag: an explicit boolean
// "success" wins; otherwise the presence of an "error" key means
// failure; otherwise the outcome is unknown (nil).
func outcome(metadata map[string]any) *bool {
	if v, ok := metadata["success"]; ok {
		if b, ok := v.(bool); ok {
			return &b
		}
	}
	if _, ok := metadata["error"]; ok {
		f := false
		return &f
	}
	return nil
}
