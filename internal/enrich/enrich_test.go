package enrich

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

var capturedAt = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestEventAssignsIdentityAndTimestamp(t *testing.T) {
	runID := uuid.New()
	e := Event(runID, Input{EventName: "llm.call"}, capturedAt)

	if e.EventID == "" {
		t.Fatal("expected a generated event id")
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		t.Fatalf("event id is not a uuid: %v", err)
	}
	if e.RunID != runID {
		t.Errorf("RunID = %s, want %s", e.RunID, runID)
	}
	if e.Timestamp != capturedAt.UnixMicro() {
		t.Errorf("Timestamp = %d, want capture time %d", e.Timestamp, capturedAt.UnixMicro())
	}
}

func TestEventExplicitTimestampWins(t *testing.T) {
	e := Event(uuid.New(), Input{EventName: "llm.call", Timestamp: 12345}, capturedAt)
	if e.Timestamp != 12345 {
		t.Errorf("Timestamp = %d, want 12345", e.Timestamp)
	}
}

func TestEventUniqueIDs(t *testing.T) {
	runID := uuid.New()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		e := Event(runID, Input{EventName: "llm.call"}, capturedAt)
		if seen[e.EventID] {
			t.Fatalf("duplicate event id %s", e.EventID)
		}
		seen[e.EventID] = true
	}
}

func TestLatencyPrefersExplicitOverDuration(t *testing.T) {
	e := Event(uuid.New(), Input{
		EventName:    "llm.call",
		Measurements: map[string]float64{"latency_ms": 12, "duration_ms": 99},
	}, capturedAt)
	if e.LatencyMs == nil || *e.LatencyMs != 12 {
		t.Errorf("LatencyMs = %v, want 12", e.LatencyMs)
	}

	e = Event(uuid.New(), Input{
		EventName:    "llm.call",
		Measurements: map[string]float64{"duration_ms": 99},
	}, capturedAt)
	if e.LatencyMs == nil || *e.LatencyMs != 99 {
		t.Errorf("LatencyMs = %v, want duration fallback 99", e.LatencyMs)
	}

	e = Event(uuid.New(), Input{EventName: "llm.call"}, capturedAt)
	if e.LatencyMs != nil {
		t.Errorf("LatencyMs = %v, want nil", *e.LatencyMs)
	}
}

func TestCostFromMeasurementsOrMetadata(t *testing.T) {
	e := Event(uuid.New(), Input{
		EventName:    "llm.call",
		Measurements: map[string]float64{"cost_usd": 0.004},
	}, capturedAt)
	if e.CostUSD == nil || *e.CostUSD != 0.004 {
		t.Errorf("CostUSD = %v, want 0.004", e.CostUSD)
	}

	e = Event(uuid.New(), Input{
		EventName: "llm.call",
		Metadata:  map[string]any{"cost_usd": 0.007},
	}, capturedAt)
	if e.CostUSD == nil || *e.CostUSD != 0.007 {
		t.Errorf("CostUSD = %v, want metadata fallback 0.007", e.CostUSD)
	}
}

func TestOutcomeTriState(t *testing.T) {
	// Explicit success flag wins.
	e := Event(uuid.New(), Input{
		EventName: "llm.call",
		Metadata:  map[string]any{"success": true, "error": "timeout"},
	}, capturedAt)
	if e.Success == nil || !*e.Success {
		t.Error("explicit success=true should win over error key")
	}

	e = Event(uuid.New(), Input{
		EventName: "llm.call",
		Metadata:  map[string]any{"success": false},
	}, capturedAt)
	if e.Success == nil || *e.Success {
		t.Error("expected success=false")
	}

	// An error key alone means failure.
	e = Event(uuid.New(), Input{
		EventName: "llm.call",
		Metadata:  map[string]any{"error": "rate limited"},
	}, capturedAt)
	if e.Success == nil || *e.Success {
		t.Error("error key should imply failure")
	}

	// No signal at all leaves the outcome unknown.
	e = Event(uuid.New(), Input{EventName: "llm.call"}, capturedAt)
	if e.Success != nil {
		t.Errorf("Success = %v, want nil for unknown outcome", *e.Success)
	}
}

func TestEventPreservesPayload(t *testing.T) {
	in := Input{
		EventName:    "retrieval.lookup",
		Measurements: map[string]float64{"chunks": 12},
		Metadata:     map[string]any{"index": "docs-v2"},
	}
	e := Event(uuid.New(), in, capturedAt)
	if e.EventName != "retrieval.lookup" {
		t.Errorf("EventName = %q", e.EventName)
	}
	if e.Measurements["chunks"] != 12 {
		t.Errorf("measurements not preserved: %v", e.Measurements)
	}
	if e.Metadata["index"] != "docs-v2" {
		t.Errorf("metadata not preserved: %v", e.Metadata)
	}
}
