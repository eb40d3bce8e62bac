package window

import (
	"fmt"
	"testing"

	"github.com/tracefold/tracefold/internal/model"
)

const minuteMicros = 60 * model.MicrosPerSecond

func minuteEvents(n int) []model.EventRecord {
	events := make([]model.EventRecord, n)
	for i := range events {
		events[i] = model.EventRecord{
			EventID:   fmt.Sprintf("e%02d", i),
			EventName: "llm.call",
			Timestamp: int64(i) * minuteMicros,
		}
	}
	return events
}

func TestComputeTiling(t *testing.T) {
	// 20 events one minute apart, 5-minute windows stepping by 5 minutes:
	// four windows of five events each.
	results := Compute(minuteEvents(20), 5*minuteMicros, 5*minuteMicros)
	if len(results) != 4 {
		t.Fatalf("expected 4 windows, got %d", len(results))
	}
	for i, r := range results {
		if r.EventCount != 5 {
			t.Errorf("window %d: expected 5 events, got %d", i, r.EventCount)
		}
		if r.WindowEnd-r.WindowStart != 5*minuteMicros {
			t.Errorf("window %d: wrong width %d", i, r.WindowEnd-r.WindowStart)
		}
	}
	if results[0].WindowStart != 0 {
		t.Errorf("first window should start at t0, got %d", results[0].WindowStart)
	}
}

func TestComputeTilingPartitionsEvents(t *testing.T) {
	// With step == size the windows partition the history: counts sum to
	// the total and no event lands in two windows.
	events := minuteEvents(17)
	results := Compute(events, 3*minuteMicros, 3*minuteMicros)

	total := 0
	for _, r := range results {
		total += r.EventCount
	}
	if total != len(events) {
		t.Fatalf("tiling windows should cover every event once: got %d of %d", total, len(events))
	}
}

func TestComputeHalfOpenBoundary(t *testing.T) {
	// An event at exactly window end belongs to the next window.
	events := []model.EventRecord{
		{EventID: "a", Timestamp: 0},
		{EventID: "b", Timestamp: 5 * minuteMicros},
	}
	results := Compute(events, 5*minuteMicros, 5*minuteMicros)
	if len(results) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(results))
	}
	if results[0].EventCount != 1 || results[1].EventCount != 1 {
		t.Fatalf("boundary event counted in the wrong window: %+v", results)
	}
}

func TestComputeOverlappingWindows(t *testing.T) {
	// Step smaller than size: adjacent windows share events.
	results := Compute(minuteEvents(10), 4*minuteMicros, 2*minuteMicros)
	if len(results) < 2 {
		t.Fatalf("expected several overlapping windows, got %d", len(results))
	}
	total := 0
	for _, r := range results {
		total += r.EventCount
	}
	if total <= 10 {
		t.Errorf("overlapping windows should count events more than once, total %d", total)
	}
}

func TestComputeAggregates(t *testing.T) {
	lat1, lat2 := 10.0, 20.0
	yes, no := true, false
	events := []model.EventRecord{
		{EventID: "a", Timestamp: 0, LatencyMs: &lat1, CostUSD: ptr(0.01), Success: &yes},
		{EventID: "b", Timestamp: minuteMicros, LatencyMs: &lat2, CostUSD: ptr(0.02), Success: &no},
		{EventID: "c", Timestamp: 2 * minuteMicros}, // no latency, no outcome
	}
	results := Compute(events, 5*minuteMicros, 5*minuteMicros)
	if len(results) != 1 {
		t.Fatalf("expected 1 window, got %d", len(results))
	}

	r := results[0]
	if r.EventCount != 3 {
		t.Errorf("EventCount = %d, want 3", r.EventCount)
	}
	if r.MeanLatency == nil || *r.MeanLatency != 15 {
		t.Errorf("MeanLatency = %v, want 15", r.MeanLatency)
	}
	if r.TotalCost != 0.03 {
		t.Errorf("TotalCost = %v, want 0.03", r.TotalCost)
	}
	if r.SuccessCount != 1 || r.FailureCount != 1 {
		t.Errorf("outcome counts = %d/%d, want 1/1", r.SuccessCount, r.FailureCount)
	}
}

func TestComputeMeanLatencyNilWithoutLatencies(t *testing.T) {
	results := Compute(minuteEvents(3), 5*minuteMicros, 5*minuteMicros)
	if len(results) != 1 {
		t.Fatalf("expected 1 window, got %d", len(results))
	}
	if results[0].MeanLatency != nil {
		t.Errorf("MeanLatency should be nil when no event carries one, got %v", *results[0].MeanLatency)
	}
}

func TestComputeDegenerateInputs(t *testing.T) {
	if got := Compute(nil, 5*minuteMicros, minuteMicros); got != nil {
		t.Errorf("empty history should yield nil, got %v", got)
	}
	events := minuteEvents(5)
	if got := Compute(events, 0, minuteMicros); got != nil {
		t.Errorf("zero window size should yield nil, got %v", got)
	}
	if got := Compute(events, minuteMicros, -1); got != nil {
		t.Errorf("negative step should yield nil, got %v", got)
	}
}

func TestComputeSingleEvent(t *testing.T) {
	results := Compute(minuteEvents(1), 5*minuteMicros, 5*minuteMicros)
	if len(results) != 1 {
		t.Fatalf("expected 1 window for a single event, got %d", len(results))
	}
	if results[0].EventCount != 1 {
		t.Errorf("EventCount = %d, want 1", results[0].EventCount)
	}
}

func ptr(v float64) *float64 { return &v }
