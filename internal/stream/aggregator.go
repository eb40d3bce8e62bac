// Package stream maintains live, O(1)-memory statistics per run without
// retaining individual events. Updates are best-effort and independent
// of storage: an aggregator tracker can exist with no event container
// and vice versa.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/telemetry"
)

// ErrNotTracked is returned when a run has no live tracker (never
// started, or stopped). Start again to resume tracking; accumulators
// begin from zero.
var ErrNotTracked = errors.New("stream: run not tracked")

// RunDirectory is the run-lifecycle collaborator lookup used to validate
// Start calls.
type RunDirectory interface {
	GetRun(ctx context.Context, runID uuid.UUID) (model.Run, error)
}

// tracker is one run's mutable accumulator set. Its own mutex serializes
// updates so a snapshot never observes a half-applied event; trackers
// for different runs never share a lock.
type tracker struct {
	mu         sync.Mutex
	latency    welford
	cost       welford
	total      int64
	successful int64
	failed     int64
	categories map[string]int64
}

func newTracker() *tracker {
	return &tracker{categories: make(map[string]int64)}
}

// Aggregator holds the live trackers, keyed by run id.
type Aggregator struct {
	runs   RunDirectory
	logger *slog.Logger

	mu       sync.RWMutex
	trackers map[uuid.UUID]*tracker
}

// New creates an aggregator validating Start calls against runs.
func New(runs RunDirectory, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		runs:     runs,
		logger:   logger,
		trackers: make(map[uuid.UUID]*tracker),
	}
}

// Start begins tracking the run. Idempotent: racing producers that both
// call Start share the one tracker. Fails if the run directory does not
// know the run.
func (a *Aggregator) Start(ctx context.Context, runID uuid.UUID) error {
	if _, err := a.runs.GetRun(ctx, runID); err != nil {
		return fmt.Errorf("stream: start %s: %w", runID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.trackers[runID]; !ok {
		a.trackers[runID] = newTracker()
	}
	return nil
}

// Update folds one event into the run's accumulators. Nil derived fields
// are skipped for their metric only; the rest of the event still counts.
func (a *Aggregator) Update(_ context.Context, runID uuid.UUID, event model.EventRecord) error {
	t := a.tracker(runID)
	if t == nil {
		return ErrNotTracked
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if event.LatencyMs != nil {
		t.latency.observe(*event.LatencyMs)
	}
	if event.CostUSD != nil {
		t.cost.observe(*event.CostUSD)
	}
	t.total++
	if event.Success != nil {
		if *event.Success {
			t.successful++
		} else {
			t.failed++
		}
	}
	t.categories[event.Category()]++
	return nil
}

// Metrics returns a snapshot of the run's live statistics. The snapshot
// observes every Update acknowledged before this call; concurrently
// in-flight updates may or may not be included.
func (a *Aggregator) Metrics(_ context.Context, runID uuid.UUID) (model.LiveMetrics, error) {
	t := a.tracker(runID)
	if t == nil {
		return model.LiveMetrics{}, ErrNotTracked
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	latMin, latMax := t.latency.bounds()
	costMin, costMax := t.cost.bounds()

	out := model.LiveMetrics{
		RunID: runID,
		Latency: model.MetricStats{
			Count:  t.latency.count,
			Mean:   t.latency.mean,
			StdDev: t.latency.stdDev(),
			Min:    latMin,
			Max:    latMax,
		},
		Cost: model.CostStats{
			MetricStats: model.MetricStats{
				Count:  t.cost.count,
				Mean:   t.cost.mean,
				StdDev: t.cost.stdDev(),
				Min:    costMin,
				Max:    costMax,
			},
			Total:          t.cost.sum,
			MeanPerRequest: t.cost.mean,
			ProjectedPer1K: t.cost.mean * 1_000,
			ProjectedPer1M: t.cost.mean * 1_000_000,
		},
		Reliability: Reliability(t.total, t.successful, t.failed),
		Categories:  make(map[string]int64, len(t.categories)),
	}
	for k, v := range t.categories {
		out.Categories[k] = v
	}
	return out, nil
}

// Reset zeroes the run's accumulators without stopping tracking.
func (a *Aggregator) Reset(_ context.Context, runID uuid.UUID) error {
	t := a.tracker(runID)
	if t == nil {
		return ErrNotTracked
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latency = welford{}
	t.cost = welford{}
	t.total, t.successful, t.failed = 0, 0, 0
	t.categories = make(map[string]int64)
	return nil
}

// Stop discards the run's tracker. Consistent with Start's idempotency:
// Metrics after Stop fails with ErrNotTracked until Start is called
// again, which begins from zero.
func (a *Aggregator) Stop(_ context.Context, runID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.trackers, runID)
}

// Tracked returns the number of live trackers.
func (a *Aggregator) Tracked() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.trackers)
}

// RegisterMetrics registers an observable gauge for tracker count.
func (a *Aggregator) RegisterMetrics() {
	meter := telemetry.Meter("tracefold/stream")
	_, _ = meter.Int64ObservableGauge("tracefold.stream.trackers",
		metric.WithDescription("Runs with a live streaming tracker"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(a.Tracked()))
			return nil
		}),
	)
}

func (a *Aggregator) tracker(runID uuid.UUID) *tracker {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trackers[runID]
}

// Reliability builds the outcome summary. The success rate excludes
// unknown-outcome events from its denominator; with no known outcomes
// the rate and SLA fields stay nil.
func Reliability(total, successful, failed int64) model.ReliabilityStats {
	out := model.ReliabilityStats{
		TotalRequests: total,
		Successful:    successful,
		Failed:        failed,
	}
	known := successful + failed
	if known == 0 {
		return out
	}
	rate := float64(successful) / float64(known)
	out.SuccessRate = &rate
	sla99 := rate >= model.SLA99
	sla999 := rate >= model.SLA999
	sla9999 := rate >= model.SLA9999
	out.MeetsSLA99 = &sla99
	out.MeetsSLA999 = &sla999
	out.MeetsSLA9999 = &sla9999
	return out
}
