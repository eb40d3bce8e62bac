package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/telemetry"
	"github.com/tracefold/tracefold/internal/window"
)

// runLog is one run's ordered event container. events is kept sorted by
// (timestamp, event_id) at all times; Insert restores the invariant for
// out-of-order arrivals.
type runLog struct {
	mu     sync.RWMutex
	events []model.EventRecord
}

// Memory is the in-memory EventStore backend. Each run's container has
// its own lock, so producers on different runs never contend; reads take
// a consistent snapshot by copying under the read lock.
type Memory struct {
	logger *slog.Logger
	now    func() int64

	mu   sync.RWMutex
	runs map[uuid.UUID]*runLog
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithNow overrides the wall clock used by trailing-window queries.
// Tests use this to make "last N minutes" deterministic.
func WithNow(now func() int64) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an empty in-memory event store.
func NewMemory(logger *slog.Logger, opts ...MemoryOption) *Memory {
	m := &Memory{
		logger: logger,
		now:    func() int64 { return time.Now().UnixMicro() },
		runs:   make(map[uuid.UUID]*runLog),
	}
	for _, fn := range opts {
		fn(m)
	}
	return m
}

// Open allocates an empty container for the run. Fails with ErrRunExists
// if one is already open; it never resets existing data.
func (m *Memory) Open(_ context.Context, runID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; ok {
		return ErrRunExists
	}
	m.runs[runID] = &runLog{}
	return nil
}

// Insert adds one record at its sorted position. The container's slice
// is searched with binary search, so locating the position is O(log n);
// the memmove is the dominant cost for mid-history arrivals.
func (m *Memory) Insert(_ context.Context, runID uuid.UUID, event model.EventRecord) error {
	m.mu.RLock()
	log, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return ErrRunNotFound
	}

	log.mu.Lock()
	defer log.mu.Unlock()

	key := event.Key()
	i := sort.Search(len(log.events), func(i int) bool {
		return key.Less(log.events[i].Key())
	})
	log.events = append(log.events, model.EventRecord{})
	copy(log.events[i+1:], log.events[i:])
	log.events[i] = event
	return nil
}

// GetAll returns a snapshot of every record in ascending key order.
// Unknown runs return an empty slice.
func (m *Memory) GetAll(_ context.Context, runID uuid.UUID) ([]model.EventRecord, error) {
	log := m.run(runID)
	if log == nil {
		return nil, nil
	}
	log.mu.RLock()
	defer log.mu.RUnlock()
	out := make([]model.EventRecord, len(log.events))
	copy(out, log.events)
	return out, nil
}

// Query returns records matching all set filters. A timestamp range is
// answered through binary search on the sorted container; the remaining
// predicates are applied as a scan over the matching range only.
func (m *Memory) Query(_ context.Context, runID uuid.UUID, f model.Filters) ([]model.EventRecord, error) {
	log := m.run(runID)
	if log == nil {
		return nil, nil
	}
	log.mu.RLock()
	defer log.mu.RUnlock()

	events := log.events
	if f.From != nil || f.To != nil {
		lo, hi := int64(0), int64(1<<62)
		if f.From != nil {
			lo = *f.From
		}
		if f.To != nil {
			hi = *f.To
		}
		events = sliceRange(events, lo, hi)
	}

	var out []model.EventRecord
	for _, e := range events {
		if Matches(e, f) {
			out = append(out, e)
		}
	}
	return out, nil
}

// QueryWindow cuts the window first, then applies the predicate.
func (m *Memory) QueryWindow(_ context.Context, runID uuid.UUID, q model.WindowQuery, pred Predicate) ([]model.EventRecord, error) {
	log := m.run(runID)
	if log == nil {
		return nil, nil
	}
	log.mu.RLock()
	defer log.mu.RUnlock()

	var selected []model.EventRecord
	switch {
	case q.Last != nil:
		unit := q.Last.Unit.Micros()
		if q.Last.N <= 0 || unit == 0 {
			return nil, nil
		}
		now := m.now()
		selected = sliceRange(log.events, now-q.Last.N*unit, now)
	case q.LastN != nil:
		n := *q.LastN
		if n <= 0 {
			return nil, nil
		}
		if n > len(log.events) {
			n = len(log.events)
		}
		selected = log.events[len(log.events)-n:]
	case q.Range != nil:
		selected = sliceRange(log.events, q.Range.Start, q.Range.End)
	default:
		return nil, nil
	}

	out := make([]model.EventRecord, 0, len(selected))
	for _, e := range selected {
		if pred == nil || pred(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// WindowedMetrics computes sliding-window aggregates over the full
// history snapshot.
func (m *Memory) WindowedMetrics(ctx context.Context, runID uuid.UUID, windowSize, stepSize int64) ([]model.WindowResult, error) {
	events, err := m.GetAll(ctx, runID)
	if err != nil {
		return nil, err
	}
	return window.Compute(events, windowSize, stepSize), nil
}

// Delete removes the run's container. Idempotent.
func (m *Memory) Delete(_ context.Context, runID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	return nil
}

// Close is a no-op for the in-memory backend.
func (m *Memory) Close(context.Context) error { return nil }

// Len returns the total number of stored events across all runs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, log := range m.runs {
		log.mu.RLock()
		total += len(log.events)
		log.mu.RUnlock()
	}
	return total
}

// RegisterMetrics registers observable gauges for store depth. Called
// after the global meter provider has been initialized.
func (m *Memory) RegisterMetrics() {
	meter := telemetry.Meter("tracefold/store")

	_, _ = meter.Int64ObservableGauge("tracefold.store.events",
		metric.WithDescription("Total events held by the in-memory store"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(m.Len()))
			return nil
		}),
	)

	_, _ = meter.Int64ObservableGauge("tracefold.store.runs",
		metric.WithDescription("Open run containers in the in-memory store"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			n := len(m.runs)
			m.mu.RUnlock()
			o.Observe(int64(n))
			return nil
		}),
	)
}

func (m *Memory) run(runID uuid.UUID) *runLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs[runID]
}

// sliceRange returns the subslice of sorted events with
// lo <= timestamp <= hi, located by binary search on both boundaries.
func sliceRange(events []model.EventRecord, lo, hi int64) []model.EventRecord {
	if hi < lo {
		return nil
	}
	start := sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp >= lo
	})
	end := sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp > hi
	})
	return events[start:end]
}
