package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/store"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *store.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mem := store.NewMemory(logger)
	return New(mem, logger), mem
}

// seedRun opens a run and fills it with events whose latency climbs by
// 10ms per event, costing a flat 0.01 each, all successful.
func seedRun(t *testing.T, mem *store.Memory, n int) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	runID := uuid.New()
	require.NoError(t, mem.Open(ctx, runID))
	yes := true
	for i := 0; i < n; i++ {
		lat := float64((i + 1) * 10)
		cost := 0.01
		require.NoError(t, mem.Insert(ctx, runID, model.EventRecord{
			EventID:   fmt.Sprintf("e%03d", i),
			RunID:     runID,
			EventName: "llm.call",
			Timestamp: int64(i) * model.MicrosPerSecond,
			LatencyMs: &lat,
			CostUSD:   &cost,
			Success:   &yes,
		}))
	}
	return runID
}

func TestRunMetrics(t *testing.T) {
	a, mem := newTestAnalyzer(t)
	runID := seedRun(t, mem, 10)

	m, err := a.RunMetrics(context.Background(), runID)
	require.NoError(t, err)

	assert.Equal(t, 10, m.Summary.TotalEvents)
	require.NotNil(t, m.Summary.TimeRange)
	assert.Equal(t, int64(0), m.Summary.TimeRange.Start)
	assert.Equal(t, int64(9)*model.MicrosPerSecond, m.Summary.TimeRange.End)
	assert.Equal(t, 9.0, m.Summary.DurationSeconds)

	// Latencies are 10..100.
	assert.Equal(t, int64(10), m.Latency.Count)
	require.NotNil(t, m.Latency.Mean)
	assert.Equal(t, 55.0, *m.Latency.Mean)
	require.NotNil(t, m.Latency.Median)
	assert.Equal(t, 55.0, *m.Latency.Median)
	require.NotNil(t, m.Latency.Min)
	assert.Equal(t, 10.0, *m.Latency.Min)
	require.NotNil(t, m.Latency.Max)
	assert.Equal(t, 100.0, *m.Latency.Max)

	assert.InDelta(t, 0.10, m.Cost.Total, 1e-9)
	require.NotNil(t, m.Cost.MeanPerRequest)
	assert.InDelta(t, 0.01, *m.Cost.MeanPerRequest, 1e-9)
	assert.InDelta(t, 10.0, m.Cost.ProjectedPer1K, 1e-9)
	assert.InDelta(t, 10000.0, m.Cost.ProjectedPer1M, 1e-9)

	require.NotNil(t, m.Reliability.SuccessRate)
	assert.Equal(t, 1.0, *m.Reliability.SuccessRate)

	assert.Equal(t, int64(10), m.Categories["llm"])
	assert.Nil(t, m.Tokens)
}

func TestRunMetricsEmptyRun(t *testing.T) {
	a, mem := newTestAnalyzer(t)
	ctx := context.Background()
	runID := uuid.New()
	require.NoError(t, mem.Open(ctx, runID))

	m, err := a.RunMetrics(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Summary.TotalEvents)
	assert.Nil(t, m.Summary.TimeRange)
	assert.Equal(t, int64(0), m.Latency.Count)
	assert.Nil(t, m.Latency.Mean)
	assert.Nil(t, m.Reliability.SuccessRate)
}

func TestRunMetricsTokens(t *testing.T) {
	a, mem := newTestAnalyzer(t)
	ctx := context.Background()
	runID := uuid.New()
	require.NoError(t, mem.Open(ctx, runID))

	// JSON decoding yields float64 token counts; ints must work too.
	require.NoError(t, mem.Insert(ctx, runID, model.EventRecord{
		EventID: "a", EventName: "llm.call", Timestamp: 1,
		Metadata: map[string]any{"prompt_tokens": float64(100), "completion_tokens": float64(40)},
	}))
	require.NoError(t, mem.Insert(ctx, runID, model.EventRecord{
		EventID: "b", EventName: "llm.call", Timestamp: 2,
		Metadata: map[string]any{"prompt_tokens": 200, "completion_tokens": 60},
	}))
	require.NoError(t, mem.Insert(ctx, runID, model.EventRecord{
		EventID: "c", EventName: "tool.exec", Timestamp: 3,
	}))

	m, err := a.RunMetrics(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, m.Tokens)
	assert.Equal(t, int64(300), m.Tokens.TotalPrompt)
	assert.Equal(t, int64(100), m.Tokens.TotalCompletion)
	assert.Equal(t, int64(400), m.Tokens.Total)
	assert.Equal(t, 150.0, m.Tokens.MeanPrompt)
	assert.Equal(t, 200.0, m.Tokens.MeanTotal)
}

func TestCompareRunsIdentical(t *testing.T) {
	a, mem := newTestAnalyzer(t)
	runA := seedRun(t, mem, 10)
	runB := seedRun(t, mem, 10)

	cmp, err := a.CompareRuns(context.Background(), []uuid.UUID{runA, runB})
	require.NoError(t, err)

	assert.Equal(t, runA, cmp.BaselineRunID)
	require.Len(t, cmp.Deltas, 1)

	d := cmp.Deltas[0]
	assert.Equal(t, runB, d.RunID)
	require.NotNil(t, d.LatencyChangePct)
	assert.InDelta(t, 0, *d.LatencyChangePct, 1e-9)
	assert.InDelta(t, 0, d.CostDiffUSD, 1e-9)
	require.NotNil(t, d.SuccessRateChangePoints)
	assert.InDelta(t, 0, *d.SuccessRateChangePoints, 1e-9)
	assert.Equal(t, 0, d.EventCountDiff)
	assert.Len(t, cmp.Metrics, 2)
}

func TestCompareRunsDeltas(t *testing.T) {
	a, mem := newTestAnalyzer(t)
	ctx := context.Background()
	runA := seedRun(t, mem, 10) // mean latency 55, total cost 0.10
	runB := seedRun(t, mem, 20) // mean latency 105, total cost 0.20

	cmp, err := a.CompareRuns(ctx, []uuid.UUID{runA, runB})
	require.NoError(t, err)
	require.Len(t, cmp.Deltas, 1)

	d := cmp.Deltas[0]
	require.NotNil(t, d.LatencyChangePct)
	assert.InDelta(t, (105.0-55.0)/55.0*100, *d.LatencyChangePct, 1e-9)
	assert.InDelta(t, 0.10, d.CostDiffUSD, 1e-9)
	assert.Equal(t, 10, d.EventCountDiff)
}

func TestCompareRunsNilBaselineChange(t *testing.T) {
	a, mem := newTestAnalyzer(t)
	ctx := context.Background()

	// Baseline has no latencies or outcomes, so percent changes stay nil.
	baseline := uuid.New()
	require.NoError(t, mem.Open(ctx, baseline))
	require.NoError(t, mem.Insert(ctx, baseline, model.EventRecord{
		EventID: "a", EventName: "tool.exec", Timestamp: 1,
	}))
	other := seedRun(t, mem, 5)

	cmp, err := a.CompareRuns(ctx, []uuid.UUID{baseline, other})
	require.NoError(t, err)
	require.Len(t, cmp.Deltas, 1)
	assert.Nil(t, cmp.Deltas[0].LatencyChangePct)
	assert.Nil(t, cmp.Deltas[0].SuccessRateChangePoints)
}

func TestCompareRunsTooFew(t *testing.T) {
	a, _ := newTestAnalyzer(t)
	_, err := a.CompareRuns(context.Background(), []uuid.UUID{uuid.New()})
	require.ErrorIs(t, err, ErrTooFewRuns)

	_, err = a.CompareRuns(context.Background(), nil)
	require.ErrorIs(t, err, ErrTooFewRuns)
}

func TestCompareRunsManyRuns(t *testing.T) {
	a, mem := newTestAnalyzer(t)
	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = seedRun(t, mem, (i+1)*4)
	}

	cmp, err := a.CompareRuns(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, cmp.Deltas, 4)
	assert.Len(t, cmp.Metrics, 5)
	for i, d := range cmp.Deltas {
		assert.Equal(t, ids[i+1], d.RunID)
	}
}
