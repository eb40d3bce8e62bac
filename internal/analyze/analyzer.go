// Package analyze computes full-scan descriptive statistics and
// cross-run comparisons on demand from EventStore contents. Unlike the
// streaming aggregator it retains nothing between calls; every report is
// a fresh scan.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tracefold/tracefold/internal/model"
	"github.com/tracefold/tracefold/internal/store"
	"github.com/tracefold/tracefold/internal/stream"
)

// ErrTooFewRuns is returned by CompareRuns for fewer than two run ids.
var ErrTooFewRuns = errors.New("analyze: comparison requires at least two runs")

// Analyzer reads event history from a store and derives metrics.
type Analyzer struct {
	store  store.EventStore
	logger *slog.Logger
}

// New creates an analyzer over the given store.
func New(st store.EventStore, logger *slog.Logger) *Analyzer {
	return &Analyzer{store: st, logger: logger}
}

// RunMetrics scans the run's full history once and produces the
// descriptive report: summary, latency distribution with percentiles,
// cost totals and projections, reliability, token stats, and per-category
// counts. A run with no events yields a zero-valued report, not an error.
func (a *Analyzer) RunMetrics(ctx context.Context, runID uuid.UUID) (model.RunMetrics, error) {
	events, err := a.store.GetAll(ctx, runID)
	if err != nil {
		return model.RunMetrics{}, fmt.Errorf("analyze: run metrics %s: %w", runID, err)
	}
	return computeRunMetrics(runID, events), nil
}

func computeRunMetrics(runID uuid.UUID, events []model.EventRecord) model.RunMetrics {
	out := model.RunMetrics{
		RunID:      runID,
		Categories: make(map[string]int64),
	}
	out.Summary.TotalEvents = len(events)
	if len(events) > 0 {
		first := events[0].Timestamp
		last := events[len(events)-1].Timestamp
		out.Summary.TimeRange = &model.TimeRange{Start: first, End: last}
		if len(events) > 1 {
			out.Summary.DurationSeconds = float64(last-first) / model.MicrosPerSecond
		}
	}

	var latencies, costs []float64
	var successful, failed int64
	var tokens model.TokenStats
	var tokenEvents int64

	for _, e := range events {
		out.Categories[e.Category()]++
		if e.LatencyMs != nil {
			latencies = append(latencies, *e.LatencyMs)
		}
		if e.CostUSD != nil {
			costs = append(costs, *e.CostUSD)
		}
		if e.Success != nil {
			if *e.Success {
				successful++
			} else {
				failed++
			}
		}
		if prompt, completion, ok := tokenCounts(e.Metadata); ok {
			tokens.TotalPrompt += prompt
			tokens.TotalCompletion += completion
			tokens.Total += prompt + completion
			tokenEvents++
		}
	}

	lat := describe(latencies)
	out.Latency = model.DistributionStats{
		Count:  lat.count,
		Mean:   lat.mean,
		Median: lat.median,
		StdDev: lat.stdDev,
		Min:    lat.min,
		Max:    lat.max,
		P50:    lat.p50,
		P90:    lat.p90,
		P95:    lat.p95,
		P99:    lat.p99,
	}

	cost := describe(costs)
	out.Cost = model.OfflineCostStats{
		Count:            cost.count,
		MeanPerRequest:   cost.mean,
		MedianPerRequest: cost.median,
	}
	for _, c := range costs {
		out.Cost.Total += c
	}
	if cost.mean != nil {
		out.Cost.ProjectedPer1K = *cost.mean * 1_000
		out.Cost.ProjectedPer1M = *cost.mean * 1_000_000
	}

	out.Reliability = stream.Reliability(int64(len(events)), successful, failed)

	if tokenEvents > 0 {
		tokens.MeanPrompt = float64(tokens.TotalPrompt) / float64(tokenEvents)
		tokens.MeanCompletion = float64(tokens.TotalCompletion) / float64(tokenEvents)
		tokens.MeanTotal = float64(tokens.Total) / float64(tokenEvents)
		out.Tokens = &tokens
	}
	return out
}

// CompareRuns computes RunMetrics for every run concurrently, designates
// the first as baseline, and reports deltas for the rest. Percent change
// against a zero or undefined baseline value is nil, never a division by
// zero.
func (a *Analyzer) CompareRuns(ctx context.Context, runIDs []uuid.UUID) (model.RunComparison, error) {
	if len(runIDs) < 2 {
		return model.RunComparison{}, ErrTooFewRuns
	}

	// Each goroutine writes a distinct index, so no lock is needed.
	metrics := make([]model.RunMetrics, len(runIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range runIDs {
		g.Go(func() error {
			m, err := a.RunMetrics(gctx, id)
			if err != nil {
				return err
			}
			metrics[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.RunComparison{}, err
	}

	baseline := metrics[0]
	out := model.RunComparison{
		BaselineRunID: baseline.RunID,
		Baseline:      baseline,
		Metrics:       make(map[string]model.RunMetrics, len(metrics)),
	}
	for _, m := range metrics {
		out.Metrics[m.RunID.String()] = m
	}

	for _, m := range metrics[1:] {
		delta := model.RunDelta{
			RunID:          m.RunID,
			CostDiffUSD:    m.Cost.Total - baseline.Cost.Total,
			EventCountDiff: m.Summary.TotalEvents - baseline.Summary.TotalEvents,
		}
		delta.LatencyChangePct = percentChange(baseline.Latency.Mean, m.Latency.Mean)
		if baseline.Reliability.SuccessRate != nil && m.Reliability.SuccessRate != nil {
			pts := (*m.Reliability.SuccessRate - *baseline.Reliability.SuccessRate) * 100
			delta.SuccessRateChangePoints = &pts
		}
		out.Deltas = append(out.Deltas, delta)
	}
	return out, nil
}

// percentChange is nil when the baseline is missing or zero.
func percentChange(baseline, current *float64) *float64 {
	if baseline == nil || current == nil || *baseline == 0 {
		return nil
	}
	pct := (*current - *baseline) / *baseline * 100
	return &pct
}

func tokenCounts(metadata map[string]any) (prompt, completion int64, ok bool) {
	p, pok := metaInt(metadata, "prompt_tokens")
	c, cok := metaInt(metadata, "completion_tokens")
	if !pok && !cok {
		return 0, 0, false
	}
	return p, c, true
}

func metaInt(metadata map[string]any, key string) (int64, bool) {
	v, ok := metadata[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}
