package model

import "github.com/google/uuid"

// SLA thresholds checked against observed reliability.
const (
	SLA99   = 0.99
	SLA999  = 0.999
	SLA9999 = 0.9999
)

// MetricStats is the snapshot of one online metric accumulator.
// Min/Max are nil when Count is zero.
type MetricStats struct {
	Count  int64    `json:"count"`
	Mean   float64  `json:"mean"`
	StdDev float64  `json:"std_dev"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
}

// CostStats extends MetricStats with totals and projections at request
// scale.
type CostStats struct {
	MetricStats
	Total          float64 `json:"total"`
	MeanPerRequest float64 `json:"mean_per_request"`
	ProjectedPer1K float64 `json:"projected_per_1k"`
	ProjectedPer1M float64 `json:"projected_per_1m"`
}

// ReliabilityStats summarizes event outcomes. SuccessRate is computed
// over events with a known outcome only and is nil when there are none;
// the SLA booleans are nil whenever SuccessRate is.
type ReliabilityStats struct {
	TotalRequests int64    `json:"total_requests"`
	Successful    int64    `json:"successful"`
	Failed        int64    `json:"failed"`
	SuccessRate   *float64 `json:"success_rate"`
	MeetsSLA99    *bool    `json:"meets_sla_99,omitempty"`
	MeetsSLA999   *bool    `json:"meets_sla_99_9,omitempty"`
	MeetsSLA9999  *bool    `json:"meets_sla_99_99,omitempty"`
}

// LiveMetrics is the streaming aggregator's snapshot for one run.
type LiveMetrics struct {
	RunID       uuid.UUID        `json:"run_id"`
	Latency     MetricStats      `json:"latency"`
	Cost        CostStats        `json:"cost"`
	Reliability ReliabilityStats `json:"reliability"`
	Categories  map[string]int64 `json:"categories"`
}

// WindowResult is the aggregate over one half-open window [Start, End).
// MeanLatency is nil when no event in the window carried a latency.
type WindowResult struct {
	WindowStart  int64    `json:"window_start"`
	WindowEnd    int64    `json:"window_end"`
	EventCount   int      `json:"event_count"`
	MeanLatency  *float64 `json:"mean_latency"`
	TotalCost    float64  `json:"total_cost"`
	SuccessCount int      `json:"success_count"`
	FailureCount int      `json:"failure_count"`
}

// RunSummary describes the extent of a run's event history. Duration is
// in seconds and 0 for fewer than two events.
type RunSummary struct {
	TotalEvents     int        `json:"total_events"`
	TimeRange       *TimeRange `json:"time_range,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
}

// DistributionStats is a full-scan descriptive summary of one metric.
// Percentiles use linear interpolation between closest ranks.
type DistributionStats struct {
	Count  int64    `json:"count"`
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
	StdDev *float64 `json:"std_dev"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	P50    *float64 `json:"p50"`
	P90    *float64 `json:"p90"`
	P95    *float64 `json:"p95"`
	P99    *float64 `json:"p99"`
}

// OfflineCostStats is the full-scan cost summary for a run.
type OfflineCostStats struct {
	Total            float64  `json:"total"`
	Count            int64    `json:"count"`
	MeanPerRequest   *float64 `json:"mean_per_request"`
	MedianPerRequest *float64 `json:"median_per_request"`
	ProjectedPer1K   float64  `json:"projected_per_1k"`
	ProjectedPer1M   float64  `json:"projected_per_1m"`
}

// TokenStats aggregates token counts found in event metadata. Present in
// RunMetrics only when at least one event carried token fields.
type TokenStats struct {
	TotalPrompt     int64   `json:"total_prompt"`
	TotalCompletion int64   `json:"total_completion"`
	Total           int64   `json:"total"`
	MeanPrompt      float64 `json:"mean_prompt"`
	MeanCompletion  float64 `json:"mean_completion"`
	MeanTotal       float64 `json:"mean_total"`
}

// RunMetrics is the offline analyzer's full-scan report for one run.
type RunMetrics struct {
	RunID       uuid.UUID         `json:"run_id"`
	Summary     RunSummary        `json:"summary"`
	Latency     DistributionStats `json:"latency"`
	Cost        OfflineCostStats  `json:"cost"`
	Reliability ReliabilityStats  `json:"reliability"`
	Tokens      *TokenStats       `json:"tokens,omitempty"`
	Categories  map[string]int64  `json:"categories"`
}

// RunDelta reports one comparison run against the baseline. Percent
// changes are nil when the baseline value is zero or undefined.
type RunDelta struct {
	RunID                   uuid.UUID `json:"run_id"`
	LatencyChangePct        *float64  `json:"latency_change_pct"`
	CostDiffUSD             float64   `json:"cost_diff_usd"`
	SuccessRateChangePoints *float64  `json:"success_rate_change_points"`
	EventCountDiff          int       `json:"event_count_diff"`
}

// RunComparison is the result of comparing two or more runs, the first
// being the baseline.
type RunComparison struct {
	BaselineRunID uuid.UUID            `json:"baseline_run_id"`
	Baseline      RunMetrics           `json:"baseline"`
	Deltas        []RunDelta           `json:"deltas"`
	Metrics       map[string]RunMetrics `json:"metrics"`
}
