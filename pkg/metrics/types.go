// Package metrics derives execution statistics from execution records.
//
// Statistics are updated incrementally as samples arrive, and replaying
// the same samples into a fresh aggregator reproduces the same snapshot.
//
// Example usage:
//
//	agg := metrics.New(metrics.Config{
//	    ManualActionCost: 30 * time.Second,
//	    TrackPercentiles: true,
//	})
//
//	agg.Add(metrics.Sample{Action: "**/*.md", Success: true, Duration: 120 * time.Millisecond})
//
//	snap := agg.Snapshot()
//	fmt.Printf("success rate: %.1f%%\n", snap.SuccessRate)
package metrics

import (
	"time"
)

// Aggregator computes execution statistics.
type Aggregator interface {
	// Add folds one execution into the statistics.
	Add(s Sample)

	// Snapshot returns the current statistics.
	Snapshot() Snapshot

	// Reset clears all aggregated data.
	Reset()
}

// Sample is one completed execution.
type Sample struct {
	Timestamp time.Time

	// Action identifies the rule, usually its glob pattern.
	Action string

	Success  bool
	Duration time.Duration

	// ErrorType classifies a failure (exit, timeout, launch, ...).
	ErrorType string
}

// Snapshot contains aggregated execution statistics.
type Snapshot struct {
	// Total is the number of executions.
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// SuccessRate is Succeeded/Total as a percentage.
	SuccessRate float64 `json:"successRate"`

	// AvgDurationMs is the running average duration.
	AvgDurationMs   float64 `json:"avgDurationMs"`
	MinDurationMs   int64   `json:"minDurationMs"`
	MaxDurationMs   int64   `json:"maxDurationMs"`
	TotalDurationMs int64   `json:"totalDurationMs"`

	// P50DurationMs and P95DurationMs are set when percentiles are tracked.
	P50DurationMs int64 `json:"p50DurationMs"`
	P95DurationMs int64 `json:"p95DurationMs"`

	// TimeSavedMs assumes each success replaces one manual action.
	TimeSavedMs int64 `json:"timeSavedMs"`

	ByAction    map[string]ActionStats `json:"byAction"`
	ByErrorType map[string]int         `json:"byErrorType"`

	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// ActionStats is the per-action breakdown.
type ActionStats struct {
	Count         int     `json:"count"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	AvgDurationMs float64 `json:"avgDurationMs"`
}

// Config contains aggregator configuration.
type Config struct {
	// ManualActionCost is the time one successful execution is assumed to
	// save.
	//
	// Default: 30s.
	ManualActionCost time.Duration

	// TrackPercentiles enables percentile calculation over the most
	// recent PercentileWindow durations.
	TrackPercentiles bool

	// PercentileWindow bounds the kept durations. Default: 1024.
	PercentileWindow int
}
