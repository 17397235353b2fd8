package metrics

import (
	"sort"
	"sync"
	"time"
)

// DefaultManualActionCost is used when Config.ManualActionCost is zero.
const DefaultManualActionCost = 30 * time.Second

// DefaultPercentileWindow is used when Config.PercentileWindow is zero.
const DefaultPercentileWindow = 1024

// aggregator implements the Aggregator interface.
type aggregator struct {
	config Config

	mu        sync.RWMutex
	durations []int64 // Ring of recent durations for percentiles
	next      int     // Ring slot overwritten by the next Add once full
	snap      Snapshot
	actions   map[string]*actionTotals
}

// actionTotals keeps exact sums so per-action averages don't drift.
type actionTotals struct {
	stats   ActionStats
	totalMs int64
}

// New creates a new aggregator.
//
// Parameters:
//   - cfg: Aggregator configuration
//
// Returns a configured Aggregator.
func New(cfg Config) Aggregator {
	// Set defaults.
	if cfg.ManualActionCost == 0 {
		cfg.ManualActionCost = DefaultManualActionCost
	}
	if cfg.PercentileWindow <= 0 {
		cfg.PercentileWindow = DefaultPercentileWindow
	}

	return &aggregator{
		config:  cfg,
		snap:    emptySnapshot(),
		actions: make(map[string]*actionTotals),
	}
}

// Add implements Aggregator.Add.
func (a *aggregator) Add(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ms := s.Duration.Milliseconds()
	snap := &a.snap

	// Update counts.
	snap.Total++
	if s.Success {
		snap.Succeeded++
		snap.TimeSavedMs += a.config.ManualActionCost.Milliseconds()
	} else {
		snap.Failed++
		errType := s.ErrorType
		if errType == "" {
			errType = "unknown"
		}
		snap.ByErrorType[errType]++
	}
	snap.SuccessRate = float64(snap.Succeeded) / float64(snap.Total) * 100

	// Update average.
	snap.TotalDurationMs += ms
	snap.AvgDurationMs = float64(snap.TotalDurationMs) / float64(snap.Total)

	// Update min/max.
	if snap.Total == 1 {
		snap.MinDurationMs = ms
		snap.MaxDurationMs = ms
	} else {
		if ms < snap.MinDurationMs {
			snap.MinDurationMs = ms
		}
		if ms > snap.MaxDurationMs {
			snap.MaxDurationMs = ms
		}
	}

	// Update timestamps.
	if snap.FirstSeen.IsZero() || s.Timestamp.Before(snap.FirstSeen) {
		snap.FirstSeen = s.Timestamp
	}
	if snap.LastSeen.IsZero() || s.Timestamp.After(snap.LastSeen) {
		snap.LastSeen = s.Timestamp
	}

	// Update per-action stats.
	at, exists := a.actions[s.Action]
	if !exists {
		at = &actionTotals{}
		a.actions[s.Action] = at
	}
	at.stats.Count++
	if s.Success {
		at.stats.Succeeded++
	} else {
		at.stats.Failed++
	}
	at.totalMs += ms
	at.stats.AvgDurationMs = float64(at.totalMs) / float64(at.stats.Count)

	// Track durations for percentiles.
	if a.config.TrackPercentiles {
		if len(a.durations) < a.config.PercentileWindow {
			a.durations = append(a.durations, ms)
		} else {
			a.durations[a.next] = ms
			a.next = (a.next + 1) % len(a.durations)
		}
	}
}

// Snapshot implements Aggregator.Snapshot.
func (a *aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := a.snap

	snap.ByErrorType = make(map[string]int, len(a.snap.ByErrorType))
	for k, v := range a.snap.ByErrorType {
		snap.ByErrorType[k] = v
	}

	snap.ByAction = make(map[string]ActionStats, len(a.actions))
	for k, at := range a.actions {
		snap.ByAction[k] = at.stats
	}

	// Calculate percentiles if enabled.
	if a.config.TrackPercentiles && len(a.durations) > 0 {
		durations := make([]int64, len(a.durations))
		copy(durations, a.durations)
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

		snap.P50DurationMs = percentile(durations, 50)
		snap.P95DurationMs = percentile(durations, 95)
	}

	return snap
}

// Reset implements Aggregator.Reset.
func (a *aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.durations = nil
	a.next = 0
	a.snap = emptySnapshot()
	a.actions = make(map[string]*actionTotals)
}

func emptySnapshot() Snapshot {
	return Snapshot{
		ByAction:    map[string]ActionStats{},
		ByErrorType: map[string]int{},
	}
}

// percentile calculates the nth percentile of a sorted slice.
func percentile(sorted []int64, p int) int64 {
	if len(sorted) == 0 {
		return 0
	}

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	// Linear interpolation between closest ranks.
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(rank)
	upper := lower + 1

	if upper >= len(sorted) {
		return sorted[lower]
	}

	// Interpolate.
	fraction := rank - float64(lower)
	return int64(float64(sorted[lower])*(1-fraction) + float64(sorted[upper])*fraction)
}
