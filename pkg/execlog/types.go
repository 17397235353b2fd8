// Package execlog is the durable execution log of the watch pipeline.
//
// Every execution outcome becomes one JSON line in the active log file.
// The store filters records by level, rotates the active file into a
// numbered backlog (.1, .2, ...) once it reaches a size threshold, and
// keeps incremental metrics that can be rebuilt by replaying the files.
//
// Example usage:
//
//	store, err := execlog.Open(execlog.Config{
//	    Dir:       ".autowatch/logs",
//	    Enabled:   true,
//	    Level:     execlog.LevelInfo,
//	    MaxSize:   10 << 20,
//	    Rotation:  true,
//	    Retention: 5,
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	store.Record(execlog.FromOutcome(outcome))
//	recent, _ := store.ReadRecent(20)
package execlog

import (
	"time"

	"github.com/0xmhha/autowatch/pkg/action"
	"github.com/0xmhha/autowatch/pkg/metrics"
)

// DefaultFileName is the active log file name.
const DefaultFileName = "executions.log"

// Record levels, ordered debug < info < warn < error.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Record outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Record is one execution log line. Once written it is never modified.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	EventKind    string    `json:"eventKind"`
	FilePath     string    `json:"filePath"`
	Action       string    `json:"action,omitempty"`
	Command      string    `json:"command"`
	DurationMs   int64     `json:"durationMs"`
	Outcome      string    `json:"outcome"`
	Attempts     int       `json:"attempts,omitempty"`
	ErrorType    string    `json:"errorType,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// FromOutcome converts an action outcome into a record. Successes are
// info, failures error and skips debug.
func FromOutcome(o action.Outcome) Record {
	r := Record{
		Timestamp:    o.FinishedAt,
		EventKind:    o.EventKind,
		FilePath:     o.FilePath,
		Action:       o.Pattern,
		Command:      o.Command,
		DurationMs:   o.Duration.Milliseconds(),
		Attempts:     o.Attempts,
		ErrorType:    o.ErrorType,
		ErrorMessage: o.ErrorMessage,
	}

	switch o.Status {
	case action.StatusSuccess:
		r.Level, r.Outcome = LevelInfo, OutcomeSuccess
	case action.StatusSkipped:
		r.Level, r.Outcome = LevelDebug, OutcomeSkipped
		r.ErrorMessage = o.SkipReason
	default:
		r.Level, r.Outcome = LevelError, OutcomeError
	}

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	return r
}

// sample converts r for the metrics aggregator. Skipped records are not
// executions.
func (r Record) sample() (metrics.Sample, bool) {
	if r.Outcome != OutcomeSuccess && r.Outcome != OutcomeError {
		return metrics.Sample{}, false
	}

	name := r.Action
	if name == "" {
		name = r.Command
	}

	return metrics.Sample{
		Timestamp: r.Timestamp,
		Action:    name,
		Success:   r.Outcome == OutcomeSuccess,
		Duration:  time.Duration(r.DurationMs) * time.Millisecond,
		ErrorType: r.ErrorType,
	}, true
}

// Config contains store configuration.
type Config struct {
	// Dir holds the active file and its backlog.
	Dir string

	// FileName is the active file name. Default: executions.log.
	FileName string

	// Enabled turns durable writes on. Metrics are kept either way.
	Enabled bool

	// Level is the minimum level written. Error records are always written.
	Level string

	// MaxSize is the rotation threshold in bytes. Zero disables rotation.
	MaxSize int64

	Rotation bool

	// Retention is the number of backlog files kept.
	Retention int

	// Metrics configures the incremental aggregator.
	Metrics metrics.Config
}

// levelRank orders levels. Unknown levels rank as info.
func levelRank(level string) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}
