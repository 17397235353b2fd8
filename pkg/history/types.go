// Package history keeps a durable record of watch runs.
//
// Each session start opens a run, and stop closes it with the session's
// final counters. Runs are stored in a bbolt database keyed by UUID, with
// a time index for listing the most recent runs.
//
// Example usage:
//
//	store, err := history.New(history.Config{
//	    DBPath: ".autowatch/history.db",
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	run, err := store.Begin("/path/to/project", ".autowatch/config.json")
//	...
//	run.EventsProcessed = 42
//	run.StopReason = "stopped"
//	err = store.Finish(run)
package history

import "time"

// Run is one watch session from start to stop.
type Run struct {
	// ID is a UUID v4.
	ID string `json:"id"`

	// Root is the absolute watch root.
	Root string `json:"root"`

	// ConfigPath is the configuration file the run loaded, if any.
	ConfigPath string `json:"config_path,omitempty"`

	StartedAt time.Time `json:"started_at"`

	// StoppedAt is zero while the run is active.
	StoppedAt time.Time `json:"stopped_at,omitempty"`

	// StopReason is "stopped", "restart" or "recovery failed".
	StopReason string `json:"stop_reason,omitempty"`

	EventsProcessed int `json:"events_processed"`
	ActionsExecuted int `json:"actions_executed"`
	ActionsFailed   int `json:"actions_failed"`
}

// Active reports whether the run has not been finished.
func (r *Run) Active() bool {
	return r.StoppedAt.IsZero()
}

// Duration returns how long the run lasted, or has lasted so far.
func (r *Run) Duration() time.Duration {
	if r.Active() {
		return time.Since(r.StartedAt)
	}
	return r.StoppedAt.Sub(r.StartedAt)
}

// Store records watch runs.
type Store interface {
	// Begin creates and persists a new active run.
	Begin(root, configPath string) (*Run, error)

	// Finish stamps StoppedAt and persists the run's final state.
	//
	// Returns ErrRunNotFound if the run was never begun.
	Finish(run *Run) error

	// Get retrieves a run by ID.
	//
	// Returns:
	//   - Run if found
	//   - ErrRunNotFound if not found
	//   - ErrInvalidID for malformed IDs
	Get(id string) (*Run, error)

	// List returns up to n runs, most recent first. n <= 0 returns all.
	List(n int) ([]*Run, error)

	// Close closes the database.
	Close() error
}

// Config contains history store configuration.
type Config struct {
	// DBPath is the path to the bbolt database file. A leading ~ expands
	// to the home directory.
	DBPath string

	// Timeout is the timeout for acquiring the database lock.
	//
	// Default: 1 second.
	Timeout time.Duration
}
