// Package watcher provides the file monitor of the watch pipeline.
//
// It uses fsnotify to watch a directory tree, filters paths through
// include/exclude globs, waits for in-progress writes to settle, and
// restarts the underlying watch when it faults.
//
// Example usage:
//
//	m, err := watcher.New(watcher.Config{
//	    StabilityWindow: 200 * time.Millisecond,
//	}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Stop()
//
//	if err := m.Start(ctx, ".", []string{"**/*.md"}, nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	for ev := range m.Events() {
//	    fmt.Printf("%s %s\n", ev.Kind, ev.Path)
//	}
package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind describes a normalized file change.
type Kind string

// File change kinds.
const (
	KindAdded   Kind = "added"
	KindChanged Kind = "changed"
	KindDeleted Kind = "deleted"
)

// Event is a normalized file change.
type Event struct {
	// Path is slash-separated and relative to the watch root.
	Path string `json:"path"`

	// AbsPath is the absolute OS path.
	AbsPath string `json:"absPath"`

	Kind Kind `json:"kind"`

	// ObservedAt is when the change was surfaced.
	ObservedAt time.Time `json:"observedAt"`
}

// NoticeKind names a monitor lifecycle signal.
type NoticeKind string

// Monitor lifecycle signals.
const (
	NoticeReady           NoticeKind = "ready"
	NoticeError           NoticeKind = "error"
	NoticeRecoveryAttempt NoticeKind = "recovery:attempt"
	NoticeRecoverySuccess NoticeKind = "recovery:success"
	NoticeRecoveryFailed  NoticeKind = "recovery:failed"
)

// Notice is a lifecycle signal from the monitor.
type Notice struct {
	Kind NoticeKind

	// Err is set for error and recovery:failed notices.
	Err error

	// Attempt is the 1-based recovery attempt number.
	Attempt int

	Time time.Time
}

// State is the fault-recovery state of a monitor.
type State int

// Monitor states.
const (
	StateIdle State = iota
	StateWatching
	StateRecovering
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateRecovering:
		return "recovering"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of the monitor.
type Status struct {
	Watching      bool   `json:"watching"`
	State         string `json:"state"`
	FilesTracked  int    `json:"filesTracked"`
	ErrorCount    int    `json:"errorCount"`
	RetryCount    int    `json:"retryCount"`
	EventsEmitted int    `json:"eventsEmitted"`
}

// Backend is the platform notification mechanism.
type Backend interface {
	Add(path string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

// BackendFactory creates a fresh backend for each start or recovery attempt.
type BackendFactory func() (Backend, error)

// Config contains monitor configuration.
type Config struct {
	// StabilityWindow is how long size and mtime must stay unchanged before
	// an added/changed event is surfaced. Zero surfaces writes immediately.
	StabilityWindow time.Duration

	// ReadyTimeout bounds the initial tree walk and watch registration.
	// Default: 10s.
	ReadyTimeout time.Duration

	// MaxRetries is the number of recovery attempts after a fault.
	// Default: 3.
	MaxRetries int

	// RetryDelay is the fixed wait before each recovery attempt.
	// Default: 1s.
	RetryDelay time.Duration

	// Backend overrides the fsnotify backend. Used in tests.
	Backend BackendFactory
}
