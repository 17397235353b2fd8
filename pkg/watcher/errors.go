package watcher

import "errors"

// Common errors returned by the watcher.
var (
	// ErrWatcherClosed is returned when attempting to reuse a stopped monitor.
	ErrWatcherClosed = errors.New("watcher is closed")

	// ErrAlreadyStarted is returned when Start is called on a running monitor.
	ErrAlreadyStarted = errors.New("watcher already started")

	// ErrNotStarted is returned when Stop is called on a monitor that never started.
	ErrNotStarted = errors.New("watcher not started")

	// ErrInvalidPath is returned when the watch root is missing or not a directory.
	ErrInvalidPath = errors.New("invalid watch path")

	// ErrReadyTimeout is returned when the initial watch setup exceeds ReadyTimeout.
	ErrReadyTimeout = errors.New("watcher did not become ready in time")

	// ErrBackendClosed is reported when the backend closes its channels unexpectedly.
	ErrBackendClosed = errors.New("watch backend closed unexpectedly")

	// ErrRecoveryFailed is reported once recovery attempts are exhausted.
	ErrRecoveryFailed = errors.New("watcher recovery failed")
)
