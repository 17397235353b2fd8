package history

import "errors"

// Common errors returned by the history store.
var (
	// ErrRunNotFound is returned when a run is not found.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidID is returned when a run ID is not a UUID.
	ErrInvalidID = errors.New("invalid run ID")

	// ErrNilRun is returned when Finish is called with nil.
	ErrNilRun = errors.New("run cannot be nil")

	// ErrNoPath is returned when Config.DBPath is empty.
	ErrNoPath = errors.New("history database path is required")
)
