package session

import "errors"

// Common errors returned by sessions.
var (
	// ErrAlreadyRunning is returned when Start is called on a running session.
	ErrAlreadyRunning = errors.New("session already running")

	// ErrNotRunning is returned when Stop or Restart is called on an idle session.
	ErrNotRunning = errors.New("session not running")

	// ErrDisabled is returned when the configuration has enabled=false.
	ErrDisabled = errors.New("watch pipeline is disabled in configuration")

	// ErrHistoryDisabled is returned by History when no history path is configured.
	ErrHistoryDisabled = errors.New("run history is disabled")
)
