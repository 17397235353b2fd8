package dashboard

import "errors"

var (
	// ErrClosed is returned when operations are attempted on a closed dashboard.
	ErrClosed = errors.New("dashboard is closed")

	// ErrRunning is returned when Start is called twice.
	ErrRunning = errors.New("dashboard is already running")

	// ErrNoSource is returned by New when the source is nil.
	ErrNoSource = errors.New("dashboard needs a status source")
)
