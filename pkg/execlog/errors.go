package execlog

import "errors"

var (
	// ErrNoDir is returned when Config.Dir is empty.
	ErrNoDir = errors.New("execution log directory is required")

	// ErrWrite wraps failures to append or rotate the log.
	ErrWrite = errors.New("failed to write execution log")

	// ErrUnknownFormat is returned by ExportMetrics for formats other than json and csv.
	ErrUnknownFormat = errors.New("unknown export format")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("execution log is closed")
)
