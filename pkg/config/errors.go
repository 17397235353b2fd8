package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrNoPatterns is returned when the include pattern list is empty.
	ErrNoPatterns = errors.New("no watch patterns specified")

	// ErrEmptyCommand is returned when an action has a blank command template.
	ErrEmptyCommand = errors.New("action command cannot be empty")

	// ErrUnknownPlaceholder is returned when a command references an unknown ${var}.
	ErrUnknownPlaceholder = errors.New("unknown placeholder in command template")

	// ErrUnknownCondition is returned when an action declares an unknown precondition.
	ErrUnknownCondition = errors.New("unknown action condition")

	// ErrDebounceAndThrottle is returned when an action sets both debounce and throttle.
	ErrDebounceAndThrottle = errors.New("action cannot set both debounce and throttle")

	// ErrNegativeDelay is returned for a delay, window or timeout below zero.
	ErrNegativeDelay = errors.New("delay must be >= 0")

	// ErrInvalidPattern is returned when a glob does not parse.
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when the diagnostic log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrInvalidMaxSize is returned when logging.maxSize does not parse or is not positive.
	ErrInvalidMaxSize = errors.New("invalid max log size: expected <N><B|KB|MB|GB>")

	// ErrInvalidRetention is returned when logging.retention is negative.
	ErrInvalidRetention = errors.New("invalid log retention: must be >= 0")

	// ErrInvalidMaxAttempts is returned when retry.maxAttempts < 1 with retry enabled.
	ErrInvalidMaxAttempts = errors.New("invalid retry max attempts: must be >= 1")

	// ErrInvalidBackoff is returned for an unknown backoff strategy.
	ErrInvalidBackoff = errors.New("invalid backoff: must be exponential or fixed")

	// ErrInvalidMonitorRetries is returned when monitor.maxRetries is negative.
	ErrInvalidMonitorRetries = errors.New("invalid monitor max retries: must be >= 0")

	// ErrConfigNotFound is returned when an explicitly requested file is missing.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidSyntax is returned when the file does not decode.
	ErrInvalidSyntax = errors.New("invalid config file syntax")
)
