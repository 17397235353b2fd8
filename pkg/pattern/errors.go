package pattern

import "errors"

// Common errors returned by the pattern package.
var (
	// ErrEmptyPattern is returned for a blank glob.
	ErrEmptyPattern = errors.New("empty pattern")

	// ErrBadPattern is returned when a glob does not parse.
	ErrBadPattern = errors.New("malformed glob pattern")
)
