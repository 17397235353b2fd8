package action

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is returned when a resolved command is not valid shell.
	ErrParse = errors.New("failed to parse command")

	// ErrRunnerClosed is returned by Execute after Close.
	ErrRunnerClosed = errors.New("action runner is closed")
)

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}
