package action

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Invocation is one command launch.
type Invocation struct {
	Command string

	// Dir is the working directory. Empty uses the process's.
	Dir string

	// Env is appended to the process environment as KEY=VALUE pairs.
	Env []string
}

// Executor runs a command line to completion.
type Executor interface {
	// Run returns the combined output. A non-zero exit is an *ExitError.
	Run(ctx context.Context, inv Invocation) ([]byte, error)
}

// ShellExecutor interprets commands with mvdan.cc/sh, so templates behave
// the same on every platform. External programs are still launched as
// child processes.
type ShellExecutor struct{}

// NewShellExecutor creates the default executor.
func NewShellExecutor() *ShellExecutor {
	return &ShellExecutor{}
}

// Run parses and interprets inv.Command.
func (ShellExecutor) Run(ctx context.Context, inv Invocation) ([]byte, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(inv.Command), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var out bytes.Buffer
	env := append(os.Environ(), inv.Env...)

	opts := []interp.RunnerOption{
		interp.StdIO(nil, &out, &out),
		interp.Env(expand.ListEnviron(env...)),
	}
	if inv.Dir != "" {
		opts = append(opts, interp.Dir(inv.Dir))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create interpreter: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		if status, ok := interp.IsExitStatus(err); ok {
			if ctx.Err() != nil {
				return out.Bytes(), ctx.Err()
			}
			return out.Bytes(), &ExitError{Code: int(status)}
		}
		return out.Bytes(), err
	}

	return out.Bytes(), nil
}
