// Package action executes the command bound to a matching file change.
//
// A Runner resolves placeholders in the command template, evaluates the
// rule's precondition, runs the command through an Executor and retries
// failures with backoff when the rule allows it. Every call to Execute
// yields exactly one Outcome, which is also published on Outcomes().
//
// Example usage:
//
//	r := action.NewRunner(action.Config{
//	    Retry: action.RetryPolicy{Enabled: true, MaxAttempts: 3, BaseDelay: time.Second},
//	}, logger.Default())
//	defer r.Close()
//
//	out := r.Execute(ctx, "**/*.md", rule, action.Context{FilePath: "docs/a.md"})
//	fmt.Println(out.Status, out.Attempts, out.Duration)
package action

import (
	"time"
)

// Status is the final state of one execution.
type Status string

// Execution statuses.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Error types reported in Outcome.ErrorType.
const (
	ErrorTypeExit     = "exit"
	ErrorTypeLaunch   = "launch"
	ErrorTypeParse    = "parse"
	ErrorTypeTimeout  = "timeout"
	ErrorTypeCanceled = "canceled"
	ErrorTypeConfig   = "config"
)

// Context describes the change that triggered an action.
type Context struct {
	// FilePath is slash-separated and relative to Root.
	FilePath string

	// AbsPath is the absolute OS path of the file.
	AbsPath string

	// Root is the absolute watch root. Commands run there.
	Root string

	// EventKind is added, changed or deleted.
	EventKind string

	Timestamp time.Time
}

// Outcome is the structured result of one Execute call.
type Outcome struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description,omitempty"`

	// Command is the resolved command line.
	Command   string `json:"command"`
	FilePath  string `json:"filePath"`
	EventKind string `json:"eventKind"`

	Status   Status        `json:"status"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// Err is the final error for StatusError.
	Err          error  `json:"-"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ErrorType    string `json:"errorType,omitempty"`
	ExitCode     int    `json:"exitCode,omitempty"`

	// Output is the tail of the final attempt's combined output.
	Output string `json:"output,omitempty"`

	// SkipReason explains a StatusSkipped outcome.
	SkipReason string `json:"skipReason,omitempty"`
}

// RetryPolicy configures retries for rules that enable them.
type RetryPolicy struct {
	Enabled bool

	// MaxAttempts counts the first attempt.
	MaxAttempts int

	// Backoff is "exponential" (default) or "fixed".
	Backoff string

	// BaseDelay is the wait before the second attempt. Exponential backoff
	// doubles it for each further attempt, capped at MaxDelay when set.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Config contains runner configuration.
type Config struct {
	Retry RetryPolicy

	// Executor overrides the shell executor. Used in tests.
	Executor Executor

	// OutcomeBuffer sizes the Outcomes channel. Default: 64.
	OutcomeBuffer int

	// MaxOutput caps Outcome.Output in bytes. Default: 4096.
	MaxOutput int
}

// Stats is a snapshot of runner counters.
type Stats struct {
	Executions int `json:"executions"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Attempts   int `json:"attempts"`
	Running    int `json:"running"`
}
