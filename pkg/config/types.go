// Package config provides the watch configuration for autowatch.
//
// Configuration is resolved with the following precedence:
// 1. Environment variables
// 2. Configuration file (JSON, or YAML by extension)
// 3. Default values
//
// A missing configuration file is not an error: the built-in default
// watches "**/*.md" with no actions and a 2s debounce.
//
// Example usage:
//
//	cfg, err := config.Load(".autowatch/config.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("patterns: %v\n", cfg.Patterns)
package config

import (
	"time"

	"github.com/docker/go-units"
)

// Millis is a duration expressed in integer milliseconds in config files.
type Millis int64

// Duration converts m to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// Config is the durable watch configuration.
//
// Invariants:
// - Patterns has at least one glob
// - every action command is non-empty and references only known placeholders
// - an action sets at most one of debounce and throttle
//
// A Config is read-only once a session has started.
type Config struct {
	// Enabled turns the whole watch pipeline on or off.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Patterns are include globs, relative to the watch root.
	Patterns []string `json:"patterns" yaml:"patterns"`

	// Ignored are exclude globs.
	Ignored []string `json:"ignored" yaml:"ignored"`

	// Actions map a glob to a reaction, in file order.
	Actions Actions `json:"actions" yaml:"actions"`

	// Debounce holds the default coalescing delay.
	Debounce DebounceConfig `json:"debounce" yaml:"debounce"`

	// Logging configures the execution log.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Retry configures action retries.
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Monitor tunes the file monitor.
	Monitor MonitorConfig `json:"monitor" yaml:"monitor"`

	// Storage configures the run history database.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Metrics tunes derived metrics.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Diagnostics configures the diagnostic logger.
	Diagnostics DiagnosticsConfig `json:"diagnostics" yaml:"diagnostics"`
}

// ActionRule is one reaction to a matching file change.
type ActionRule struct {
	// Command is a shell command template, e.g. "go test ./${dir}/...".
	Command string `json:"command" yaml:"command"`

	// Debounce overrides the coalescing delay for this rule.
	Debounce Millis `json:"debounce,omitempty" yaml:"debounce,omitempty"`

	// Throttle switches this rule to rate limiting: at most one run per window.
	Throttle Millis `json:"throttle,omitempty" yaml:"throttle,omitempty"`

	// Timeout bounds a single attempt. Zero means no limit.
	Timeout Millis `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Retry enables retry with backoff on failure.
	Retry bool `json:"retry,omitempty" yaml:"retry,omitempty"`

	// Condition is an optional precondition (see Conditions).
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Description is shown in status output.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Action binds a glob pattern to its rule.
type Action struct {
	Pattern string
	Rule    ActionRule
}

// DebounceConfig contains coalescing delays.
type DebounceConfig struct {
	// Default is used when neither the rule nor PerPattern sets a delay.
	Default Millis `json:"default" yaml:"default"`

	// PerPattern overrides the default for rules whose pattern is a key.
	PerPattern map[string]Millis `json:"perPattern,omitempty" yaml:"perPattern,omitempty"`
}

// LoggingConfig configures the execution log.
type LoggingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Level is the minimum record level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// MaxSize is the rotation threshold, e.g. "10MB".
	MaxSize string `json:"maxSize" yaml:"maxSize"`

	Rotation bool `json:"rotation" yaml:"rotation"`

	// Dir holds the active log and its numbered backlog.
	Dir string `json:"dir" yaml:"dir"`

	// Retention is the number of rotated files kept.
	Retention int `json:"retention" yaml:"retention"`
}

// MaxSizeBytes parses MaxSize. Multiples are binary (1KB = 1024 bytes).
func (l LoggingConfig) MaxSizeBytes() (int64, error) {
	return units.RAMInBytes(l.MaxSize)
}

// RetryConfig configures action retries.
type RetryConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MaxAttempts counts the first attempt.
	MaxAttempts int `json:"maxAttempts" yaml:"maxAttempts"`

	// Backoff is "exponential" or "fixed".
	Backoff string `json:"backoff" yaml:"backoff"`

	BaseDelay Millis `json:"baseDelay" yaml:"baseDelay"`
	MaxDelay  Millis `json:"maxDelay" yaml:"maxDelay"`
}

// MonitorConfig tunes the file monitor.
type MonitorConfig struct {
	// StabilityWindow is how long size and mtime must hold still before a
	// write is surfaced.
	StabilityWindow Millis `json:"stabilityWindow" yaml:"stabilityWindow"`

	ReadyTimeout Millis `json:"readyTimeout" yaml:"readyTimeout"`
	MaxRetries   int    `json:"maxRetries" yaml:"maxRetries"`
	RetryDelay   Millis `json:"retryDelay" yaml:"retryDelay"`
}

// StorageConfig configures the run history database.
type StorageConfig struct {
	// HistoryPath is the bbolt file. Empty disables run history.
	HistoryPath string `json:"historyPath" yaml:"historyPath"`
}

// MetricsConfig tunes derived metrics.
type MetricsConfig struct {
	// ManualActionCost is the time one successful automated run is assumed
	// to save.
	ManualActionCost Millis `json:"manualActionCost" yaml:"manualActionCost"`
}

// DiagnosticsConfig configures the diagnostic logger.
type DiagnosticsConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Output string `json:"output" yaml:"output"`
}

// Backoff strategies.
const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// Preconditions an action may declare.
const (
	ConditionFileExists = "file-exists"
	ConditionNotDeleted = "not-deleted"
	ConditionTestExists = "test-exists"
)

// Conditions lists every recognized precondition.
var Conditions = []string{ConditionFileExists, ConditionNotDeleted, ConditionTestExists}

// Placeholders lists every template variable a command may reference.
var Placeholders = []string{"file", "spec", "dir", "name", "ext", "event", "root"}

// DelayFor resolves the coalescing delay of the action bound to pattern.
func (c *Config) DelayFor(a Action) time.Duration {
	if a.Rule.Debounce > 0 {
		return a.Rule.Debounce.Duration()
	}
	if d, ok := c.Debounce.PerPattern[a.Pattern]; ok && d > 0 {
		return d.Duration()
	}
	return c.Debounce.Default.Duration()
}
