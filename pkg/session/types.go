// Package session orchestrates the watch pipeline.
//
// A Session wires the file monitor into the coalescing engine, released
// actions into the action runner, and outcomes into the execution log:
//
//	watcher.Monitor -> coalesce.Engine -> action.Runner -> execlog.Store
//
// Its lifecycle is idle -> starting -> running -> stopping -> idle.
//
// Example usage:
//
//	s := session.New(session.Options{Root: "."}, logger.Default())
//	if err := s.Start(ctx, nil); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	fmt.Printf("%+v\n", s.Status())
package session

import (
	"time"

	"github.com/0xmhha/autowatch/pkg/action"
	"github.com/0xmhha/autowatch/pkg/coalesce"
	"github.com/0xmhha/autowatch/pkg/metrics"
	"github.com/0xmhha/autowatch/pkg/watcher"
)

// State is a session lifecycle state.
type State int

// Session states.
const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Stop reasons recorded in run history.
const (
	ReasonStopped        = "stopped"
	ReasonRestart        = "restart"
	ReasonRecoveryFailed = "recovery failed"
)

// DefaultGraceDelay is the pause between stop and start on Restart.
const DefaultGraceDelay = 500 * time.Millisecond

// Options contains session configuration that does not live in the
// watch configuration file.
type Options struct {
	// Root is the watch root. Default: current directory.
	Root string

	// ConfigPath is the configuration file. Default: <Root>/.autowatch/config.json.
	ConfigPath string

	// GraceDelay is the pause between stop and start on Restart.
	GraceDelay time.Duration

	// QueueCapacity bounds the pull queue behind NextEvent.
	QueueCapacity int

	// Backend overrides the monitor backend. Used in tests.
	Backend watcher.BackendFactory

	// Executor overrides the shell executor. Used in tests.
	Executor action.Executor
}

// RuleInfo describes one configured action rule.
type RuleInfo struct {
	Pattern     string `json:"pattern"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`

	// Mode is "debounce" or "throttle".
	Mode string `json:"mode"`

	// DelayMs is the resolved debounce delay or throttle window.
	DelayMs int64 `json:"delayMs"`
}

// Status aggregates every component of a session.
type Status struct {
	State      string    `json:"state"`
	Root       string    `json:"root"`
	ConfigPath string    `json:"configPath"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	RunID      string    `json:"runId,omitempty"`

	Patterns []string   `json:"patterns"`
	Rules    []RuleInfo `json:"rules"`

	EventsProcessed int `json:"eventsProcessed"`
	ActionsExecuted int `json:"actionsExecuted"`
	ActionsFailed   int `json:"actionsFailed"`

	Monitor  watcher.Status   `json:"monitor"`
	Coalesce coalesce.Stats   `json:"coalesce"`
	Actions  action.Stats     `json:"actions"`
	Metrics  metrics.Snapshot `json:"metrics"`

	LogPath   string `json:"logPath,omitempty"`
	LastError string `json:"lastError,omitempty"`
}
