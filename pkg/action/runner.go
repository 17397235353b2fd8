package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/0xmhha/autowatch/pkg/config"
	"github.com/0xmhha/autowatch/pkg/logger"
)

// Runner executes action rules.
type Runner struct {
	config   Config
	executor Executor
	logger   logger.Logger

	outcomes chan Outcome
	done     chan struct{}
	once     sync.Once

	mu    sync.Mutex
	stats Stats
}

// NewRunner creates an action runner.
func NewRunner(cfg Config, log logger.Logger) *Runner {
	if cfg.Executor == nil {
		cfg.Executor = NewShellExecutor()
	}
	if cfg.OutcomeBuffer <= 0 {
		cfg.OutcomeBuffer = 64
	}
	if cfg.MaxOutput <= 0 {
		cfg.MaxOutput = 4096
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}

	return &Runner{
		config:   cfg,
		executor: cfg.Executor,
		logger:   log.With("component", "action"),
		outcomes: make(chan Outcome, cfg.OutcomeBuffer),
		done:     make(chan struct{}),
	}
}

// Outcomes returns every outcome produced by Execute. The channel is never
// closed; it stops receiving after Close.
func (r *Runner) Outcomes() <-chan Outcome {
	return r.outcomes
}

// Done is closed by Close.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Close stops publishing outcomes. Pending Execute calls still return.
func (r *Runner) Close() {
	r.once.Do(func() { close(r.done) })
}

// Execute runs rule for the change described by c and returns its outcome.
//
// A failing precondition yields StatusSkipped. A command failure is retried
// only when both the runner policy and the rule enable retry; Duration
// spans from the first attempt to the end of the last, and is zero when no
// attempt ran.
func (r *Runner) Execute(ctx context.Context, pattern string, rule config.ActionRule, c Context) Outcome {
	out := Outcome{
		Pattern:     pattern,
		Description: rule.Description,
		Command:     rule.Command,
		FilePath:    c.FilePath,
		EventKind:   c.EventKind,
	}

	select {
	case <-r.done:
		return r.finish(out, StatusError, ErrRunnerClosed)
	default:
	}

	command, err := Substitute(rule.Command, c)
	if err != nil {
		out = r.finish(out, StatusError, err)
		out.ErrorType = ErrorTypeConfig
		r.publish(out)
		return out
	}
	out.Command = command

	if ok, reason := checkCondition(rule.Condition, c); !ok {
		out.SkipReason = reason
		out = r.finish(out, StatusSkipped, nil)
		r.logger.Debug("action skipped",
			"pattern", pattern,
			"file", c.FilePath,
			"condition", rule.Condition,
			"reason", reason)
		r.publish(out)
		return out
	}

	r.adjustRunning(1)
	defer r.adjustRunning(-1)

	inv := Invocation{
		Command: command,
		Dir:     c.Root,
		Env: []string{
			"AUTOWATCH_FILE=" + c.FilePath,
			"AUTOWATCH_EVENT=" + c.EventKind,
		},
	}

	var output []byte
	operation := func() error {
		out.Attempts++

		attemptCtx := ctx
		if rule.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, rule.Timeout.Duration())
			defer cancel()
		}

		var runErr error
		output, runErr = r.executor.Run(attemptCtx, inv)
		if runErr == nil {
			return nil
		}

		if errors.Is(runErr, ErrParse) {
			return backoff.Permanent(runErr)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return runErr
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("action attempt failed, retrying",
			"pattern", pattern,
			"file", c.FilePath,
			"attempt", out.Attempts,
			"next_in", wait,
			"error", err)
	}

	out.StartedAt = time.Now()
	err = backoff.RetryNotify(operation, backoff.WithContext(r.schedule(rule), ctx), notify)

	out.Output = tail(output, r.config.MaxOutput)
	if err != nil {
		out = r.finish(out, StatusError, err)
		r.logger.Error("action failed",
			"pattern", pattern,
			"file", c.FilePath,
			"command", command,
			"attempts", out.Attempts,
			"error_type", out.ErrorType,
			"error", err)
	} else {
		out = r.finish(out, StatusSuccess, nil)
		r.logger.Info("action succeeded",
			"pattern", pattern,
			"file", c.FilePath,
			"attempts", out.Attempts,
			"duration", out.Duration)
	}

	r.publish(out)
	return out
}

// Stats returns a snapshot of runner counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// schedule builds the backoff for one Execute call. It allows
// MaxAttempts-1 retries when retry is enabled for both the runner and rule.
func (r *Runner) schedule(rule config.ActionRule) backoff.BackOff {
	policy := r.config.Retry
	if !policy.Enabled || !rule.Retry {
		return &backoff.StopBackOff{}
	}

	var b backoff.BackOff
	switch policy.Backoff {
	case config.BackoffFixed:
		b = backoff.NewConstantBackOff(policy.BaseDelay)
	default:
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = policy.BaseDelay
		exp.Multiplier = 2
		exp.RandomizationFactor = 0
		exp.MaxElapsedTime = 0
		if policy.MaxDelay > 0 {
			exp.MaxInterval = policy.MaxDelay
		} else {
			exp.MaxInterval = time.Duration(1<<62 - 1)
		}
		exp.Reset()
		b = exp
	}

	return backoff.WithMaxRetries(b, uint64(policy.MaxAttempts-1))
}

// finish stamps the final status and timing on out.
func (r *Runner) finish(out Outcome, status Status, err error) Outcome {
	out.FinishedAt = time.Now()
	if out.StartedAt.IsZero() {
		// No attempt ran.
		out.StartedAt = out.FinishedAt
	}
	out.Duration = out.FinishedAt.Sub(out.StartedAt)
	out.Status = status

	if err != nil {
		out.Err = err
		out.ErrorMessage = err.Error()
		out.ErrorType = classify(err)

		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.Code
		}
	}

	r.mu.Lock()
	r.stats.Attempts += out.Attempts
	switch status {
	case StatusSuccess:
		r.stats.Executions++
		r.stats.Succeeded++
	case StatusError:
		r.stats.Executions++
		r.stats.Failed++
	case StatusSkipped:
		r.stats.Skipped++
	}
	r.mu.Unlock()

	return out
}

// publish delivers out to Outcomes unless the runner is closed.
func (r *Runner) publish(out Outcome) {
	select {
	case r.outcomes <- out:
	case <-r.done:
		r.logger.Warn("runner closed, outcome not published", "file", out.FilePath)
	}
}

func (r *Runner) adjustRunning(delta int) {
	r.mu.Lock()
	r.stats.Running += delta
	r.mu.Unlock()
}

// classify maps an execution error to an ErrorType.
func classify(err error) string {
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return ErrorTypeExit
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case errors.Is(err, ErrParse):
		return ErrorTypeParse
	case errors.Is(err, config.ErrUnknownPlaceholder):
		return ErrorTypeConfig
	default:
		return ErrorTypeLaunch
	}
}

// tail returns the last limit bytes of b.
func tail(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return fmt.Sprintf("...%s", b[len(b)-limit:])
}
