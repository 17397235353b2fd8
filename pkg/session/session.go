package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/0xmhha/autowatch/pkg/action"
	"github.com/0xmhha/autowatch/pkg/coalesce"
	"github.com/0xmhha/autowatch/pkg/config"
	"github.com/0xmhha/autowatch/pkg/execlog"
	"github.com/0xmhha/autowatch/pkg/history"
	"github.com/0xmhha/autowatch/pkg/logger"
	"github.com/0xmhha/autowatch/pkg/metrics"
	"github.com/0xmhha/autowatch/pkg/pattern"
	"github.com/0xmhha/autowatch/pkg/watcher"
)

// Session runs one watch pipeline at a time.
type Session struct {
	opts   Options
	logger logger.Logger

	// lifecycle serializes Start, Stop and Restart.
	lifecycle sync.Mutex

	mu       sync.Mutex
	state    State
	explicit *config.Config
	pipe     *pipeline
	lastErr  error

	errs chan error

	// bg tracks stops triggered by the monitor giving up.
	bg sync.WaitGroup
}

// pipeline holds the components of one running session.
type pipeline struct {
	cfg   *config.Config
	root  string
	rules *pattern.Rules[config.Action]

	monitor *watcher.Monitor
	engine  *coalesce.Engine
	runner  *action.Runner
	store   *execlog.Store
	history history.Store
	run     *history.Run

	startedAt time.Time

	// actionCtx outlives stop so in-flight commands are not killed.
	actionCtx context.Context
	cancel    context.CancelFunc

	eventPump  sync.WaitGroup
	otherPumps sync.WaitGroup
	actions    sync.WaitGroup

	mu              sync.Mutex
	eventsProcessed int
	actionsExecuted int
	actionsFailed   int
}

// New creates an idle session.
func New(opts Options, log logger.Logger) *Session {
	if opts.Root == "" {
		opts.Root = "."
	}
	if abs, err := filepath.Abs(opts.Root); err == nil {
		opts.Root = abs
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = config.DefaultPath(opts.Root)
	}
	if opts.GraceDelay <= 0 {
		opts.GraceDelay = DefaultGraceDelay
	}

	return &Session{
		opts:   opts,
		logger: log.With("component", "session"),
		errs:   make(chan error, 16),
	}
}

// Start loads (when cfg is nil) and validates the configuration, then
// wires and starts the pipeline. Configuration errors are returned and
// leave the session idle.
func (s *Session) Start(ctx context.Context, cfg *config.Config) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	return s.start(ctx, cfg)
}

func (s *Session) start(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.state = StateStarting
	s.explicit = cfg
	s.lastErr = nil
	s.mu.Unlock()

	p, err := s.build(ctx, cfg)
	if err != nil {
		s.setState(StateIdle)
		return err
	}

	s.mu.Lock()
	s.pipe = p
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("session started",
		"root", p.root,
		"patterns", p.cfg.Patterns,
		"actions", p.rules.Len())
	return nil
}

// build assembles and starts a pipeline. Anything opened before a
// failure is closed again.
func (s *Session) build(ctx context.Context, cfg *config.Config) (_ *pipeline, err error) {
	if cfg == nil {
		cfg, err = config.Load(s.opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rules := &pattern.Rules[config.Action]{}
	for _, act := range cfg.Actions {
		if err := rules.Add(act.Pattern, act); err != nil {
			return nil, fmt.Errorf("invalid action pattern %q: %w", act.Pattern, err)
		}
	}

	logCfg, err := s.logConfig(cfg)
	if err != nil {
		return nil, err
	}
	logCfg.Enabled = cfg.Logging.Enabled

	p := &pipeline{
		cfg:   cfg,
		root:  s.opts.Root,
		rules: rules,
	}

	defer func() {
		if err != nil {
			p.close(s.logger)
		}
	}()

	p.store, err = execlog.Open(logCfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open execution log: %w", err)
	}

	if path := s.historyPath(cfg); path != "" {
		hs, herr := history.New(history.Config{DBPath: path}, s.logger)
		if herr != nil {
			s.logger.Warn("run history unavailable", "path", path, "error", herr)
		} else {
			p.history = hs
		}
	}

	p.engine = coalesce.New(coalesce.Config{QueueCapacity: s.opts.QueueCapacity}, s.logger)
	p.runner = action.NewRunner(action.Config{
		Retry: action.RetryPolicy{
			Enabled:     cfg.Retry.Enabled,
			MaxAttempts: cfg.Retry.MaxAttempts,
			Backoff:     cfg.Retry.Backoff,
			BaseDelay:   cfg.Retry.BaseDelay.Duration(),
			MaxDelay:    cfg.Retry.MaxDelay.Duration(),
		},
		Executor: s.opts.Executor,
	}, s.logger)

	p.monitor, err = watcher.New(watcher.Config{
		StabilityWindow: cfg.Monitor.StabilityWindow.Duration(),
		ReadyTimeout:    cfg.Monitor.ReadyTimeout.Duration(),
		MaxRetries:      cfg.Monitor.MaxRetries,
		RetryDelay:      cfg.Monitor.RetryDelay.Duration(),
		Backend:         s.opts.Backend,
	}, s.logger)
	if err != nil {
		return nil, err
	}

	// The pipeline lives until Stop, not until the caller's ctx ends.
	base := context.WithoutCancel(ctx)
	p.actionCtx = base
	runCtx, cancel := context.WithCancel(base)
	p.cancel = cancel

	if err = p.monitor.Start(runCtx, p.root, cfg.Patterns, cfg.Ignored); err != nil {
		return nil, fmt.Errorf("failed to start watcher: %w", err)
	}
	p.startedAt = time.Now()

	p.eventPump.Add(1)
	go s.pumpEvents(runCtx, p)

	p.otherPumps.Add(2)
	go s.pumpNotices(runCtx, p)
	go s.recordOutcomes(runCtx, p)

	if p.history != nil {
		run, herr := p.history.Begin(p.root, s.opts.ConfigPath)
		if herr != nil {
			s.logger.Warn("failed to record run start", "error", herr)
		} else {
			p.run = run
		}
	}

	return p, nil
}

// Stop halts the monitor, cancels every pending debounce, waits for
// in-flight actions and returns the session to idle.
func (s *Session) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	return s.stop(ReasonStopped)
}

func (s *Session) stop(reason string) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = StateStopping
	p := s.pipe
	s.mu.Unlock()

	s.logger.Info("session stopping", "reason", reason)

	if err := p.monitor.Stop(); err != nil {
		s.logger.Warn("failed to stop watcher", "error", err)
	}

	// No new events reach the engine past this point.
	p.cancel()
	p.eventPump.Wait()

	p.engine.ClearAll()
	p.engine.Wait()
	p.actions.Wait()

	p.runner.Close()
	p.otherPumps.Wait()

	if p.run != nil {
		p.mu.Lock()
		p.run.EventsProcessed = p.eventsProcessed
		p.run.ActionsExecuted = p.actionsExecuted
		p.run.ActionsFailed = p.actionsFailed
		p.mu.Unlock()
		p.run.StopReason = reason
		if err := p.history.Finish(p.run); err != nil {
			s.logger.Warn("failed to record run stop", "error", err)
		}
	}

	p.close(s.logger)

	s.mu.Lock()
	s.pipe = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.logger.Info("session stopped", "reason", reason)
	return nil
}

// Restart stops the session, waits the grace delay and starts it again
// with the same explicit configuration, or a freshly loaded one. Events
// arriving in the gap are lost.
func (s *Session) Restart(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	cfg := s.explicit
	s.mu.Unlock()

	if err := s.stop(ReasonRestart); err != nil {
		return err
	}

	select {
	case <-time.After(s.opts.GraceDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return s.start(ctx, cfg)
}

// Close stops a running session and waits for background work.
func (s *Session) Close() error {
	err := s.Stop()
	s.bg.Wait()
	if errors.Is(err, ErrNotRunning) {
		return nil
	}
	return err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Errors reports asynchronous faults: monitor errors, recovery failure and
// execution log write failures. Reports are dropped when nobody reads them.
func (s *Session) Errors() <-chan error {
	return s.errs
}

// NextEvent pops the oldest queued file change, if any.
func (s *Session) NextEvent() (coalesce.QueuedEvent, bool) {
	p := s.current()
	if p == nil {
		return coalesce.QueuedEvent{}, false
	}
	return p.engine.Dequeue()
}

// Status aggregates every component. It is valid in any state.
func (s *Session) Status() Status {
	s.mu.Lock()
	state := s.state
	p := s.pipe
	lastErr := s.lastErr
	s.mu.Unlock()

	st := Status{
		State:      state.String(),
		Root:       s.opts.Root,
		ConfigPath: s.opts.ConfigPath,
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}

	if p == nil {
		if cfg, err := s.LoadConfig(); err == nil {
			st.Patterns = cfg.Patterns
			st.Rules = ruleInfo(cfg)
		}
		if snap, err := s.Metrics(); err == nil {
			st.Metrics = snap
		}
		return st
	}

	st.StartedAt = p.startedAt
	if p.run != nil {
		st.RunID = p.run.ID
	}
	st.Patterns = p.cfg.Patterns
	st.Rules = ruleInfo(p.cfg)

	p.mu.Lock()
	st.EventsProcessed = p.eventsProcessed
	st.ActionsExecuted = p.actionsExecuted
	st.ActionsFailed = p.actionsFailed
	p.mu.Unlock()

	st.Monitor = p.monitor.Status()
	st.Coalesce = p.engine.Stats()
	st.Actions = p.runner.Stats()
	st.Metrics = p.store.Metrics()
	st.LogPath = p.store.Path()
	return st
}

// Logs returns up to n execution records, most recent last.
func (s *Session) Logs(n int) ([]execlog.Record, error) {
	if p := s.current(); p != nil {
		return p.store.ReadRecent(n)
	}

	store, err := s.offlineStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.ReadRecent(n)
}

// LogPath returns the active execution log path.
func (s *Session) LogPath() (string, error) {
	if p := s.current(); p != nil {
		return p.store.Path(), nil
	}

	store, err := s.offlineStore()
	if err != nil {
		return "", err
	}
	defer store.Close()

	return store.Path(), nil
}

// Metrics returns the live snapshot while running, otherwise one replayed
// from the execution log.
func (s *Session) Metrics() (metrics.Snapshot, error) {
	if p := s.current(); p != nil {
		return p.store.Metrics(), nil
	}

	cfg, err := s.LoadConfig()
	if err != nil {
		return metrics.Snapshot{}, err
	}
	logCfg, err := s.logConfig(cfg)
	if err != nil {
		return metrics.Snapshot{}, err
	}
	return execlog.Replay(logCfg)
}

// ExportMetrics writes the metrics snapshot as json or csv to path.
func (s *Session) ExportMetrics(format, path string) error {
	snap, err := s.Metrics()
	if err != nil {
		return err
	}
	return execlog.ExportSnapshot(snap, format, path)
}

// History lists up to n recorded runs, most recent first.
func (s *Session) History(n int) ([]*history.Run, error) {
	if p := s.current(); p != nil && p.history != nil {
		return p.history.List(n)
	}

	cfg, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	path := s.historyPath(cfg)
	if path == "" {
		return nil, ErrHistoryDisabled
	}

	hs, err := history.New(history.Config{DBPath: path}, s.logger)
	if err != nil {
		return nil, err
	}
	defer hs.Close()

	return hs.List(n)
}

// LoadConfig reads the configuration file, falling back to defaults.
func (s *Session) LoadConfig() (*config.Config, error) {
	return config.Load(s.opts.ConfigPath)
}

// SaveConfig validates cfg and writes it to the configuration file. A
// running session keeps its configuration until restarted.
func (s *Session) SaveConfig(cfg *config.Config) error {
	return config.Save(cfg, s.opts.ConfigPath)
}

// ConfigPath returns the configuration file path.
func (s *Session) ConfigPath() string {
	return s.opts.ConfigPath
}

func (s *Session) pumpEvents(ctx context.Context, p *pipeline) {
	defer p.eventPump.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.monitor.Events():
			s.dispatch(p, ev)
		}
	}
}

// dispatch routes ev to the first matching action rule.
func (s *Session) dispatch(p *pipeline, ev watcher.Event) {
	p.mu.Lock()
	p.eventsProcessed++
	p.mu.Unlock()

	payload, err := json.Marshal(struct {
		Path string       `json:"path"`
		Kind watcher.Kind `json:"kind"`
	}{ev.Path, ev.Kind})
	if err == nil {
		p.engine.Enqueue(coalesce.QueuedEvent{
			Key:     ev.Path,
			Kind:    string(ev.Kind),
			Payload: payload,
		})
	}

	act, glob, ok := p.rules.First(ev.Path)
	if !ok {
		s.logger.Debug("no action matches", "file", ev.Path, "kind", ev.Kind)
		return
	}

	c := action.Context{
		FilePath:  ev.Path,
		AbsPath:   ev.AbsPath,
		Root:      p.root,
		EventKind: string(ev.Kind),
		Timestamp: ev.ObservedAt,
	}
	run := func() {
		p.runner.Execute(p.actionCtx, glob, act.Rule, c)
	}

	if act.Rule.Throttle > 0 {
		p.engine.Throttle(ev.Path, act.Rule.Throttle.Duration(), func() {
			p.actions.Add(1)
			go func() {
				defer p.actions.Done()
				run()
			}()
		})
		return
	}

	p.engine.Debounce(ev.Path, p.cfg.DelayFor(act), run)
}

func (s *Session) pumpNotices(ctx context.Context, p *pipeline) {
	defer p.otherPumps.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-p.store.Errors():
			s.report(err)
		case n := <-p.monitor.Notices():
			s.handleNotice(n)
		}
	}
}

func (s *Session) handleNotice(n watcher.Notice) {
	switch n.Kind {
	case watcher.NoticeReady:
		s.logger.Debug("watcher ready")
	case watcher.NoticeError:
		s.logger.Warn("watcher error", "error", n.Err)
		s.report(n.Err)
	case watcher.NoticeRecoveryAttempt:
		s.logger.Info("watcher recovery attempt", "attempt", n.Attempt)
	case watcher.NoticeRecoverySuccess:
		s.logger.Info("watcher recovered", "attempt", n.Attempt)
	case watcher.NoticeRecoveryFailed:
		s.logger.Error("watcher recovery failed, stopping session", "error", n.Err)
		s.report(n.Err)

		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.lifecycle.Lock()
			defer s.lifecycle.Unlock()

			if err := s.stop(ReasonRecoveryFailed); err != nil && !errors.Is(err, ErrNotRunning) {
				s.logger.Error("failed to stop session", "error", err)
			}
		}()
	}
}

// recordOutcomes appends every action outcome to the execution log. On
// shutdown it drains outcomes still buffered.
func (s *Session) recordOutcomes(ctx context.Context, p *pipeline) {
	defer p.otherPumps.Done()

	for {
		select {
		case out := <-p.runner.Outcomes():
			s.record(p, out)
		case <-ctx.Done():
			s.drainOutcomes(p)
			return
		}
	}
}

// drainOutcomes records outcomes until the runner is closed, then empties
// the buffer.
func (s *Session) drainOutcomes(p *pipeline) {
	for {
		select {
		case out := <-p.runner.Outcomes():
			s.record(p, out)
		case <-p.runner.Done():
			for {
				select {
				case out := <-p.runner.Outcomes():
					s.record(p, out)
				default:
					return
				}
			}
		}
	}
}

func (s *Session) record(p *pipeline, out action.Outcome) {
	if err := p.store.Record(execlog.FromOutcome(out)); err != nil {
		s.logger.Debug("execution record not written", "error", err)
	}

	p.mu.Lock()
	switch out.Status {
	case action.StatusSuccess:
		p.actionsExecuted++
	case action.StatusError:
		p.actionsExecuted++
		p.actionsFailed++
	}
	p.mu.Unlock()

	if out.Status == action.StatusError {
		s.logger.Warn("action failed",
			"pattern", out.Pattern,
			"file", out.FilePath,
			"attempts", out.Attempts,
			"error", out.ErrorMessage)
	}
}

// report remembers err and offers it on Errors.
func (s *Session) report(err error) {
	if err == nil {
		return
	}

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	select {
	case s.errs <- err:
	default:
	}
}

func (s *Session) current() *pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// offlineStore opens the execution log read-only for an idle session.
func (s *Session) offlineStore() (*execlog.Store, error) {
	cfg, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	logCfg, err := s.logConfig(cfg)
	if err != nil {
		return nil, err
	}
	logCfg.Enabled = false
	return execlog.Open(logCfg, s.logger)
}

// logConfig maps the logging section onto an execution log config.
// Enabled is left false.
func (s *Session) logConfig(cfg *config.Config) (execlog.Config, error) {
	maxSize, err := cfg.Logging.MaxSizeBytes()
	if err != nil {
		return execlog.Config{}, fmt.Errorf("%w: %v", config.ErrInvalidMaxSize, err)
	}

	return execlog.Config{
		Dir:       s.resolve(cfg.Logging.Dir),
		Level:     cfg.Logging.Level,
		MaxSize:   maxSize,
		Rotation:  cfg.Logging.Rotation,
		Retention: cfg.Logging.Retention,
		Metrics: metrics.Config{
			ManualActionCost: cfg.Metrics.ManualActionCost.Duration(),
			TrackPercentiles: true,
		},
	}, nil
}

func (s *Session) historyPath(cfg *config.Config) string {
	path := cfg.Storage.HistoryPath
	if path == "" || strings.HasPrefix(path, "~") {
		return path
	}
	return s.resolve(path)
}

// resolve makes a project-relative path absolute.
func (s *Session) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.opts.Root, path)
}

// close releases everything the pipeline opened.
func (p *pipeline) close(log logger.Logger) {
	if p.cancel != nil {
		p.cancel()
	}
	if p.monitor != nil {
		if err := p.monitor.Stop(); err != nil && !errors.Is(err, watcher.ErrNotStarted) {
			log.Debug("watcher stop on close", "error", err)
		}
	}
	if p.runner != nil {
		p.runner.Close()
	}
	if p.history != nil {
		if err := p.history.Close(); err != nil {
			log.Warn("failed to close run history", "error", err)
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			log.Warn("failed to close execution log", "error", err)
		}
	}
}

func ruleInfo(cfg *config.Config) []RuleInfo {
	rules := make([]RuleInfo, 0, len(cfg.Actions))
	for _, act := range cfg.Actions {
		info := RuleInfo{
			Pattern:     act.Pattern,
			Command:     act.Rule.Command,
			Description: act.Rule.Description,
			Mode:        "debounce",
			DelayMs:     cfg.DelayFor(act).Milliseconds(),
		}
		if act.Rule.Throttle > 0 {
			info.Mode = "throttle"
			info.DelayMs = act.Rule.Throttle.Duration().Milliseconds()
		}
		rules = append(rules, info)
	}
	return rules
}
