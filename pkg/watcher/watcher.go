package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/autowatch/pkg/logger"
	"github.com/0xmhha/autowatch/pkg/pattern"
)

// Monitor watches one directory tree. It is single-use: once stopped it
// cannot be started again.
type Monitor struct {
	config Config
	logger logger.Logger

	events  chan Event
	notices chan Notice
	done    chan struct{}

	mu           sync.RWMutex
	started      bool
	closed       bool
	state        State
	root         string
	filter       *pattern.Set
	backend      Backend
	cancel       context.CancelFunc
	filesTracked int
	errorCount   int
	retryCount   int
	emitted      int

	// Write-stability state.
	pendingMu sync.Mutex
	pending   map[string]*pendingWrite
}

// pendingWrite is a file waiting for its size and mtime to settle.
type pendingWrite struct {
	kind  Kind
	abs   string
	size  int64
	mtime time.Time
	gen   int
	timer *time.Timer
}

// New creates a file monitor.
//
// Parameters:
//   - cfg: Monitor configuration
//   - log: Logger instance
func New(cfg Config, log logger.Logger) (*Monitor, error) {
	// Set defaults.
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Backend == nil {
		cfg.Backend = NewFSNotifyBackend
	}

	m := &Monitor{
		config:  cfg,
		logger:  log.With("component", "watcher"),
		events:  make(chan Event, 256),
		notices: make(chan Notice, 64),
		done:    make(chan struct{}),
		pending: make(map[string]*pendingWrite),
	}

	return m, nil
}

// Start walks root, registers every non-excluded directory, and begins
// surfacing events. It returns once the backend is ready, or with
// ErrReadyTimeout if that takes longer than Config.ReadyTimeout.
func (m *Monitor) Start(ctx context.Context, root string, include, exclude []string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrWatcherClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	filter, err := pattern.NewSet(include, exclude)
	if err != nil {
		return fmt.Errorf("failed to compile patterns: %w", err)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPath, root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrInvalidPath, absRoot)
	}

	m.mu.Lock()
	m.root = absRoot
	m.filter = filter
	m.mu.Unlock()

	b, tracked, err := m.attachWithTimeout()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		_ = b.Close() // nolint:errcheck
		return ErrWatcherClosed
	}
	m.backend = b
	m.cancel = cancel
	m.filesTracked = tracked
	m.state = StateWatching
	m.mu.Unlock()

	go m.processEvents(runCtx, b)

	m.logger.Info("watcher started",
		"root", absRoot,
		"include", include,
		"exclude", exclude,
		"files_tracked", tracked)
	m.notify(Notice{Kind: NoticeReady})

	return nil
}

// Stop halts the monitor, cancels pending write-stability checks and closes
// the backend. Calling Stop more than once is a no-op.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.state = StateStopped
	if m.cancel != nil {
		m.cancel()
	}
	close(m.done)
	b := m.backend
	m.backend = nil
	m.mu.Unlock()

	m.cancelAllPending()

	if b != nil {
		if err := b.Close(); err != nil {
			m.logger.Error("failed to close watch backend", "error", err)
			return fmt.Errorf("failed to close watcher: %w", err)
		}
	}

	m.logger.Info("watcher stopped")
	return nil
}

// Events returns surfaced file changes. The channel is never closed; select
// on Done to detect shutdown.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Notices returns lifecycle signals (ready, error, recovery:*).
func (m *Monitor) Notices() <-chan Notice {
	return m.notices
}

// Done is closed when the monitor stops.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Status returns a snapshot of the monitor.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Status{
		Watching:      m.state == StateWatching,
		State:         m.state.String(),
		FilesTracked:  m.filesTracked,
		ErrorCount:    m.errorCount,
		RetryCount:    m.retryCount,
		EventsEmitted: m.emitted,
	}
}

// attachWithTimeout runs attach, giving up after ReadyTimeout. A backend
// that becomes ready after the deadline is closed.
func (m *Monitor) attachWithTimeout() (Backend, int, error) {
	type result struct {
		b       Backend
		tracked int
		err     error
	}

	ch := make(chan result, 1)
	go func() {
		b, tracked, err := m.attach()
		ch <- result{b, tracked, err}
	}()

	timer := time.NewTimer(m.config.ReadyTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.b, r.tracked, r.err
	case <-timer.C:
		go func() {
			if r := <-ch; r.b != nil {
				_ = r.b.Close() // nolint:errcheck
			}
		}()
		return nil, 0, fmt.Errorf("%w after %v", ErrReadyTimeout, m.config.ReadyTimeout)
	}
}

// attach creates a backend and registers every non-excluded directory
// under the root. It returns the number of files that pass the filter.
func (m *Monitor) attach() (Backend, int, error) {
	b, err := m.config.Backend()
	if err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	root := m.root
	m.mu.RUnlock()

	tracked, err := m.walk(b, root, nil)
	if err != nil {
		if closeErr := b.Close(); closeErr != nil {
			m.logger.Warn("failed to close backend after setup error", "error", closeErr)
		}
		return nil, 0, fmt.Errorf("failed to watch %s: %w", root, err)
	}

	return b, tracked, nil
}

// walk registers directories under dir with b and counts allowed files.
// When onFile is set it is called for every allowed file.
func (m *Monitor) walk(b Backend, dir string, onFile func(rel, abs string)) (int, error) {
	tracked := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			m.logger.Warn("error walking path", "path", path, "error", walkErr)
			return nil // Skip but continue walking.
		}

		rel := m.rel(path)
		if d.IsDir() {
			if rel != "." && m.filter.ExcludedDir(rel) {
				return filepath.SkipDir
			}
			if addErr := b.Add(path); addErr != nil {
				if path == dir {
					return addErr
				}
				m.logger.Warn("failed to add subdirectory", "path", path, "error", addErr)
			}
			return nil
		}

		if m.filter.Allow(rel) {
			tracked++
			if onFile != nil {
				onFile(rel, path)
			}
		}
		return nil
	})

	return tracked, err
}

// processEvents pumps one backend until it faults or the monitor stops.
func (m *Monitor) processEvents(ctx context.Context, b Backend) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-b.Events():
			if !ok {
				if ctx.Err() == nil {
					m.fault(ctx, b, ErrBackendClosed)
				}
				return
			}
			m.handleEvent(b, ev)

		case err, ok := <-b.Errors():
			if !ok {
				err = ErrBackendClosed
			}
			if ctx.Err() == nil {
				m.fault(ctx, b, err)
			}
			return
		}
	}
}

// handleEvent normalizes one fsnotify event.
func (m *Monitor) handleEvent(b Backend, ev fsnotify.Event) {
	abs := ev.Name
	rel := m.rel(abs)

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			m.addTree(b, abs, rel)
			return
		}
	}

	if !m.filter.Allow(rel) {
		m.logger.Debug("event filtered", "path", rel, "op", ev.Op.String())
		return
	}

	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		m.cancelPending(rel)
		m.adjustTracked(-1)
		m.emit(Event{Path: rel, AbsPath: abs, Kind: KindDeleted})
	case ev.Op&fsnotify.Create != 0:
		m.adjustTracked(1)
		m.settle(rel, abs, KindAdded)
	case ev.Op&fsnotify.Write != 0:
		m.settle(rel, abs, KindChanged)
	default:
		// Chmod carries no content change.
	}
}

// addTree starts watching a newly created directory and surfaces the
// allowed files already inside it.
func (m *Monitor) addTree(b Backend, abs, rel string) {
	if m.filter.ExcludedDir(rel) {
		return
	}

	added, err := m.walk(b, abs, func(fileRel, fileAbs string) {
		m.settle(fileRel, fileAbs, KindAdded)
	})
	if err != nil {
		m.logger.Warn("failed to watch new directory", "path", rel, "error", err)
		return
	}

	m.adjustTracked(added)
	m.logger.Debug("added watch directory", "path", rel, "files", added)
}

// settle surfaces an added/changed event once the file has held still for
// StabilityWindow. A new write for the same path restarts the window; a
// file first seen as added stays added.
func (m *Monitor) settle(rel, abs string, kind Kind) {
	window := m.config.StabilityWindow
	if window <= 0 {
		m.emit(Event{Path: rel, AbsPath: abs, Kind: kind})
		return
	}

	size, mtime := statFile(abs)

	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	p, exists := m.pending[rel]
	if exists {
		p.timer.Stop()
		if p.kind != KindAdded {
			p.kind = kind
		}
	} else {
		p = &pendingWrite{kind: kind, abs: abs}
		m.pending[rel] = p
	}

	p.size, p.mtime = size, mtime
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(window, func() {
		m.checkStable(rel, gen)
	})
}

// checkStable emits a pending write if nothing changed since it was armed.
func (m *Monitor) checkStable(rel string, gen int) {
	m.pendingMu.Lock()

	p, ok := m.pending[rel]
	if !ok || p.gen != gen {
		m.pendingMu.Unlock()
		return
	}

	if _, err := os.Stat(p.abs); err != nil {
		// Gone already; the delete event follows.
		delete(m.pending, rel)
		m.pendingMu.Unlock()
		return
	}

	size, mtime := statFile(p.abs)
	if size != p.size || !mtime.Equal(p.mtime) {
		p.size, p.mtime = size, mtime
		p.gen++
		next := p.gen
		p.timer = time.AfterFunc(m.config.StabilityWindow, func() {
			m.checkStable(rel, next)
		})
		m.pendingMu.Unlock()
		return
	}

	delete(m.pending, rel)
	ev := Event{Path: rel, AbsPath: p.abs, Kind: p.kind}
	m.pendingMu.Unlock()

	m.emit(ev)
}

func (m *Monitor) cancelPending(rel string) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	if p, ok := m.pending[rel]; ok {
		p.timer.Stop()
		delete(m.pending, rel)
	}
}

func (m *Monitor) cancelAllPending() {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	for rel, p := range m.pending {
		p.timer.Stop()
		delete(m.pending, rel)
	}
}

// fault handles a backend error by entering recovery.
func (m *Monitor) fault(ctx context.Context, b Backend, cause error) {
	m.mu.Lock()
	m.errorCount++
	m.state = StateRecovering
	if m.backend == b {
		m.backend = nil
	}
	m.mu.Unlock()

	m.logger.Error("watch backend fault", "error", cause)
	m.notify(Notice{Kind: NoticeError, Err: cause})

	if err := b.Close(); err != nil {
		m.logger.Warn("failed to close faulted backend", "error", err)
	}

	m.recover(ctx, cause)
}

// recover restarts the backend against the same root and patterns, waiting
// RetryDelay before each attempt. Success resets the retry counter;
// exhausting MaxRetries emits recovery:failed and stops the monitor.
func (m *Monitor) recover(ctx context.Context, cause error) {
	lastErr := cause

	for {
		m.mu.Lock()
		if m.retryCount >= m.config.MaxRetries {
			m.state = StateStopped
			m.mu.Unlock()
			break
		}
		m.retryCount++
		attempt := m.retryCount
		m.mu.Unlock()

		m.logger.Warn("attempting watcher recovery",
			"attempt", attempt,
			"max_retries", m.config.MaxRetries)
		m.notify(Notice{Kind: NoticeRecoveryAttempt, Attempt: attempt})

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.config.RetryDelay):
		}

		b, tracked, err := m.attachWithTimeout()
		if err == nil {
			m.mu.Lock()
			if ctx.Err() != nil {
				m.mu.Unlock()
				_ = b.Close() // nolint:errcheck
				return
			}
			m.backend = b
			m.filesTracked = tracked
			m.retryCount = 0
			m.state = StateWatching
			m.mu.Unlock()

			m.logger.Info("watcher recovered", "attempt", attempt)
			m.notify(Notice{Kind: NoticeRecoverySuccess, Attempt: attempt})

			go m.processEvents(ctx, b)
			return
		}

		lastErr = err
		m.mu.Lock()
		m.errorCount++
		m.mu.Unlock()

		m.logger.Error("watcher recovery attempt failed", "attempt", attempt, "error", err)
		m.notify(Notice{Kind: NoticeError, Err: err, Attempt: attempt})
	}

	err := fmt.Errorf("%w after %d attempts: %v", ErrRecoveryFailed, m.config.MaxRetries, lastErr)
	m.logger.Error("watcher recovery exhausted", "error", err)

	n := Notice{Kind: NoticeRecoveryFailed, Err: err, Time: time.Now()}
	select {
	case m.notices <- n:
	case <-m.done:
	}
}

// emit delivers an event unless the monitor has stopped.
func (m *Monitor) emit(ev Event) {
	ev.ObservedAt = time.Now()

	select {
	case <-m.done:
		return
	default:
	}

	select {
	case m.events <- ev:
		m.mu.Lock()
		m.emitted++
		m.mu.Unlock()
		m.logger.Debug("file event", "path", ev.Path, "kind", ev.Kind)
	case <-m.done:
	}
}

// notify sends a non-terminal notice, dropping it if nobody keeps up.
func (m *Monitor) notify(n Notice) {
	n.Time = time.Now()

	select {
	case m.notices <- n:
	default:
		m.logger.Warn("notice channel full, dropping notice", "kind", n.Kind)
	}
}

func (m *Monitor) adjustTracked(delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.filesTracked += delta
	if m.filesTracked < 0 {
		m.filesTracked = 0
	}
}

// rel converts an absolute path to a slash path relative to the root.
func (m *Monitor) rel(path string) string {
	r, err := filepath.Rel(m.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(r)
}

// statFile returns size and mtime, or zero values if the file is gone.
func statFile(path string) (int64, time.Time) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}
	}
	return info.Size(), info.ModTime()
}
