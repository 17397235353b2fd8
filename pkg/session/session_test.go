package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/0xmhha/autowatch/pkg/action"
	"github.com/0xmhha/autowatch/pkg/config"
	"github.com/0xmhha/autowatch/pkg/execlog"
	"github.com/0xmhha/autowatch/pkg/logger"
	"github.com/0xmhha/autowatch/pkg/watcher"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	events chan fsnotify.Event
	errors chan error

	mu     sync.Mutex
	closed bool
}

func (b *fakeBackend) Add(string) error              { return nil }
func (b *fakeBackend) Events() <-chan fsnotify.Event { return b.events }
func (b *fakeBackend) Errors() <-chan error          { return b.errors }

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
		close(b.errors)
	}
	return nil
}

// fakeBackends hands out backends. After the first, creation fails when
// failAfterFirst is set.
type fakeBackends struct {
	mu             sync.Mutex
	created        []*fakeBackend
	failAfterFirst bool
}

func (f *fakeBackends) New() (watcher.Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAfterFirst && len(f.created) > 0 {
		return nil, errors.New("watch limit reached")
	}
	b := &fakeBackend{
		events: make(chan fsnotify.Event, 16),
		errors: make(chan error, 1),
	}
	f.created = append(f.created, b)
	return b, nil
}

func (f *fakeBackends) latest() *fakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[len(f.created)-1]
}

// recordingExecutor succeeds after delay and remembers every invocation.
type recordingExecutor struct {
	delay time.Duration

	mu    sync.Mutex
	calls []action.Invocation
	times []time.Time
}

func (e *recordingExecutor) Run(_ context.Context, inv action.Invocation) ([]byte, error) {
	e.mu.Lock()
	e.calls = append(e.calls, inv)
	e.times = append(e.times, time.Now())
	e.mu.Unlock()

	time.Sleep(e.delay)
	return []byte("ok\n"), nil
}

func (e *recordingExecutor) snapshot() ([]action.Invocation, []time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]action.Invocation(nil), e.calls...), append([]time.Time(nil), e.times...)
}

type fixture struct {
	session  *Session
	root     string
	backends *fakeBackends
	executor *recordingExecutor
}

func newFixture(t *testing.T, backends *fakeBackends) *fixture {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "docs", "a.md"), []byte("# a\n"), 0644))

	if backends == nil {
		backends = &fakeBackends{}
	}
	exec := &recordingExecutor{}

	s := New(Options{
		Root:       root,
		GraceDelay: 10 * time.Millisecond,
		Backend:    backends.New,
		Executor:   exec,
	}, logger.Noop())
	t.Cleanup(func() { _ = s.Close() })

	return &fixture{session: s, root: root, backends: backends, executor: exec}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Patterns = []string{"**/*.md"}
	cfg.Actions = config.Actions{
		{Pattern: "**/*.md", Rule: config.ActionRule{Command: "echo ${file}", Debounce: 100}},
	}
	cfg.Monitor.StabilityWindow = 0
	cfg.Monitor.RetryDelay = 10
	return cfg
}

func (f *fixture) write(rel string) {
	f.backends.latest().events <- fsnotify.Event{
		Name: filepath.Join(f.root, filepath.FromSlash(rel)),
		Op:   fsnotify.Write,
	}
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, StateIdle, f.session.State())
	require.NoError(t, f.session.Start(context.Background(), testConfig()))
	assert.Equal(t, StateRunning, f.session.State())

	assert.ErrorIs(t, f.session.Start(context.Background(), testConfig()), ErrAlreadyRunning)

	st := f.session.Status()
	assert.Equal(t, "running", st.State)
	assert.True(t, st.Monitor.Watching)
	assert.NotEmpty(t, st.RunID)
	require.Len(t, st.Rules, 1)
	assert.Equal(t, "debounce", st.Rules[0].Mode)
	assert.Equal(t, int64(100), st.Rules[0].DelayMs)

	require.NoError(t, f.session.Stop())
	assert.Equal(t, StateIdle, f.session.State())
	assert.ErrorIs(t, f.session.Stop(), ErrNotRunning)
}

func TestStartConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{
			name:   "no patterns",
			mutate: func(c *config.Config) { c.Patterns = nil },
			want:   config.ErrNoPatterns,
		},
		{
			name: "empty command",
			mutate: func(c *config.Config) {
				c.Actions = config.Actions{{Pattern: "**/*.md", Rule: config.ActionRule{Command: "  "}}}
			},
			want: config.ErrEmptyCommand,
		},
		{
			name:   "disabled",
			mutate: func(c *config.Config) { c.Enabled = false },
			want:   ErrDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			cfg := testConfig()
			tt.mutate(cfg)

			err := f.session.Start(context.Background(), cfg)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateIdle, f.session.State())
		})
	}
}

func TestStartFallsBackToDefaultConfig(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.session.Start(context.Background(), nil))
	st := f.session.Status()
	assert.Equal(t, []string{"**/*.md"}, st.Patterns)
	assert.Empty(t, st.Rules)
}

func TestDebouncedBurstRunsOnce(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start(context.Background(), testConfig()))

	f.write("docs/a.md")
	time.Sleep(30 * time.Millisecond)
	f.write("docs/a.md")
	time.Sleep(30 * time.Millisecond)
	f.write("docs/a.md")
	last := time.Now()

	require.Eventually(t, func() bool {
		calls, _ := f.executor.snapshot()
		return len(calls) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Nothing else fires once the window has passed.
	time.Sleep(200 * time.Millisecond)
	calls, times := f.executor.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "echo docs/a.md", calls[0].Command)
	assert.GreaterOrEqual(t, times[0].Sub(last), 90*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.session.Status().ActionsExecuted == 1
	}, time.Second, 10*time.Millisecond)

	st := f.session.Status()
	assert.Equal(t, 3, st.EventsProcessed)
	assert.Equal(t, 2, st.Coalesce.Coalesced)

	records, err := f.session.Logs(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, execlog.OutcomeSuccess, records[0].Outcome)
	assert.Equal(t, "docs/a.md", records[0].FilePath)
}

func throttleConfig(window config.Millis) *config.Config {
	cfg := testConfig()
	cfg.Actions[0].Rule.Debounce = 0
	cfg.Actions[0].Rule.Throttle = window
	return cfg
}

func TestThrottledBurstRunsOncePerWindow(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start(context.Background(), throttleConfig(300)))

	st := f.session.Status()
	require.Len(t, st.Rules, 1)
	assert.Equal(t, "throttle", st.Rules[0].Mode)
	assert.Equal(t, int64(300), st.Rules[0].DelayMs)

	for i := 0; i < 5; i++ {
		f.write("docs/a.md")
	}

	require.Eventually(t, func() bool {
		return f.session.Status().EventsProcessed == 5
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return f.session.Status().ActionsExecuted == 1
	}, time.Second, 5*time.Millisecond)

	st = f.session.Status()
	assert.Equal(t, 1, st.Coalesce.Passed)
	assert.Equal(t, 4, st.Coalesce.Throttled)
	calls, _ := f.executor.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "echo docs/a.md", calls[0].Command)

	// The next window admits one more run.
	time.Sleep(350 * time.Millisecond)
	f.write("docs/a.md")
	require.Eventually(t, func() bool {
		return f.session.Status().ActionsExecuted == 2
	}, time.Second, 5*time.Millisecond)
}

func TestStopWaitsForThrottledAction(t *testing.T) {
	f := newFixture(t, nil)
	f.executor.delay = 150 * time.Millisecond
	require.NoError(t, f.session.Start(context.Background(), throttleConfig(1000)))

	f.write("docs/a.md")
	require.Eventually(t, func() bool {
		calls, _ := f.executor.snapshot()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.session.Stop())

	records, err := f.session.Logs(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, execlog.OutcomeSuccess, records[0].Outcome)

	runs, err := f.session.History(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].ActionsExecuted)
}

func TestUnmatchedEventIsDropped(t *testing.T) {
	f := newFixture(t, nil)
	cfg := testConfig()
	cfg.Actions = config.Actions{
		{Pattern: "specs/**/*.md", Rule: config.ActionRule{Command: "echo ${spec}", Debounce: 10}},
	}
	require.NoError(t, f.session.Start(context.Background(), cfg))

	f.write("docs/a.md")

	require.Eventually(t, func() bool {
		return f.session.Status().EventsProcessed == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	calls, _ := f.executor.snapshot()
	assert.Empty(t, calls)
}

func TestNextEventDeduplicates(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start(context.Background(), testConfig()))

	f.write("docs/a.md")
	f.write("docs/a.md")

	require.Eventually(t, func() bool {
		return f.session.Status().EventsProcessed == 2
	}, time.Second, 10*time.Millisecond)

	ev, ok := f.session.NextEvent()
	require.True(t, ok)
	assert.Equal(t, "docs/a.md", ev.Key)
	assert.Equal(t, "changed", ev.Kind)

	_, ok = f.session.NextEvent()
	assert.False(t, ok)
}

func TestStopCancelsPendingDebounce(t *testing.T) {
	f := newFixture(t, nil)
	cfg := testConfig()
	cfg.Actions[0].Rule.Debounce = 300
	require.NoError(t, f.session.Start(context.Background(), cfg))

	f.write("docs/a.md")
	require.Eventually(t, func() bool {
		return f.session.Status().Coalesce.PendingDebounces == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.session.Stop())
	time.Sleep(400 * time.Millisecond)

	calls, _ := f.executor.snapshot()
	assert.Empty(t, calls)
}

func TestRestart(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start(context.Background(), testConfig()))
	first := f.session.Status().RunID

	require.NoError(t, f.session.Restart(context.Background()))
	assert.Equal(t, StateRunning, f.session.State())
	assert.NotEqual(t, first, f.session.Status().RunID)

	require.NoError(t, f.session.Stop())

	runs, err := f.session.History(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ReasonStopped, runs[0].StopReason)
	assert.Equal(t, ReasonRestart, runs[1].StopReason)
}

func TestRecoveryFailureStopsSession(t *testing.T) {
	f := newFixture(t, &fakeBackends{failAfterFirst: true})
	cfg := testConfig()
	cfg.Monitor.MaxRetries = 2
	require.NoError(t, f.session.Start(context.Background(), cfg))

	f.backends.latest().errors <- errors.New("queue overflow")

	require.Eventually(t, func() bool {
		return f.session.State() == StateIdle
	}, 3*time.Second, 10*time.Millisecond)

	var sawTerminal bool
	for !sawTerminal {
		select {
		case err := <-f.session.Errors():
			sawTerminal = errors.Is(err, watcher.ErrRecoveryFailed)
		case <-time.After(time.Second):
			t.Fatal("recovery failure was not reported")
		}
	}

	runs, err := f.session.History(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ReasonRecoveryFailed, runs[0].StopReason)
	assert.Contains(t, f.session.Status().LastError, "recovery failed")
}

func TestIdleQueriesReadFromDisk(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Start(context.Background(), testConfig()))

	f.write("docs/a.md")
	require.Eventually(t, func() bool {
		return f.session.Status().ActionsExecuted == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.session.Stop())

	snap, err := f.session.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, 1, snap.Succeeded)

	records, err := f.session.Logs(5)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	out := filepath.Join(f.root, "metrics.csv")
	require.NoError(t, f.session.ExportMetrics(execlog.FormatCSV, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Metric,Value")
}

func TestSaveAndLoadConfig(t *testing.T) {
	f := newFixture(t, nil)

	cfg := testConfig()
	cfg.Debounce.Default = 750
	require.NoError(t, f.session.SaveConfig(cfg))

	loaded, err := f.session.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, config.Millis(750), loaded.Debounce.Default)
	require.Len(t, loaded.Actions, 1)
	assert.Equal(t, "echo ${file}", loaded.Actions[0].Rule.Command)
}

func TestHistoryDisabled(t *testing.T) {
	f := newFixture(t, nil)

	cfg := testConfig()
	cfg.Storage.HistoryPath = ""
	require.NoError(t, f.session.SaveConfig(cfg))

	_, err := f.session.History(5)
	assert.ErrorIs(t, err, ErrHistoryDisabled)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateStopping, "stopping"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
