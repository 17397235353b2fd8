package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/0xmhha/autowatch/pkg/logger"
)

// Dashboard publishes status updates on an interval.
type Dashboard struct {
	source Source
	config Config
	logger logger.Logger

	updates chan Update
	refresh chan struct{}

	mu      sync.Mutex
	last    Delta
	seen    bool
	running bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a dashboard over src.
func New(src Source, cfg Config, log logger.Logger) (*Dashboard, error) {
	if src == nil {
		return nil, ErrNoSource
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}

	return &Dashboard{
		source:  src,
		config:  cfg,
		logger:  log.With("component", "dashboard"),
		updates: make(chan Update, 4),
		refresh: make(chan struct{}, 1),
	}, nil
}

// Config returns the effective configuration.
func (d *Dashboard) Config() Config {
	return d.config
}

// Updates returns the update channel. It is closed by Close.
func (d *Dashboard) Updates() <-chan Update {
	return d.updates
}

// Start publishes an initial update and then one per interval until ctx
// is done or Stop is called.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running = true

	go d.loop(ctx, d.done)

	d.logger.Debug("dashboard started", "interval", d.config.RefreshInterval)
	return nil
}

// Refresh requests an update ahead of the next tick. Requests made while
// one is already pending are merged.
func (d *Dashboard) Refresh() {
	select {
	case d.refresh <- struct{}{}:
	default:
	}
}

// Stop halts polling and waits for the loop to exit.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done
}

// Close stops the dashboard and closes the update channel.
func (d *Dashboard) Close() error {
	d.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	close(d.updates)
	return nil
}

func (d *Dashboard) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.config.RefreshInterval)
	defer ticker.Stop()

	d.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.publish()
		case <-d.refresh:
			d.publish()
		}
	}
}

// publish snapshots the source and sends an update without blocking.
func (d *Dashboard) publish() {
	st := d.source.Status()
	counters := Delta{
		Events:  st.EventsProcessed,
		Actions: st.ActionsExecuted,
		Failed:  st.ActionsFailed,
	}

	d.mu.Lock()
	delta := counters
	if d.seen {
		delta = diff(counters, d.last)
	}
	d.last = counters
	d.seen = true
	d.mu.Unlock()

	u := Update{Timestamp: time.Now(), Status: st, Delta: delta}
	select {
	case d.updates <- u:
	default:
		d.logger.Debug("updates channel full, dropping update")
	}
}

// diff subtracts prev from cur. Counters reset when a session restarts;
// a decrease is treated as a fresh start.
func diff(cur, prev Delta) Delta {
	if cur.Events < prev.Events || cur.Actions < prev.Actions || cur.Failed < prev.Failed {
		return cur
	}
	return Delta{
		Events:  cur.Events - prev.Events,
		Actions: cur.Actions - prev.Actions,
		Failed:  cur.Failed - prev.Failed,
	}
}
