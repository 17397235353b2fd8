// Package coalesce collapses bursts of file events before they reach the
// action runner.
//
// It offers three independent primitives keyed by an arbitrary string
// (usually a file path):
//   - Debounce: run an action once, after the last call for a key has been
//     quiet for a delay.
//   - Throttle: run an action at most once per window for a key.
//   - Enqueue/Dequeue: a bounded FIFO that rejects exact duplicates.
package coalesce

import (
	"crypto/sha256"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/0xmhha/autowatch/pkg/logger"
)

// DefaultQueueCapacity is used when Config.QueueCapacity is zero.
const DefaultQueueCapacity = 1000

// Config contains engine configuration.
type Config struct {
	// QueueCapacity bounds the pull queue. Default: 1000.
	QueueCapacity int
}

// QueuedEvent is an entry of the pull queue.
type QueuedEvent struct {
	Key     string
	Kind    string
	Payload []byte
}

// digest identifies a queued event by key, kind and payload.
type digest [sha256.Size]byte

func (q QueuedEvent) digest() digest {
	h := sha256.New()
	h.Write([]byte(q.Key))
	h.Write([]byte{0})
	h.Write([]byte(q.Kind))
	h.Write([]byte{0})
	h.Write(q.Payload)

	var d digest
	copy(d[:], h.Sum(nil))
	return d
}

// Stats is a snapshot of engine counters.
type Stats struct {
	PendingDebounces int `json:"pendingDebounces"`
	QueueLength      int `json:"queueLength"`
	QueueCapacity    int `json:"queueCapacity"`

	Scheduled  int `json:"scheduled"`
	Coalesced  int `json:"coalesced"`
	Fired      int `json:"fired"`
	Throttled  int `json:"throttled"`
	Passed     int `json:"passed"`
	Duplicates int `json:"duplicates"`
	Dropped    int `json:"dropped"`
}

// pending is one armed debounce timer.
type pending struct {
	timer *time.Timer
}

// Engine owns all coalescing state behind a single mutex.
type Engine struct {
	logger logger.Logger

	mu       sync.Mutex
	timers   map[string]*pending
	limiters map[string]*rate.Limiter
	queue    []QueuedEvent
	queued   map[digest]struct{}
	capacity int
	stats    Stats

	// running tracks released debounce actions.
	running sync.WaitGroup
}

// New creates a coalescing engine.
func New(cfg Config, log logger.Logger) *Engine {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}

	return &Engine{
		logger:   log.With("component", "coalesce"),
		timers:   make(map[string]*pending),
		limiters: make(map[string]*rate.Limiter),
		queued:   make(map[digest]struct{}),
		capacity: cfg.QueueCapacity,
	}
}

// Debounce schedules fn to run delay after the last call for key. A call
// for a key that already has a pending schedule cancels and replaces it,
// so only the most recent fn runs.
func (e *Engine) Debounce(key string, delay time.Duration, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.timers[key]; ok {
		prev.timer.Stop()
		e.stats.Coalesced++
		e.logger.Debug("debounce rescheduled", "key", key, "delay", delay)
	}

	p := &pending{}
	p.timer = time.AfterFunc(delay, func() {
		e.fire(key, p, fn)
	})
	e.timers[key] = p
	e.stats.Scheduled++
}

// fire runs fn if p is still the current schedule for key.
func (e *Engine) fire(key string, p *pending, fn func()) {
	e.mu.Lock()
	if e.timers[key] != p {
		e.mu.Unlock()
		return
	}
	delete(e.timers, key)
	e.stats.Fired++
	e.running.Add(1)
	e.mu.Unlock()

	defer e.running.Done()
	fn()
}

// Throttle runs fn immediately unless fn already ran for key within the
// last window, in which case it returns false without running fn.
func (e *Engine) Throttle(key string, window time.Duration, fn func()) bool {
	e.mu.Lock()

	limit := rate.Every(window)
	lim, ok := e.limiters[key]
	if !ok {
		lim = rate.NewLimiter(limit, 1)
		e.limiters[key] = lim
	} else if lim.Limit() != limit {
		lim.SetLimit(limit)
	}

	if !lim.Allow() {
		e.stats.Throttled++
		e.mu.Unlock()
		e.logger.Debug("throttled", "key", key, "window", window)
		return false
	}

	e.stats.Passed++
	e.mu.Unlock()

	fn()
	return true
}

// Enqueue appends ev to the pull queue. It returns false if an identical
// entry is already queued or the queue is full.
func (e *Engine) Enqueue(ev QueuedEvent) bool {
	d := ev.digest()

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.queued[d]; dup {
		e.stats.Duplicates++
		return false
	}
	if len(e.queue) >= e.capacity {
		e.stats.Dropped++
		e.logger.Warn("event queue full, dropping event", "key", ev.Key, "capacity", e.capacity)
		return false
	}

	e.queue = append(e.queue, ev)
	e.queued[d] = struct{}{}
	return true
}

// Dequeue removes and returns the oldest queued event.
func (e *Engine) Dequeue() (QueuedEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return QueuedEvent{}, false
	}

	ev := e.queue[0]
	e.queue[0] = QueuedEvent{}
	e.queue = e.queue[1:]
	delete(e.queued, ev.digest())
	return ev, true
}

// Clear cancels the pending debounce for key and drops its queued entries.
func (e *Engine) Clear(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.timers[key]; ok {
		p.timer.Stop()
		delete(e.timers, key)
	}

	kept := e.queue[:0]
	for _, ev := range e.queue {
		if ev.Key == key {
			delete(e.queued, ev.digest())
			continue
		}
		kept = append(kept, ev)
	}
	e.queue = kept
}

// ClearAll cancels every pending debounce, forgets throttle history and
// empties the queue. No debounced action fires after ClearAll returns,
// though actions already released keep running.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, p := range e.timers {
		p.timer.Stop()
		delete(e.timers, key)
	}
	e.limiters = make(map[string]*rate.Limiter)
	e.queue = nil
	e.queued = make(map[digest]struct{})

	e.logger.Debug("cleared all coalescing state")
}

// Wait blocks until every released debounce action has returned.
func (e *Engine) Wait() {
	e.running.Wait()
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.stats
	s.PendingDebounces = len(e.timers)
	s.QueueLength = len(e.queue)
	s.QueueCapacity = e.capacity
	return s
}
