package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// sendTimeout is how long Emit waits on a full channel before dropping.
const sendTimeout = 100 * time.Millisecond

// Monitor receives lifecycle events. Implementations must not block for long.
type Monitor interface {
	Notify(Event)
}

// Nop discards events.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(Event) {}

// Func adapts a function to Monitor.
type Func func(Event)

// Notify calls f.
func (f Func) Notify(ev Event) { f(ev) }

// Multi fans events out to several monitors.
type Multi []Monitor

// Notify forwards ev to every monitor.
func (m Multi) Notify(ev Event) {
	for _, mon := range m {
		if mon != nil {
			mon.Notify(ev)
		}
	}
}

// Safe notifies m and recovers any panic inside it.
func Safe(m Monitor, ev Event, logger *zap.Logger) {
	if m == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Warn("monitor panicked", zap.String("event", string(ev.Type)), zap.Any("panic", r))
		}
	}()
	m.Notify(ev)
}

// Emitter publishes events on a buffered channel and records them in
// Prometheus. It never blocks for longer than sendTimeout.
type Emitter struct {
	events       chan Event
	metrics      *Metrics
	logger       *zap.Logger
	droppedCount atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewEmitter creates an Emitter with the given buffer size. metrics may be nil.
func NewEmitter(bufferSize int, metrics *Metrics, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		events:  make(chan Event, bufferSize),
		metrics: metrics,
		logger:  logger,
	}
}

// Notify records ev and sends it to the channel, dropping it when the
// subscriber falls behind.
func (e *Emitter) Notify(ev Event) {
	e.metrics.observe(ev)

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- ev:
		return
	default:
	}

	select {
	case e.events <- ev:
	case <-time.After(sendTimeout):
		count := e.droppedCount.Add(1)
		e.metrics.dropped()
		if count%10 == 1 {
			e.logger.Warn("event channel full, dropped event", zap.Uint64("dropped", count), zap.String("type", string(ev.Type)))
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Later events are only counted.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}
