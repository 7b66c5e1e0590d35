// Package signals fans engine output signals out to waiters. The engine
// delivers signals on its own goroutine; Publish never blocks it.
package signals

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capturectl/capturectl/internal/engine"
	"github.com/capturectl/capturectl/internal/errors"
	"github.com/capturectl/capturectl/internal/logger"
)

var (
	// ErrSignalTimeout is returned when no signal arrives within the wait timeout.
	ErrSignalTimeout = errors.NewStd("timed out waiting for output signal")
	// ErrBusClosed is returned to waiters once the bus is closed.
	ErrBusClosed = errors.NewStd("signal bus closed")
)

const (
	// DefaultBuffer is the per-waiter queue depth when none is configured.
	DefaultBuffer = 8
	// DefaultTimeout bounds a wait when no positive timeout is given.
	DefaultTimeout = 30 * time.Second
)

// defaultTimeout is DefaultTimeout, shortened in tests.
var defaultTimeout = DefaultTimeout

// Stats holds bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers int
}

// Bus distributes signals to every live Waiter.
type Bus struct {
	buffer int
	log    logger.Logger

	mu      sync.Mutex
	waiters map[*Waiter]struct{}

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates a bus whose waiters queue up to buffer signals each.
func NewBus(buffer int, log logger.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Bus{
		buffer:  buffer,
		log:     log,
		waiters: make(map[*Waiter]struct{}),
		done:    make(chan struct{}),
	}
}

// Publish hands sig to every waiter. A waiter whose queue is full misses it.
// Publish matches the engine callback signature.
func (b *Bus) Publish(sig engine.Signal) {
	if b.closed.Load() {
		return
	}
	b.published.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	for w := range b.waiters {
		select {
		case w.ch <- sig:
			b.delivered.Add(1)
		default:
			b.dropped.Add(1)
			b.log.Debug("signal dropped due to full waiter queue",
				logger.String("signal", sig.Signal),
				logger.String("type", sig.Type))
		}
	}

	b.log.Trace("signal published",
		logger.String("signal", sig.Signal),
		logger.Int("waiters", len(b.waiters)))
}

// Subscribe registers a waiter that sees every signal published from now on,
// in publish order. Callers must Close it when done.
func (b *Bus) Subscribe() *Waiter {
	w := &Waiter{bus: b, ch: make(chan engine.Signal, b.buffer)}
	b.mu.Lock()
	b.waiters[w] = struct{}{}
	b.mu.Unlock()
	return w
}

// AwaitNext waits for the next signal published after the call. A timeout
// of zero or less waits DefaultTimeout.
func (b *Bus) AwaitNext(ctx context.Context, timeout time.Duration) (engine.Signal, error) {
	w := b.Subscribe()
	defer w.Close()
	return w.Next(ctx, timeout)
}

// Close wakes all waiters with ErrBusClosed. Later publishes are ignored.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)
		b.mu.Lock()
		clear(b.waiters)
		b.mu.Unlock()
	})
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	subs := len(b.waiters)
	b.mu.Unlock()
	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: subs,
	}
}

// Waiter is a subscription to the bus.
type Waiter struct {
	bus  *Bus
	ch   chan engine.Signal
	once sync.Once
}

// Next returns the next queued signal. A timeout of zero or less waits
// DefaultTimeout.
func (w *Waiter) Next(ctx context.Context, timeout time.Duration) (engine.Signal, error) {
	// Signals queued before a close are still handed out.
	select {
	case sig := <-w.ch:
		return sig, nil
	default:
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sig := <-w.ch:
		return sig, nil
	case <-timer.C:
		return engine.Signal{}, errors.New(ErrSignalTimeout).
			Component("signals").
			Category(errors.CategoryTimeout).
			Context("timeout", timeout.String()).
			Build()
	case <-w.bus.done:
		return engine.Signal{}, ErrBusClosed
	case <-ctx.Done():
		return engine.Signal{}, ctx.Err()
	}
}

// Close unsubscribes the waiter. It is safe to call more than once.
func (w *Waiter) Close() {
	w.once.Do(func() {
		w.bus.mu.Lock()
		delete(w.bus.waiters, w)
		w.bus.mu.Unlock()
	})
}
