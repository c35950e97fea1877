// Package loop provides the single-threaded scheduler every chronomap view
// runs on. All view state is mutated from callbacks delivered by a Scheduler,
// so components never take locks; they rely on ordering instead.
package loop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a pending delayed callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the timer
	// was still pending.
	Stop() bool
}

// Scheduler delivers callbacks one at a time on a single logical thread.
type Scheduler interface {
	Now() time.Time
	// Post queues fn to run after the current callback returns. It plays the
	// role of an animation frame: work posted during one callback is batched
	// behind it.
	Post(fn func())
	// AfterFunc runs fn on the scheduler once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop is a Scheduler backed by a goroutine and wall-clock timers.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	running atomic.Bool
	logger  *slog.Logger
}

// New creates a loop. Call Run to start delivering callbacks.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: logger.With("component", "loop"),
	}
}

// Now returns the wall clock.
func (l *Loop) Now() time.Time { return time.Now() }

// Post queues fn. It never blocks, so callbacks may post to their own loop.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc schedules fn on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped.Load() {
				return
			}
			lt.stopped.Store(true)
			fn()
		})
	})
	return lt
}

// Run delivers callbacks until ctx is done or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return nil
	}
	defer l.running.Store(false)

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.invoke(fn)
		}

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Close stops accepting callbacks. Pending ones are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("callback panicked", "panic", r)
		}
	}()
	fn()
}

type loopTimer struct {
	t       *time.Timer
	stopped atomic.Bool
}

func (lt *loopTimer) Stop() bool {
	wasPending := !lt.stopped.Swap(true)
	lt.t.Stop()
	return wasPending
}
