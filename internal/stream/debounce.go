package stream

import (
	"time"

	"github.com/joeblew999/chronomaps/internal/loop"
)

// Debouncer delivers the latest pushed value once no push has happened for
// the configured wait. It must only be used from the scheduler's goroutine.
type Debouncer[T any] struct {
	sched  loop.Scheduler
	wait   time.Duration
	fn     func(T)
	timer  loop.Timer
	latest T
}

// NewDebouncer creates a debouncer that calls fn on sched.
func NewDebouncer[T any](sched loop.Scheduler, wait time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{sched: sched, wait: wait, fn: fn}
}

// Push records v and restarts the quiet period.
func (d *Debouncer[T]) Push(v T) {
	d.latest = v
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.sched.AfterFunc(d.wait, d.fire)
}

// Pending reports whether a value is waiting to be delivered.
func (d *Debouncer[T]) Pending() bool { return d.timer != nil }

// Stop drops any pending value.
func (d *Debouncer[T]) Stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer[T]) fire() {
	d.timer = nil
	d.fn(d.latest)
}
