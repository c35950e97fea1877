package loop

import (
	"sort"
	"time"
)

// Virtual is a deterministic Scheduler driven by explicit calls to Advance.
// It is not safe for concurrent use; the caller's goroutine is the loop.
type Virtual struct {
	now    time.Time
	seq    uint64
	queue  []func()
	timers []*virtualTimer
}

// NewVirtual returns a virtual clock starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{now: start}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Time { return v.now }

// Post queues fn to run on the next Flush or Advance.
func (v *Virtual) Post(fn func()) {
	v.queue = append(v.queue, fn)
}

// AfterFunc schedules fn at Now()+d.
func (v *Virtual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	v.seq++
	t := &virtualTimer{when: v.now.Add(d), seq: v.seq, fn: fn, owner: v}
	v.timers = append(v.timers, t)
	return t
}

// Flush runs posted callbacks and timers that are already due.
func (v *Virtual) Flush() { v.Advance(0) }

// Advance moves the clock forward by d, running every posted callback and
// every timer that falls due, in time order.
func (v *Virtual) Advance(d time.Duration) {
	target := v.now.Add(d)
	for {
		v.drain()
		t := v.earliest()
		if t == nil || t.when.After(target) {
			break
		}
		v.remove(t)
		if t.when.After(v.now) {
			v.now = t.when
		}
		t.fired = true
		t.fn()
	}
	v.now = target
}

// Pending reports the number of queued callbacks and live timers.
func (v *Virtual) Pending() int { return len(v.queue) + len(v.timers) }

func (v *Virtual) drain() {
	for len(v.queue) > 0 {
		fn := v.queue[0]
		v.queue = v.queue[1:]
		fn()
	}
}

func (v *Virtual) earliest() *virtualTimer {
	if len(v.timers) == 0 {
		return nil
	}
	sort.SliceStable(v.timers, func(i, j int) bool {
		if v.timers[i].when.Equal(v.timers[j].when) {
			return v.timers[i].seq < v.timers[j].seq
		}
		return v.timers[i].when.Before(v.timers[j].when)
	})
	return v.timers[0]
}

func (v *Virtual) remove(t *virtualTimer) bool {
	for i, c := range v.timers {
		if c == t {
			v.timers = append(v.timers[:i], v.timers[i+1:]...)
			return true
		}
	}
	return false
}

type virtualTimer struct {
	when  time.Time
	seq   uint64
	fn    func()
	owner *Virtual
	fired bool
}

func (t *virtualTimer) Stop() bool {
	if t.fired {
		return false
	}
	return t.owner.remove(t)
}
