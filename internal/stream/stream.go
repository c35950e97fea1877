// Package stream holds the publish/subscribe primitives shared by the
// chronomap view components.
//
// Replay streams hand every new subscriber the last published value before
// any later ones. Emitters only deliver values published after Subscribe.
// Both are safe for concurrent use and call subscribers outside their lock,
// so a subscriber may publish or unsubscribe from inside its callback.
package stream

import "sync"

// Origin tags where a state update came from.
type Origin int

const (
	// Local updates are caused by the component that publishes them.
	Local Origin = iota
	// External updates arrive from outside (URL replay, navigation, another
	// instance) and must not be re-broadcast as if they were local.
	External
)

func (o Origin) String() string {
	if o == External {
		return "external"
	}
	return "local"
}

// Update is a value with provenance.
type Update[T any] struct {
	Value  T
	Origin Origin
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

type subscribers[T any] struct {
	mu   sync.Mutex
	next int
	subs []subscriber[T]
}

func (s *subscribers[T]) add(fn func(T)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.subs = append(s.subs, subscriber[T]{id: s.next, fn: fn})
	return s.next
}

func (s *subscribers[T]) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *subscribers[T]) snapshot() []subscriber[T] {
	out := make([]subscriber[T], len(s.subs))
	copy(out, s.subs)
	return out
}

func (s *subscribers[T]) live(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.id == id {
			return true
		}
	}
	return false
}

// Emitter delivers published values to current subscribers only.
type Emitter[T any] struct {
	subs subscribers[T]
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{}
}

// Subscribe registers fn and returns a function that removes it.
func (e *Emitter[T]) Subscribe(fn func(T)) (cancel func()) {
	id := e.subs.add(fn)
	var once sync.Once
	return func() { once.Do(func() { e.subs.remove(id) }) }
}

// Publish calls every subscriber with v.
func (e *Emitter[T]) Publish(v T) {
	e.subs.mu.Lock()
	subs := e.subs.snapshot()
	e.subs.mu.Unlock()
	for _, sub := range subs {
		if e.subs.live(sub.id) {
			sub.fn(v)
		}
	}
}

// Replay is a replay-one stream.
type Replay[T any] struct {
	subs subscribers[T]
	mu   sync.Mutex
	has  bool
	last T
}

// NewReplay creates an empty replay stream.
func NewReplay[T any]() *Replay[T] {
	return &Replay[T]{}
}

// Subscribe registers fn. If a value was already published fn receives it
// immediately, before Subscribe returns.
func (r *Replay[T]) Subscribe(fn func(T)) (cancel func()) {
	id := r.subs.add(fn)
	var once sync.Once
	cancel = func() { once.Do(func() { r.subs.remove(id) }) }

	r.mu.Lock()
	last, has := r.last, r.has
	r.mu.Unlock()
	if has && r.subs.live(id) {
		fn(last)
	}
	return cancel
}

// Publish stores v as the last value and delivers it.
func (r *Replay[T]) Publish(v T) {
	r.mu.Lock()
	r.last, r.has = v, true
	r.mu.Unlock()

	r.subs.mu.Lock()
	subs := r.subs.snapshot()
	r.subs.mu.Unlock()
	for _, sub := range subs {
		if r.subs.live(sub.id) {
			sub.fn(v)
		}
	}
}

// Last returns the most recent value, if any.
func (r *Replay[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.has
}

// Once is a replay-one signal that fires at most one time.
type Once struct {
	r    *Replay[struct{}]
	once sync.Once
}

// NewOnce creates an unfired signal.
func NewOnce() *Once {
	return &Once{r: NewReplay[struct{}]()}
}

// Fire marks the signal done. Later calls are ignored.
func (o *Once) Fire() {
	o.once.Do(func() { o.r.Publish(struct{}{}) })
}

// Fired reports whether Fire has been called.
func (o *Once) Fired() bool {
	_, ok := o.r.Last()
	return ok
}

// Subscribe calls fn once the signal fires, immediately if it already has.
func (o *Once) Subscribe(fn func()) (cancel func()) {
	return o.r.Subscribe(func(struct{}) { fn() })
}
