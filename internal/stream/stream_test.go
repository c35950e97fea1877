package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joeblew999/chronomaps/internal/loop"
)

func TestReplayDeliversLastToLateSubscribers(t *testing.T) {
	r := NewReplay[int]()
	r.Publish(1)
	r.Publish(2)

	var got []int
	cancel := r.Subscribe(func(v int) { got = append(got, v) })
	assert.Equal(t, []int{2}, got)

	r.Publish(3)
	cancel()
	r.Publish(4)
	assert.Equal(t, []int{2, 3}, got)

	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, 4, last)
}

func TestReplayEmptyDeliversNothingOnSubscribe(t *testing.T) {
	r := NewReplay[string]()
	called := false
	r.Subscribe(func(string) { called = true })
	assert.False(t, called)
}

func TestEmitterOnlyFutureValues(t *testing.T) {
	e := NewEmitter[int]()
	e.Publish(1)

	var got []int
	e.Subscribe(func(v int) { got = append(got, v) })
	e.Publish(2)
	assert.Equal(t, []int{2}, got)
}

func TestSubscriberMayUnsubscribeOthersDuringPublish(t *testing.T) {
	e := NewEmitter[int]()
	var second func()
	calls := 0
	e.Subscribe(func(int) { second() })
	second = e.Subscribe(func(int) { calls++ })

	e.Publish(1)
	assert.Zero(t, calls)
}

func TestOnceFiresOnce(t *testing.T) {
	o := NewOnce()
	n := 0
	o.Subscribe(func() { n++ })
	o.Fire()
	o.Fire()
	assert.Equal(t, 1, n)
	assert.True(t, o.Fired())

	late := 0
	o.Subscribe(func() { late++ })
	assert.Equal(t, 1, late)
}

func TestDebouncerDeliversLatestAfterQuiet(t *testing.T) {
	v := loop.NewVirtual(time.Unix(0, 0))
	var got []string
	d := NewDebouncer(v, 250*time.Millisecond, func(s string) { got = append(got, s) })

	d.Push("a")
	v.Advance(200 * time.Millisecond)
	d.Push("b")
	v.Advance(200 * time.Millisecond)
	assert.Empty(t, got)
	assert.True(t, d.Pending())

	v.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"b"}, got)
	assert.False(t, d.Pending())
}

func TestDebouncerStop(t *testing.T) {
	v := loop.NewVirtual(time.Unix(0, 0))
	fired := false
	d := NewDebouncer(v, time.Second, func(struct{}) { fired = true })
	d.Push(struct{}{})
	d.Stop()
	v.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestOriginString(t *testing.T) {
	assert.Equal(t, "local", Local.String())
	assert.Equal(t, "external", External.String())
}
