package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestVirtualRunsTimersInOrder(t *testing.T) {
	v := NewVirtual(epoch)
	var got []string

	v.AfterFunc(300*time.Millisecond, func() { got = append(got, "c") })
	v.AfterFunc(100*time.Millisecond, func() { got = append(got, "a") })
	v.AfterFunc(100*time.Millisecond, func() { got = append(got, "b") })

	v.Advance(99 * time.Millisecond)
	assert.Empty(t, got)

	v.Advance(time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, got)

	v.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, epoch.Add(1100*time.Millisecond), v.Now())
}

func TestVirtualTimerSeesItsOwnTime(t *testing.T) {
	v := NewVirtual(epoch)
	var at time.Time
	v.AfterFunc(250*time.Millisecond, func() { at = v.Now() })
	v.Advance(time.Second)
	assert.Equal(t, epoch.Add(250*time.Millisecond), at)
}

func TestVirtualStop(t *testing.T) {
	v := NewVirtual(epoch)
	fired := false
	tm := v.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	v.Advance(2 * time.Second)
	assert.False(t, fired)
	assert.Zero(t, v.Pending())
}

func TestVirtualNestedScheduling(t *testing.T) {
	v := NewVirtual(epoch)
	var got []int
	v.Post(func() {
		got = append(got, 1)
		v.Post(func() { got = append(got, 2) })
		v.AfterFunc(0, func() { got = append(got, 3) })
	})
	v.Flush()
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestLoopDeliversOnOneGoroutine(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	var mu sync.Mutex
	var got []int
	finished := make(chan struct{})

	l.Post(func() {
		mu.Lock()
		got = append(got, 1)
		mu.Unlock()
		l.AfterFunc(10*time.Millisecond, func() {
			mu.Lock()
			got = append(got, 2)
			mu.Unlock()
			close(finished)
		})
	})

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}

	mu.Lock()
	assert.Equal(t, []int{1, 2}, got)
	mu.Unlock()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestLoopStoppedTimerDoesNotFire(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	fired := make(chan struct{}, 1)
	tm := l.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })
	assert.True(t, tm.Stop())

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}
