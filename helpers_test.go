package retry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bjaus/retry/v2/clock"
)

var (
	errTest = errors.New("test error")
	epoch   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// fakeClock runs every timer immediately and records the requested
// durations. It must not be combined with WithTimeout, whose deadline would
// fire at once.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: epoch}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) clock.Timer {
	ch := make(chan time.Time, 1)
	ch <- c.sleep(d)
	return fakeTimer{c: ch}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.sleep(d)
	f()
	return fakeTimer{}
}

func (c *fakeClock) sleep(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return c.now
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type fakeTimer struct {
	c chan time.Time
}

func (t fakeTimer) C() <-chan time.Time { return t.c }
func (t fakeTimer) Stop() bool          { return false }

type outcome[T any] struct {
	value T
	err   error
}

// start runs fn on its own goroutine.
func start[T any](fn func() (T, error)) <-chan outcome[T] {
	ch := make(chan outcome[T], 1)
	go func() {
		v, err := fn()
		ch <- outcome[T]{value: v, err: err}
	}()
	return ch
}

func await[T any](t *testing.T, ch <-chan outcome[T]) outcome[T] {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("operation did not resolve")
		return outcome[T]{}
	}
}

func requirePending[T any](t *testing.T, ch <-chan outcome[T]) {
	t.Helper()
	select {
	case o := <-ch:
		t.Fatalf("expected operation to be suspended, got value=%v err=%v", o.value, o.err)
	default:
	}
}

// parked waits until n timers are registered on vc.
func parked(t *testing.T, vc *clock.Virtual, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, vc.BlockUntil(ctx, n))
}
