package clock

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// Virtual is a Clock whose instant only moves when Advance or AdvanceTo is
// called. Pending timers fire synchronously inside the advancing call, in
// due-instant order, ties broken by registration order.
//
// Virtual is safe for concurrent use. Code waiting on a Virtual clock must
// run on a different goroutine than the one advancing it; BlockUntil lets
// the advancing goroutine wait for waiters to park.
type Virtual struct {
	advancing sync.Mutex

	mu      sync.Mutex
	now     time.Time
	seq     uint64
	timers  timerQueue
	changed chan struct{}
}

// NewVirtual returns a Virtual clock reading start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{
		now:     start,
		changed: make(chan struct{}),
	}
}

// Now returns the simulated instant.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// NewTimer registers a timer due at Now()+d. Its channel is buffered, so
// firing never blocks the advancing goroutine.
func (v *Virtual) NewTimer(d time.Duration) Timer {
	c := make(chan time.Time, 1)
	return v.schedule(d, c, func(at time.Time) {
		select {
		case c <- at:
		default:
		}
	})
}

// AfterFunc registers f to run at Now()+d. f runs on the goroutine that
// advances the clock, so it must not block or advance the clock itself.
// A non-positive d runs f before AfterFunc returns.
func (v *Virtual) AfterFunc(d time.Duration, f func()) Timer {
	return v.schedule(d, nil, func(time.Time) { f() })
}

func (v *Virtual) schedule(d time.Duration, c chan time.Time, fire func(time.Time)) *virtualTimer {
	v.mu.Lock()
	t := &virtualTimer{
		clock: v,
		due:   v.now.Add(d),
		index: -1,
		c:     c,
		fire:  fire,
	}
	if d <= 0 {
		at := v.now
		v.mu.Unlock()
		fire(at)
		return t
	}
	v.seq++
	t.seq = v.seq
	heap.Push(&v.timers, t)
	v.notifyLocked()
	v.mu.Unlock()
	return t
}

// Advance moves the clock forward by d and fires every timer now due.
// While a timer fires, Now reports its due instant.
func (v *Virtual) Advance(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative advance %v", ErrInvalidArgument, d)
	}
	v.advancing.Lock()
	defer v.advancing.Unlock()

	v.fireUntil(v.Now().Add(d))
	return nil
}

// AdvanceTo moves the clock forward to t and fires every timer now due.
func (v *Virtual) AdvanceTo(t time.Time) error {
	v.advancing.Lock()
	defer v.advancing.Unlock()

	if now := v.Now(); t.Before(now) {
		return fmt.Errorf("%w: %v is before current instant %v", ErrInvalidArgument, t, now)
	}
	v.fireUntil(t)
	return nil
}

// fireUntil pops due timers one at a time so that callbacks may register
// new timers, which fire in the same pass if they are already due.
func (v *Virtual) fireUntil(target time.Time) {
	for {
		v.mu.Lock()
		if len(v.timers) == 0 || v.timers[0].due.After(target) {
			if target.After(v.now) {
				v.now = target
			}
			v.mu.Unlock()
			return
		}
		t := heap.Pop(&v.timers).(*virtualTimer)
		if t.due.After(v.now) {
			v.now = t.due
		}
		v.notifyLocked()
		v.mu.Unlock()

		t.fire(t.due)
	}
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

// BlockUntil blocks until at least n timers are pending or ctx is done.
func (v *Virtual) BlockUntil(ctx context.Context, n int) error {
	for {
		v.mu.Lock()
		if len(v.timers) >= n {
			v.mu.Unlock()
			return nil
		}
		changed := v.changed
		v.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

func (v *Virtual) notifyLocked() {
	close(v.changed)
	v.changed = make(chan struct{})
}

type virtualTimer struct {
	clock *Virtual
	due   time.Time
	seq   uint64
	index int
	c     chan time.Time
	fire  func(time.Time)
}

func (t *virtualTimer) C() <-chan time.Time { return t.c }

func (t *virtualTimer) Stop() bool {
	v := t.clock
	v.mu.Lock()
	defer v.mu.Unlock()
	if t.index < 0 {
		return false
	}
	heap.Remove(&v.timers, t.index)
	v.notifyLocked()
	return true
}

// timerQueue is a min-heap ordered by (due, seq).
type timerQueue []*virtualTimer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*virtualTimer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
