package clock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDeadline is the cause recorded by a Signal whose deadline elapsed.
var ErrDeadline = errors.New("deadline elapsed")

// Signal is a one-shot cancellation flag. Once triggered it stays
// triggered and keeps the cause of the first Trigger call.
type Signal struct {
	mu        sync.Mutex
	done      chan struct{}
	cause     error
	listeners []*listener
	timer     Timer
}

// NewSignal returns an untriggered Signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// SignalAfter returns a Signal triggered with ErrDeadline once d elapses on
// c. Release stops the underlying timer.
func SignalAfter(c Clock, d time.Duration) *Signal {
	s := NewSignal()
	t := c.AfterFunc(d, func() { s.Trigger(ErrDeadline) })
	s.mu.Lock()
	s.timer = t
	s.mu.Unlock()
	return s
}

// Trigger fires the signal with cause and runs listeners synchronously in
// registration order. A nil cause is recorded as context.Canceled. It
// reports whether this call triggered the signal.
func (s *Signal) Trigger(cause error) bool {
	if cause == nil {
		cause = context.Canceled
	}
	s.mu.Lock()
	if s.cause != nil {
		s.mu.Unlock()
		return false
	}
	s.cause = cause
	close(s.done)
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	for _, l := range listeners {
		l.run(cause)
	}
	return true
}

// Triggered reports whether the signal has fired.
func (s *Signal) Triggered() bool {
	return s.Err() != nil
}

// Done returns a channel closed when the signal fires.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Err returns the trigger cause, or nil while untriggered.
func (s *Signal) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Notify registers f to run with the cause when the signal fires. If the
// signal already fired, f runs before Notify returns. The returned stop
// function unregisters f and reports whether it did so before f ran.
func (s *Signal) Notify(f func(error)) (stop func() bool) {
	l := &listener{f: f}
	s.mu.Lock()
	if cause := s.cause; cause != nil {
		s.mu.Unlock()
		l.run(cause)
		return l.stop
	}
	live := s.listeners[:0]
	for _, existing := range s.listeners {
		if existing.state.Load() == listenerPending {
			live = append(live, existing)
		}
	}
	s.listeners = append(live, l)
	s.mu.Unlock()
	return l.stop
}

// Bind triggers the signal with the cause of ctx once ctx is done. An
// already-done ctx triggers the signal before Bind returns.
func (s *Signal) Bind(ctx context.Context) (stop func() bool) {
	if ctx.Done() == nil {
		return func() bool { return false }
	}
	if ctx.Err() != nil {
		s.Trigger(context.Cause(ctx))
		return func() bool { return false }
	}
	return context.AfterFunc(ctx, func() {
		s.Trigger(context.Cause(ctx))
	})
}

// Release stops the deadline timer, if any. It does not trigger the signal.
func (s *Signal) Release() {
	s.mu.Lock()
	t := s.timer
	s.timer = nil
	s.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

const (
	listenerPending int32 = iota
	listenerRan
	listenerStopped
)

type listener struct {
	f     func(error)
	state atomic.Int32
}

func (l *listener) run(cause error) {
	if l.state.CompareAndSwap(listenerPending, listenerRan) {
		l.f(cause)
	}
}

func (l *listener) stop() bool {
	return l.state.CompareAndSwap(listenerPending, listenerStopped)
}
