// Package clock abstracts time so that delays, deadlines and retry backoff
// can run against the system timer in production and against a manually
// advanced virtual clock in tests.
package clock

import (
	"errors"
	"time"
)

// ErrInvalidArgument reports a malformed duration or instant.
var ErrInvalidArgument = errors.New("invalid argument")

// Clock is a source of the current instant and of timer completion.
type Clock interface {
	// Now returns a monotonically non-decreasing instant.
	Now() time.Time

	// NewTimer returns a Timer whose channel receives the firing instant
	// no earlier than Now()+d.
	NewTimer(d time.Duration) Timer

	// AfterFunc calls f once d has elapsed. The returned Timer has a nil
	// channel and can only be stopped.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending timer registered on a Clock.
type Timer interface {
	// C returns the channel on which the firing instant is delivered.
	C() <-chan time.Time

	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Real implements Clock using the standard time package.
type Real struct{}

// Now returns the current wall-clock time.
func (Real) Now() time.Time {
	return time.Now()
}

// NewTimer wraps time.NewTimer.
func (Real) NewTimer(d time.Duration) Timer {
	t := time.NewTimer(d)
	return realTimer{timer: t, c: t.C}
}

// AfterFunc wraps time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{timer: time.AfterFunc(d, f)}
}

type realTimer struct {
	timer *time.Timer
	c     <-chan time.Time
}

func (t realTimer) C() <-chan time.Time { return t.c }
func (t realTimer) Stop() bool          { return t.timer.Stop() }
