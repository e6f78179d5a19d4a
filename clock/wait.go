package clock

import (
	"context"
	"sync"
	"time"
)

// Wait blocks until d has elapsed on c or sig fires, whichever the clock
// resolves first, and returns nil or the signal's cause. A nil sig never
// fires. The timer is released on every path.
//
// The outcome is decided inside the timer or signal callback, so under a
// Virtual clock it follows firing order: a timer due before the signal's
// deadline completes even when one Advance call releases both.
func Wait(c Clock, d time.Duration, sig *Signal) error {
	if sig != nil && sig.Triggered() {
		return sig.Err()
	}

	resolved := make(chan error, 1)
	var once sync.Once
	resolve := func(err error) {
		once.Do(func() { resolved <- err })
	}

	t := c.AfterFunc(d, func() { resolve(nil) })
	defer t.Stop()
	if sig != nil {
		// The timer is withdrawn inside the signal callback so that a
		// Virtual clock never reports it pending once the wait is decided.
		stop := sig.Notify(func(cause error) {
			resolve(cause)
			t.Stop()
		})
		defer stop()
	}

	return <-resolved
}

// Sleep waits for d on c, returning early with the cause of ctx if ctx is
// done first.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	sig := NewSignal()
	stop := sig.Bind(ctx)
	defer stop()
	return Wait(c, d, sig)
}
