package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/bjaus/retry/v2/clock"
)

// Delay waits wait on c unless deadline elapses first. It returns true when
// the wait completes, or an error matching ErrCancelled when the deadline
// or ctx ends it. A nil c uses the real clock.
//
// The deadline is armed before the wait timer, so when both are due at the
// same instant the deadline wins: any deadline <= wait cancels. A wait due
// strictly before the deadline completes even if a single Advance of a
// virtual clock passes both.
func Delay(ctx context.Context, c clock.Clock, wait, deadline time.Duration) (bool, error) {
	if wait < 0 || deadline < 0 {
		return false, fmt.Errorf("%w: wait %v, deadline %v", ErrInvalidArgument, wait, deadline)
	}
	if c == nil {
		c = defaultClock
	}

	sig := clock.SignalAfter(c, deadline)
	defer sig.Release()
	defer sig.Bind(ctx)()

	if err := clock.Wait(c, wait, sig); err != nil {
		return false, &Error{Kind: ErrCancelled, Err: err}
	}
	return true, nil
}
