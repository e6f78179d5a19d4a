package retry

import (
	"fmt"
	"time"

	"github.com/bjaus/retry/v2/clock"
)

// config holds all retry configuration.
type config struct {
	// Policy-level options
	maxRetries int
	timeout    time.Duration
	backoff    Backoff
	clock      clock.Clock

	// Call-level options
	condition   Condition
	onAttempt   []OnAttemptFunc
	onRetry     []OnRetryFunc
	onSuccess   []OnSuccessFunc
	onExhausted []OnExhaustedFunc
	onCancelled []OnCancelledFunc
	onFatal     []OnFatalFunc
	allErrors   bool
}

func (c *config) validate() error {
	if c.maxRetries < 0 {
		return fmt.Errorf("%w: max retries %d is negative", ErrInvalidArgument, c.maxRetries)
	}
	if c.timeout < 0 {
		return fmt.Errorf("%w: timeout %v is negative", ErrInvalidArgument, c.timeout)
	}
	if c.backoff == nil {
		return fmt.Errorf("%w: nil backoff", ErrInvalidArgument)
	}
	if c.clock == nil {
		return fmt.Errorf("%w: nil clock", ErrInvalidArgument)
	}
	return nil
}

// Option configures retry behavior.
type Option func(*config)

// WithMaxRetries sets how many attempts may follow the first one.
// Zero runs the operation once; a negative value fails with
// ErrInvalidArgument.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithMaxAttempts sets the total number of attempts, first one included.
// It is equivalent to WithMaxRetries(n-1).
func WithMaxAttempts(n int) Option {
	return WithMaxRetries(n - 1)
}

// WithTimeout sets the deadline armed when an execution starts. When it
// elapses on the configured clock, the execution fails with ErrCancelled at
// its next suspension point. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithBackoff sets the backoff strategy.
func WithBackoff(b Backoff) Option {
	return func(c *config) {
		c.backoff = b
	}
}

// WithDelay sets a fixed delay between attempts. A negative d fails the
// execution with ErrInvalidArgument once a backoff is needed.
func WithDelay(d time.Duration) Option {
	return WithBackoff(Constant(d))
}

// WithClock sets the clock used for backoff and deadlines. Inject a
// *clock.Virtual to drive time from tests.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) {
		cfg.clock = c
	}
}

// If sets the condition that determines whether an error should be retried.
// If the condition returns false, the execution fails with ErrFatal.
func If(cond Condition) Option {
	return func(c *config) {
		c.condition = cond
	}
}

// IfNot sets a condition where matching errors are NOT retried.
// This is equivalent to If(Not(cond)).
func IfNot(cond Condition) Option {
	return If(Not(cond))
}

// Not inverts a condition.
func Not(cond Condition) Condition {
	return func(err error) bool {
		return !cond(err)
	}
}

// OnAttempt adds a hook called right before each invocation.
func OnAttempt(fn OnAttemptFunc) Option {
	return func(c *config) {
		c.onAttempt = append(c.onAttempt, fn)
	}
}

// OnRetry adds a hook called before each backoff wait, including a wait
// the deadline later cuts short.
func OnRetry(fn OnRetryFunc) Option {
	return func(c *config) {
		c.onRetry = append(c.onRetry, fn)
	}
}

// OnSuccess adds a hook called when the operation succeeds.
func OnSuccess(fn OnSuccessFunc) Option {
	return func(c *config) {
		c.onSuccess = append(c.onSuccess, fn)
	}
}

// OnExhausted adds a hook called when all retry attempts are exhausted.
func OnExhausted(fn OnExhaustedFunc) Option {
	return func(c *config) {
		c.onExhausted = append(c.onExhausted, fn)
	}
}

// OnCancelled adds a hook called when the deadline or the caller's context
// ends the execution.
func OnCancelled(fn OnCancelledFunc) Option {
	return func(c *config) {
		c.onCancelled = append(c.onCancelled, fn)
	}
}

// OnFatal adds a hook called when a non-retryable failure ends the
// execution.
func OnFatal(fn OnFatalFunc) Option {
	return func(c *config) {
		c.onFatal = append(c.onFatal, fn)
	}
}

// WithAllErrors configures the retry to collect all errors from each attempt.
// When enabled, an exhausted execution wraps an errors.Join of all attempt
// errors. By default, only the last error is wrapped.
func WithAllErrors() Option {
	return func(c *config) {
		c.allErrors = true
	}
}

// Combine bundles several options into one.
func Combine(opts ...Option) Option {
	return func(c *config) {
		for _, opt := range opts {
			if opt != nil {
				opt(c)
			}
		}
	}
}
