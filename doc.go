// Package retry runs operations with bounded retries, fixed or growing
// backoff and a cancellation deadline, all measured on an injectable clock.
//
// retry provides:
//
//   - Policies: immutable retry configuration injected at wire-up
//   - Composable Backoff: Constant, Linear and Exponential with WithCap,
//     WithMin and WithJitter
//   - Deadlines: WithTimeout arms a cancellation signal on every call
//   - Virtual time: drive backoff and deadlines from tests with
//     clock.Virtual instead of sleeping
//   - Cancellable delays: Delay races a wait against a deadline
//   - Lifecycle Hooks: OnAttempt, OnRetry, OnSuccess, OnExhausted,
//     OnCancelled and OnFatal
//
// # Quick Start
//
// Using the global Do function for one-off retries:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//	    return client.Call(ctx)
//	})
//
// Creating a reusable policy for dependency injection:
//
//	policy := retry.New(
//	    retry.WithMaxRetries(2),
//	    retry.WithDelay(time.Second),
//	    retry.WithTimeout(6*time.Second),
//	)
//
//	user, err := retry.Get(ctx, policy, func(ctx context.Context) (*User, error) {
//	    return client.User(ctx, id)
//	}, retry.If(isTransient))
//
// # Attempts and Retries
//
// WithMaxRetries counts attempts beyond the first: WithMaxRetries(2) invokes
// the operation at most three times. Backoff is applied only between
// attempts, so an execution with n invocations waits n-1 times.
//
// # Outcomes
//
// An execution that does not succeed returns an *Error whose Kind is one
// of:
//
//   - ErrExhausted: every attempt failed with a retryable error; wraps the
//     last error, or all of them with WithAllErrors
//   - ErrFatal: the condition rejected the error, or it was wrapped with
//     Stop; no backoff is applied
//   - ErrCancelled: the deadline or the caller's context ended the
//     execution at a suspension point; no further attempt starts
//
// Malformed options fail with ErrInvalidArgument before any attempt.
// errors.Is matches both the kind and the underlying error:
//
//	if errors.Is(err, retry.ErrExhausted) && errors.Is(err, sql.ErrConnDone) {
//	    ...
//	}
//
// # Cancellation
//
// Cancellation is cooperative. The deadline is checked before each attempt,
// after each failed attempt and during backoff. An operation that ignores
// its context runs to completion; if it then fails, the execution reports
// ErrCancelled instead of retrying.
//
// # Testing
//
// Inject a virtual clock and advance it from the test goroutine:
//
//	vc := clock.NewVirtual(time.Now())
//	policy := retry.New(retry.WithDelay(time.Second), retry.WithClock(vc))
//
//	done := make(chan error, 1)
//	go func() { done <- policy.Do(ctx, op) }()
//
//	_ = vc.BlockUntil(ctx, 1) // the backoff timer is parked
//	_ = vc.Advance(time.Second)
//
// Timers fire inside Advance in due-instant order, so outcomes do not
// depend on goroutine scheduling.
//
// # Configuration Files
//
// LoadConfig reads a YAML policy:
//
//	max_retries: 2
//	delay: 1s
//	backoff: constant
//	timeout: 6s
//
// Config.Policy turns it into a Policy.
package retry
