package retry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bjaus/retry/v2/clock"
)

// Func is the function signature for retryable operations.
type Func func(ctx context.Context) error

// ValueFunc is a retryable operation that produces a result.
type ValueFunc[T any] func(ctx context.Context) (T, error)

// Condition determines whether an error should be retried.
type Condition func(error) bool

// OnAttemptFunc is called right before each invocation.
type OnAttemptFunc func(ctx context.Context, attempt int)

// OnRetryFunc is called before each backoff wait. The wait may still be
// cancelled, so a call does not guarantee that another attempt follows;
// OnAttempt reports attempts that actually start.
type OnRetryFunc func(ctx context.Context, attempt int, err error, delay time.Duration)

// OnSuccessFunc is called when the function succeeds.
type OnSuccessFunc func(ctx context.Context, attempts int)

// OnExhaustedFunc is called when all retry attempts are exhausted.
type OnExhaustedFunc func(ctx context.Context, attempts int, err error)

// OnCancelledFunc is called when the execution is cancelled.
type OnCancelledFunc func(ctx context.Context, attempts int, cause error)

// OnFatalFunc is called when a non-retryable failure ends the execution.
type OnFatalFunc func(ctx context.Context, attempts int, err error)

// Policy defines retry behavior. It is immutable and safe for concurrent
// use: every call keeps its own attempt counter.
type Policy struct {
	cfg config
}

// Default values.
const (
	DefaultMaxRetries = 2
)

// package-level defaults to avoid allocation
var (
	defaultBackoff = Exponential(100 * time.Millisecond)
	defaultClock   = clock.Real{}
	defaultPolicy  = New()
)

func newConfig() config {
	return config{
		maxRetries: DefaultMaxRetries,
		backoff:    defaultBackoff,
		clock:      defaultClock,
	}
}

// New creates a Policy with the given options. Hooks passed here run on
// every call, before hooks passed at the call site.
func New(opts ...Option) *Policy {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	// Clip hook slices so call-level appends never write into the
	// policy's backing arrays.
	cfg.onAttempt = slices.Clip(cfg.onAttempt)
	cfg.onRetry = slices.Clip(cfg.onRetry)
	cfg.onSuccess = slices.Clip(cfg.onSuccess)
	cfg.onExhausted = slices.Clip(cfg.onExhausted)
	cfg.onCancelled = slices.Clip(cfg.onCancelled)
	cfg.onFatal = slices.Clip(cfg.onFatal)
	return &Policy{cfg: cfg}
}

// Never returns a policy that does not retry.
func Never() *Policy {
	return New(WithMaxRetries(0))
}

// Default returns a policy with sensible defaults.
func Default() *Policy {
	return New(
		WithMaxRetries(DefaultMaxRetries),
		WithBackoff(WithJitter(0.2, WithCap(10*time.Second, Exponential(100*time.Millisecond)))),
	)
}

// Do executes fn with retry using the default policy.
func Do(ctx context.Context, fn Func, opts ...Option) error {
	return defaultPolicy.Do(ctx, fn, opts...)
}

// Do executes fn with retry using this policy's configuration.
func (p *Policy) Do(ctx context.Context, fn Func, opts ...Option) error {
	if fn == nil {
		return fmt.Errorf("%w: nil operation", ErrInvalidArgument)
	}
	_, err := execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, p.config(opts))
	return err
}

// Get executes fn with retry using p and returns the value of the
// successful attempt. A nil p uses the package defaults.
func Get[T any](ctx context.Context, p *Policy, fn ValueFunc[T], opts ...Option) (T, error) {
	if p == nil {
		p = defaultPolicy
	}
	if fn == nil {
		var zero T
		return zero, fmt.Errorf("%w: nil operation", ErrInvalidArgument)
	}
	return execute(ctx, fn, p.config(opts))
}

func (p *Policy) config(opts []Option) config {
	cfg := p.cfg
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// execution is the state of one call. It is never shared between calls.
type execution struct {
	attempts int
	lastErr  error
	errs     []error
}

func (ex *execution) record(err error, all bool) {
	if all {
		ex.errs = append(ex.errs, err)
		return
	}
	ex.lastErr = err
}

func (ex *execution) failure(all bool) error {
	if all {
		return joinErrors(ex.errs)
	}
	return ex.lastErr
}

func execute[T any](ctx context.Context, fn ValueFunc[T], cfg config) (T, error) {
	var zero T
	if err := cfg.validate(); err != nil {
		return zero, err
	}

	sig := clock.NewSignal()
	if cfg.timeout > 0 {
		sig = clock.SignalAfter(cfg.clock, cfg.timeout)
	}
	defer sig.Release()
	defer sig.Bind(ctx)()

	opCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	defer sig.Notify(cancel)()

	// ctx is checked directly as well because Bind reports a cancelled
	// context asynchronously.
	done := func() bool {
		if ctx.Err() != nil {
			sig.Trigger(context.Cause(ctx))
		}
		return sig.Triggered()
	}

	var ex execution
	for {
		if done() {
			return zero, cfg.cancelled(ctx, &ex, sig.Err())
		}

		ex.attempts++
		for _, hook := range cfg.onAttempt {
			hook(ctx, ex.attempts)
		}

		value, err := fn(opCtx)
		if err == nil {
			for _, hook := range cfg.onSuccess {
				hook(ctx, ex.attempts)
			}
			return value, nil
		}

		// Check for terminal error
		var stopped *stopError
		if errors.As(err, &stopped) {
			return zero, cfg.fatal(ctx, &ex, stopped.Unwrap())
		}

		// The deadline passed while the operation ran.
		if done() {
			return zero, cfg.cancelled(ctx, &ex, sig.Err())
		}

		if cfg.condition != nil && !cfg.condition(err) {
			return zero, cfg.fatal(ctx, &ex, err)
		}

		ex.record(err, cfg.allErrors)

		if ex.attempts > cfg.maxRetries {
			final := ex.failure(cfg.allErrors)
			for _, hook := range cfg.onExhausted {
				hook(ctx, ex.attempts, final)
			}
			return zero, &Error{Kind: ErrExhausted, Attempts: ex.attempts, Err: final}
		}

		delay := cfg.backoff.Delay(ex.attempts)
		if delay < 0 {
			return zero, fmt.Errorf("%w: backoff returned negative delay %v after attempt %d",
				ErrInvalidArgument, delay, ex.attempts)
		}
		for _, hook := range cfg.onRetry {
			hook(ctx, ex.attempts, err, delay)
		}

		if err := clock.Wait(cfg.clock, delay, sig); err != nil {
			return zero, cfg.cancelled(ctx, &ex, err)
		}
	}
}

func (c *config) cancelled(ctx context.Context, ex *execution, cause error) error {
	for _, hook := range c.onCancelled {
		hook(ctx, ex.attempts, cause)
	}
	return &Error{Kind: ErrCancelled, Attempts: ex.attempts, Err: cause}
}

func (c *config) fatal(ctx context.Context, ex *execution, err error) error {
	for _, hook := range c.onFatal {
		hook(ctx, ex.attempts, err)
	}
	return &Error{Kind: ErrFatal, Attempts: ex.attempts, Err: err}
}

func joinErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}
