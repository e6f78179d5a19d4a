package sim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bjaus/retry/v2"
	"github.com/bjaus/retry/v2/clock"
	"github.com/bjaus/retry/v2/retryzap"
)

// PolicyName labels the logs and metrics of simulated executions.
const PolicyName = "sim"

// RetryScenario runs a policy built from Config against an operation that
// spends TaskDelay on the clock and then fails until invocation SucceedOn.
// The operation ignores cancellation, like a call that cannot be
// interrupted once started.
//
// Steps, when set, are applied in order. Otherwise the clock advances by
// Step until Horizon has elapsed.
type RetryScenario struct {
	Config    retry.Config
	TaskDelay time.Duration
	SucceedOn int // 0 never succeeds
	Steps     []time.Duration
	Step      time.Duration
	Horizon   time.Duration
}

// Validate reports malformed scenarios.
func (s RetryScenario) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	if s.TaskDelay < 0 {
		return fmt.Errorf("%w: task delay %v is negative", retry.ErrInvalidArgument, s.TaskDelay)
	}
	if s.SucceedOn < 0 {
		return fmt.Errorf("%w: succeed-on %d is negative", retry.ErrInvalidArgument, s.SucceedOn)
	}
	if s.Step < 0 || s.Horizon < 0 {
		return fmt.Errorf("%w: step %v, horizon %v", retry.ErrInvalidArgument, s.Step, s.Horizon)
	}
	if len(s.Steps) == 0 && s.Step > 0 && s.Horizon == 0 {
		return fmt.Errorf("%w: a step needs a horizon", retry.ErrInvalidArgument)
	}
	return validSteps(s.Steps)
}

func (s RetryScenario) next() func(time.Duration) (time.Duration, bool) {
	if len(s.Steps) > 0 {
		return steps(s.Steps)
	}
	return func(elapsed time.Duration) (time.Duration, bool) {
		if s.Step == 0 || elapsed >= s.Horizon {
			return 0, false
		}
		return s.Step, true
	}
}

// RunRetry runs s on a fresh virtual clock.
func (r *Runner) RunRetry(ctx context.Context, s RetryScenario) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	logger := r.log().With(zap.String("scenario", "retry"))
	vc := clock.NewVirtual(Epoch)
	tl := &timeline{}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, halt := context.WithCancelCause(gctx)
	defer halt(nil)

	opts := []retry.Option{
		retry.WithClock(vc),
		retry.If(func(err error) bool { return errors.Is(err, errTransient) }),
		retry.OnAttempt(func(_ context.Context, attempt int) {
			tl.add(EventAttempt, attempt, "")
		}),
		retry.OnRetry(func(_ context.Context, attempt int, err error, delay time.Duration) {
			tl.add(EventRetry, attempt, fmt.Sprintf("backoff %v after: %v", delay, err))
		}),
		retryzap.Hooks(logger, PolicyName),
	}
	if r != nil && r.metrics != nil {
		opts = append(opts, r.metrics.Hooks(PolicyName))
	}
	policy, err := s.Config.Policy(opts...)
	if err != nil {
		return nil, err
	}

	var invocations atomic.Int32
	op := func(context.Context) error {
		n := int(invocations.Add(1))
		if err := clock.Sleep(runCtx, vc, s.TaskDelay); err != nil {
			return err
		}
		if s.SucceedOn > 0 && n >= s.SucceedOn {
			return nil
		}
		return fmt.Errorf("%w: invocation %d", errTransient, n)
	}

	done := make(chan struct{})
	var runErr error
	g.Go(func() error {
		defer close(done)
		runErr = policy.Do(runCtx, op)
		return nil
	})

	timeout := s.Config.Timeout
	d := &driver{
		vc:     vc,
		tl:     tl,
		done:   done,
		logger: logger,
		// one task or backoff timer, plus the deadline until it fires
		parked: func(elapsed time.Duration) int {
			if timeout > 0 && elapsed < timeout {
				return 2
			}
			return 1
		},
	}
	var elapsed time.Duration
	var stalled int
	g.Go(func() error {
		resolved, err := d.run(gctx, s.next())
		elapsed = d.elapsed()
		if !resolved {
			// Count before halting: the halt itself ends the execution.
			stalled = int(invocations.Load())
			halt(errHorizon)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Outcome:     classify(runErr),
		Invocations: int(invocations.Load()),
		Elapsed:     elapsed,
	}
	if report.Outcome == OutcomePending {
		report.Invocations = stalled
	} else {
		report.Err = runErr
	}
	detail := string(report.Outcome)
	if report.Err != nil {
		detail += ": " + report.Err.Error()
	}
	tl.add(EventResolved, 0, detail)
	tl.stamp(elapsed)
	report.Events = tl.snapshot()

	logger.Info("retry scenario finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("invocations", report.Invocations),
		zap.Duration("elapsed", elapsed),
	)
	return report, nil
}
