package sim

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bjaus/retry/v2"
	"github.com/bjaus/retry/v2/clock"
)

// DelayScenario races a wait against a deadline and advances the clock by
// each of Steps in turn.
type DelayScenario struct {
	Wait     time.Duration
	Deadline time.Duration
	Steps    []time.Duration
}

// Validate reports negative durations.
func (s DelayScenario) Validate() error {
	if s.Wait < 0 || s.Deadline < 0 {
		return fmt.Errorf("%w: wait %v, deadline %v", retry.ErrInvalidArgument, s.Wait, s.Deadline)
	}
	return validSteps(s.Steps)
}

// RunDelay runs s on a fresh virtual clock. A delay still suspended after
// the last step is reported as OutcomePending.
func (r *Runner) RunDelay(ctx context.Context, s DelayScenario) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	logger := r.log().With(zap.String("scenario", "delay"))
	vc := clock.NewVirtual(Epoch)
	tl := &timeline{}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, halt := context.WithCancelCause(gctx)
	defer halt(nil)

	done := make(chan struct{})
	var (
		completed bool
		delayErr  error
	)
	g.Go(func() error {
		defer close(done)
		completed, delayErr = retry.Delay(runCtx, vc, s.Wait, s.Deadline)
		return nil
	})

	d := &driver{
		vc:     vc,
		tl:     tl,
		done:   done,
		logger: logger,
		// deadline and wait timers
		parked: func(time.Duration) int { return 2 },
	}
	var elapsed time.Duration
	g.Go(func() error {
		resolved, err := d.run(gctx, steps(s.Steps))
		elapsed = d.elapsed()
		if !resolved {
			halt(errHorizon)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Outcome: OutcomeCompleted, Elapsed: elapsed}
	if !completed {
		report.Outcome = classify(delayErr)
		if report.Outcome != OutcomePending {
			report.Err = delayErr
		}
	}
	tl.add(EventResolved, 0, string(report.Outcome))
	tl.stamp(elapsed)
	report.Events = tl.snapshot()

	logger.Info("delay scenario finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Duration("elapsed", elapsed),
	)
	return report, nil
}
