// Package sim drives retry executions and delays against a virtual clock
// and reports what happened at every step.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bjaus/retry/v2"
	"github.com/bjaus/retry/v2/clock"
	"github.com/bjaus/retry/v2/retryprom"
)

// Epoch is the virtual instant every scenario starts from.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	// errHorizon halts a subject that is still suspended after the last step.
	errHorizon = errors.New("simulation horizon reached")
	// errTransient is the retryable failure of simulated operations.
	errTransient = errors.New("transient failure")
)

// Outcome is the state a scenario ended in.
type Outcome string

// Scenario outcomes.
const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeFatal     Outcome = "fatal"
	// OutcomePending means the subject was still suspended after the last
	// step.
	OutcomePending Outcome = "pending"
)

// EventKind classifies timeline entries.
type EventKind string

// Timeline entries.
const (
	EventAdvance  EventKind = "advance"
	EventAttempt  EventKind = "attempt"
	EventRetry    EventKind = "retry"
	EventResolved EventKind = "resolved"
)

// Event is one timeline entry. At is the virtual time elapsed at the end of
// the step during which the event happened.
type Event struct {
	At      time.Duration
	Kind    EventKind
	Attempt int
	Detail  string
}

func (e Event) String() string {
	s := fmt.Sprintf("%10v  %-8s", e.At, e.Kind)
	if e.Attempt > 0 {
		s += fmt.Sprintf(" #%d", e.Attempt)
	}
	if e.Detail != "" {
		s += " " + e.Detail
	}
	return s
}

// Report summarizes a scenario run.
type Report struct {
	Outcome     Outcome
	Invocations int
	Elapsed     time.Duration
	Err         error
	Events      []Event
}

// Runner executes scenarios. The zero value logs nothing and records no
// metrics.
type Runner struct {
	logger  *zap.Logger
	metrics *retryprom.Metrics
}

// NewRunner returns a Runner that logs through logger and, when metrics is
// non-nil, records the simulated executions.
func NewRunner(logger *zap.Logger, metrics *retryprom.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, metrics: metrics}
}

func (r *Runner) log() *zap.Logger {
	if r == nil || r.logger == nil {
		return zap.NewNop()
	}
	return r.logger
}

// timeline collects events from the subject and driver goroutines and
// stamps them once the step that produced them has settled.
type timeline struct {
	mu        sync.Mutex
	events    []Event
	unstamped int
}

func (tl *timeline) add(kind EventKind, attempt int, detail string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.events = append(tl.events, Event{Kind: kind, Attempt: attempt, Detail: detail})
	tl.unstamped++
}

func (tl *timeline) stamp(at time.Duration) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	for i := len(tl.events) - tl.unstamped; i < len(tl.events); i++ {
		tl.events[i].At = at
	}
	tl.unstamped = 0
}

func (tl *timeline) snapshot() []Event {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]Event(nil), tl.events...)
}

// settle blocks until the subject either resolves or parks with n timers
// registered on vc. It reports whether the subject resolved.
func settle(ctx context.Context, vc *clock.Virtual, n int, done <-chan struct{}) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	parked := make(chan error, 1)
	go func() { parked <- vc.BlockUntil(ctx, n) }()

	select {
	case <-done:
		return true, nil
	case err := <-parked:
		if err != nil {
			return false, fmt.Errorf("subject never parked: %w", err)
		}
		return false, nil
	}
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, errHorizon):
		return OutcomePending
	case errors.Is(err, retry.ErrCancelled):
		return OutcomeCancelled
	case errors.Is(err, retry.ErrExhausted):
		return OutcomeExhausted
	default:
		return OutcomeFatal
	}
}

// driver advances a virtual clock one step at a time, letting the subject
// settle in between.
type driver struct {
	vc     *clock.Virtual
	tl     *timeline
	done   <-chan struct{}
	logger *zap.Logger
	// parked returns how many timers the subject holds while suspended.
	parked func(elapsed time.Duration) int
}

func (d *driver) elapsed() time.Duration {
	return d.vc.Now().Sub(Epoch)
}

func (d *driver) settle(ctx context.Context) (bool, error) {
	resolved, err := settle(ctx, d.vc, d.parked(d.elapsed()), d.done)
	d.tl.stamp(d.elapsed())
	return resolved, err
}

// run steps the clock until the subject resolves or next has no step left.
// It reports whether the subject resolved.
func (d *driver) run(ctx context.Context, next func(elapsed time.Duration) (time.Duration, bool)) (bool, error) {
	resolved, err := d.settle(ctx)
	for !resolved && err == nil {
		step, ok := next(d.elapsed())
		if !ok {
			return false, nil
		}
		d.tl.add(EventAdvance, 0, "+"+step.String())
		if err := d.vc.Advance(step); err != nil {
			return false, err
		}
		d.logger.Debug("advanced virtual clock",
			zap.Duration("step", step),
			zap.Duration("elapsed", d.elapsed()),
		)
		resolved, err = d.settle(ctx)
	}
	return resolved, err
}

// steps yields the given steps in order.
func steps(list []time.Duration) func(time.Duration) (time.Duration, bool) {
	i := 0
	return func(time.Duration) (time.Duration, bool) {
		if i >= len(list) {
			return 0, false
		}
		i++
		return list[i-1], true
	}
}

func validSteps(list []time.Duration) error {
	for i, step := range list {
		if step < 0 {
			return fmt.Errorf("%w: step %d is negative (%v)", retry.ErrInvalidArgument, i, step)
		}
	}
	return nil
}
