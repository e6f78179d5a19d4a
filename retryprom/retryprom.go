// Package retryprom records retry lifecycle events as Prometheus metrics.
package retryprom

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bjaus/retry/v2"
)

// Outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeExhausted = "exhausted"
	OutcomeFatal     = "fatal"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the collectors shared by every policy that reports through
// it. Series are labelled by policy name.
type Metrics struct {
	attempts *prometheus.CounterVec
	retries  *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	backoff  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of operation invocations",
			},
			[]string{"policy"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_retries_total",
				Help:      "Total number of attempts that followed a failed one",
			},
			[]string{"policy"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_outcomes_total",
				Help:      "Total number of finished executions by outcome",
			},
			[]string{"policy", "outcome"},
		),
		backoff: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retry_backoff_seconds",
				Help:      "Backoff delays chosen between attempts",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"policy"},
		),
	}

	for _, c := range []prometheus.Collector{m.attempts, m.retries, m.outcomes, m.backoff} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register retry metrics: %w", err)
		}
	}
	return m, nil
}

// Hooks returns an option that records the executions of the named policy.
func (m *Metrics) Hooks(name string) retry.Option {
	attempts := m.attempts.WithLabelValues(name)
	retries := m.retries.WithLabelValues(name)
	backoff := m.backoff.WithLabelValues(name)
	outcome := func(o string) prometheus.Counter {
		return m.outcomes.WithLabelValues(name, o)
	}
	success := outcome(OutcomeSuccess)
	exhausted := outcome(OutcomeExhausted)
	fatal := outcome(OutcomeFatal)
	cancelled := outcome(OutcomeCancelled)

	return retry.Combine(
		retry.OnAttempt(func(_ context.Context, attempt int) {
			attempts.Inc()
			if attempt > 1 {
				retries.Inc()
			}
		}),
		retry.OnRetry(func(_ context.Context, _ int, _ error, delay time.Duration) {
			backoff.Observe(delay.Seconds())
		}),
		retry.OnSuccess(func(context.Context, int) { success.Inc() }),
		retry.OnExhausted(func(context.Context, int, error) { exhausted.Inc() }),
		retry.OnFatal(func(context.Context, int, error) { fatal.Inc() }),
		retry.OnCancelled(func(context.Context, int, error) { cancelled.Inc() }),
	)
}
