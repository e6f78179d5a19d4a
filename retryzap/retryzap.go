// Package retryzap logs retry lifecycle events with zap.
//
//	policy := retry.New(
//	    retry.WithMaxRetries(2),
//	    retryzap.Hooks(logger, "billing"),
//	)
package retryzap

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bjaus/retry/v2"
)

// Hooks returns an option that logs every retry, the terminal outcome and
// successes that needed more than one attempt. A nil logger logs nothing.
func Hooks(logger *zap.Logger, name string) retry.Option {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("policy", name))

	return retry.Combine(
		retry.OnRetry(func(_ context.Context, attempt int, err error, delay time.Duration) {
			logger.Warn("attempt failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
		}),
		retry.OnSuccess(func(_ context.Context, attempts int) {
			if attempts > 1 {
				logger.Info("succeeded after retries", zap.Int("attempts", attempts))
				return
			}
			logger.Debug("succeeded", zap.Int("attempts", attempts))
		}),
		retry.OnExhausted(func(_ context.Context, attempts int, err error) {
			logger.Error("retries exhausted", zap.Int("attempts", attempts), zap.Error(err))
		}),
		retry.OnFatal(func(_ context.Context, attempts int, err error) {
			logger.Error("non-retryable failure", zap.Int("attempts", attempts), zap.Error(err))
		}),
		retry.OnCancelled(func(_ context.Context, attempts int, cause error) {
			logger.Warn("execution cancelled", zap.Int("attempts", attempts), zap.NamedError("cause", cause))
		}),
	)
}
