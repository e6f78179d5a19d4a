package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/retry/v2"
	"github.com/bjaus/retry/v2/clock"
)

var errInvalidOperation = errors.New("invalid operation")

// slowService fails its first invocation after spending taskDelay on the
// clock, independently of the retry deadline.
type slowService struct {
	clock     clock.Clock
	taskDelay time.Duration
	policy    *retry.Policy
	tries     atomic.Int32
}

func newSlowService(vc *clock.Virtual, taskDelay, timeout time.Duration) *slowService {
	return &slowService{
		clock:     vc,
		taskDelay: taskDelay,
		policy: retry.New(
			retry.WithMaxRetries(2),
			retry.WithDelay(time.Second),
			retry.WithTimeout(timeout),
			retry.WithClock(vc),
			retry.If(func(err error) bool { return errors.Is(err, errInvalidOperation) }),
		),
	}
}

func (s *slowService) Run(ctx context.Context) (int, error) {
	return retry.Get(ctx, s.policy, func(context.Context) (int, error) {
		n := int(s.tries.Add(1))
		if err := clock.Sleep(context.Background(), s.clock, s.taskDelay); err != nil {
			return 0, err
		}
		if n < 2 {
			return 0, errInvalidOperation
		}
		return n, nil
	})
}

func TestVirtualRetry(t *testing.T) {
	t.Run("task delay below retry delay has one try", func(t *testing.T) {
		vc := clock.NewVirtual(epoch)
		svc := newSlowService(vc, time.Second, 3*time.Second)

		result := start(func() (int, error) { return svc.Run(context.Background()) })
		parked(t, vc, 2) // deadline and task delay

		require.NoError(t, vc.Advance(500*time.Millisecond))
		parked(t, vc, 2)

		requirePending(t, result)
		assert.EqualValues(t, 1, svc.tries.Load())
	})

	t.Run("advancing past the retry delay starts the second try", func(t *testing.T) {
		vc := clock.NewVirtual(epoch)
		svc := newSlowService(vc, time.Second, 6*time.Second)

		result := start(func() (int, error) { return svc.Run(context.Background()) })
		parked(t, vc, 2) // deadline and first task delay

		require.NoError(t, vc.Advance(1001*time.Millisecond))
		parked(t, vc, 2) // deadline and backoff

		require.NoError(t, vc.Advance(1050*time.Millisecond))
		parked(t, vc, 2) // deadline and second task delay

		requirePending(t, result)
		assert.EqualValues(t, 2, svc.tries.Load())

		require.NoError(t, vc.Advance(time.Second))
		o := await(t, result)
		require.NoError(t, o.err)
		assert.Equal(t, 2, o.value)
		assert.EqualValues(t, 2, svc.tries.Load())
		assert.Zero(t, vc.Pending())
	})

	t.Run("succeeds on second invocation after one backoff", func(t *testing.T) {
		vc := clock.NewVirtual(epoch)
		var calls atomic.Int32
		var retries atomic.Int32
		policy := retry.New(
			retry.WithMaxRetries(2),
			retry.WithDelay(time.Second),
			retry.WithClock(vc),
			retry.OnRetry(func(context.Context, int, error, time.Duration) { retries.Add(1) }),
		)

		result := start(func() (int32, error) {
			return retry.Get(context.Background(), policy, func(context.Context) (int32, error) {
				n := calls.Add(1)
				if n < 2 {
					return 0, errTest
				}
				return n, nil
			})
		})
		parked(t, vc, 1) // backoff

		require.NoError(t, vc.Advance(999*time.Millisecond))
		parked(t, vc, 1)
		requirePending(t, result)
		assert.EqualValues(t, 1, calls.Load())

		require.NoError(t, vc.Advance(time.Millisecond))
		o := await(t, result)
		require.NoError(t, o.err)
		assert.EqualValues(t, 2, o.value)
		assert.EqualValues(t, 2, calls.Load())
		assert.EqualValues(t, 1, retries.Load())
	})

	t.Run("always failing operation runs max retries plus one", func(t *testing.T) {
		for _, n := range []int{0, 1, 2, 5} {
			vc := clock.NewVirtual(epoch)
			var calls atomic.Int32
			policy := retry.New(
				retry.WithMaxRetries(n),
				retry.WithDelay(time.Second),
				retry.WithClock(vc),
			)

			result := start(func() (struct{}, error) {
				return struct{}{}, policy.Do(context.Background(), func(context.Context) error {
					calls.Add(1)
					return errTest
				})
			})
			for range n {
				parked(t, vc, 1)
				require.NoError(t, vc.Advance(time.Second))
			}

			o := await(t, result)
			require.ErrorIs(t, o.err, retry.ErrExhausted)
			require.ErrorIs(t, o.err, errTest)
			assert.EqualValues(t, n+1, calls.Load())
			assert.Equal(t, epoch.Add(time.Duration(n)*time.Second), vc.Now())
		}
	})

	t.Run("deadline during backoff stops further invocations", func(t *testing.T) {
		vc := clock.NewVirtual(epoch)
		var calls atomic.Int32
		policy := retry.New(
			retry.WithMaxRetries(5),
			retry.WithDelay(time.Second),
			retry.WithTimeout(1500*time.Millisecond),
			retry.WithClock(vc),
		)

		result := start(func() (struct{}, error) {
			return struct{}{}, policy.Do(context.Background(), func(context.Context) error {
				calls.Add(1)
				return errTest
			})
		})
		parked(t, vc, 2)

		require.NoError(t, vc.Advance(time.Second))
		parked(t, vc, 2)
		require.NoError(t, vc.Advance(time.Second))

		o := await(t, result)
		require.ErrorIs(t, o.err, retry.ErrCancelled)
		require.ErrorIs(t, o.err, clock.ErrDeadline)

		var rerr *retry.Error
		require.ErrorAs(t, o.err, &rerr)
		assert.Equal(t, 2, rerr.Attempts)
		assert.EqualValues(t, 2, calls.Load())
		assert.Zero(t, vc.Pending())
	})

	t.Run("deadline equal to backoff cancels", func(t *testing.T) {
		vc := clock.NewVirtual(epoch)
		var calls atomic.Int32
		policy := retry.New(
			retry.WithDelay(time.Second),
			retry.WithTimeout(time.Second),
			retry.WithClock(vc),
		)

		result := start(func() (struct{}, error) {
			return struct{}{}, policy.Do(context.Background(), func(context.Context) error {
				calls.Add(1)
				return errTest
			})
		})
		parked(t, vc, 2)
		require.NoError(t, vc.Advance(time.Second))

		o := await(t, result)
		require.ErrorIs(t, o.err, retry.ErrCancelled)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("failure after deadline is reported as cancelled", func(t *testing.T) {
		vc := clock.NewVirtual(epoch)
		svc := newSlowService(vc, 2*time.Second, time.Second)

		result := start(func() (int, error) { return svc.Run(context.Background()) })
		parked(t, vc, 2)
		require.NoError(t, vc.Advance(2*time.Second))

		o := await(t, result)
		require.ErrorIs(t, o.err, retry.ErrCancelled)
		var rerr *retry.Error
		require.ErrorAs(t, o.err, &rerr)
		assert.Equal(t, 1, rerr.Attempts)
		assert.EqualValues(t, 1, svc.tries.Load())
	})

	t.Run("success after deadline is surfaced", func(t *testing.T) {
		vc := clock.NewVirtual(epoch)
		policy := retry.New(retry.WithTimeout(time.Second), retry.WithClock(vc))

		result := start(func() (string, error) {
			return retry.Get(context.Background(), policy, func(context.Context) (string, error) {
				if err := clock.Sleep(context.Background(), vc, 2*time.Second); err != nil {
					return "", err
				}
				return "done", nil
			})
		})
		parked(t, vc, 2)
		require.NoError(t, vc.Advance(2*time.Second))

		o := await(t, result)
		require.NoError(t, o.err)
		assert.Equal(t, "done", o.value)
	})

	t.Run("operation context follows the deadline", func(t *testing.T) {
		vc := clock.NewVirtual(epoch)
		policy := retry.New(retry.WithTimeout(time.Second), retry.WithClock(vc))

		result := start(func() (struct{}, error) {
			return struct{}{}, policy.Do(context.Background(), func(ctx context.Context) error {
				return clock.Sleep(ctx, vc, time.Hour)
			})
		})
		parked(t, vc, 2)
		require.NoError(t, vc.Advance(time.Second))

		o := await(t, result)
		require.ErrorIs(t, o.err, retry.ErrCancelled)
		require.ErrorIs(t, o.err, clock.ErrDeadline)
	})
}
