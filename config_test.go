package retry_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/retry/v2"
	"github.com/bjaus/retry/v2/clock"
)

func TestParseConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := retry.ParseConfig(nil)
		require.NoError(t, err)
		require.NotNil(t, cfg.MaxRetries)
		assert.Equal(t, retry.DefaultMaxRetries, *cfg.MaxRetries)
		require.NotNil(t, cfg.Delay)
		assert.Equal(t, retry.DefaultConfigDelay, *cfg.Delay)
		assert.Equal(t, retry.DefaultConfigBackoff, cfg.Backoff)
		assert.Zero(t, cfg.Timeout)
	})

	t.Run("all fields", func(t *testing.T) {
		cfg, err := retry.ParseConfig([]byte(`
max_retries: 5
delay: 250ms
backoff: exponential
min_delay: 100ms
max_delay: 2s
jitter: 0.1
timeout: 6s
`))
		require.NoError(t, err)
		assert.Equal(t, 5, *cfg.MaxRetries)
		assert.Equal(t, 250*time.Millisecond, *cfg.Delay)
		assert.Equal(t, "exponential", cfg.Backoff)
		assert.Equal(t, 100*time.Millisecond, cfg.MinDelay)
		assert.Equal(t, 2*time.Second, cfg.MaxDelay)
		assert.InDelta(t, 0.1, cfg.Jitter, 1e-9)
		assert.Equal(t, 6*time.Second, cfg.Timeout)
	})

	t.Run("explicit zero retries is kept", func(t *testing.T) {
		cfg, err := retry.ParseConfig([]byte("max_retries: 0\n"))
		require.NoError(t, err)
		assert.Equal(t, 0, *cfg.MaxRetries)
	})

	t.Run("explicit zero delay is kept", func(t *testing.T) {
		cfg, err := retry.ParseConfig([]byte("delay: 0s\n"))
		require.NoError(t, err)
		require.NotNil(t, cfg.Delay)
		assert.Zero(t, *cfg.Delay)

		b, err := cfg.BackoffStrategy()
		require.NoError(t, err)
		assert.Zero(t, b.Delay(1))
	})

	t.Run("invalid", func(t *testing.T) {
		cases := map[string]string{
			"negative retries":  "max_retries: -1\n",
			"negative delay":    "delay: -1s\n",
			"negative timeout":  "timeout: -5s\n",
			"negative min":      "min_delay: -1ms\n",
			"min above max":     "min_delay: 2s\nmax_delay: 1s\n",
			"jitter too large":  "jitter: 1.5\n",
			"unknown shape":     "backoff: fibonacci\n",
			"malformed yaml":    "max_retries: [\n",
			"malformed seconds": "delay: soon\n",
		}
		for name, doc := range cases {
			_, err := retry.ParseConfig([]byte(doc))
			require.ErrorIs(t, err, retry.ErrInvalidArgument, name)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "retry.yaml")
		require.NoError(t, os.WriteFile(path, []byte("max_retries: 3\ndelay: 2s\n"), 0o600))

		cfg, err := retry.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 3, *cfg.MaxRetries)
		assert.Equal(t, 2*time.Second, *cfg.Delay)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := retry.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestConfigBackoffStrategy(t *testing.T) {
	cfg, err := retry.ParseConfig([]byte(`
delay: 100ms
backoff: exponential
min_delay: 150ms
max_delay: 500ms
`))
	require.NoError(t, err)

	b, err := cfg.BackoffStrategy()
	require.NoError(t, err)
	assertDelays(t, b, []delayCase{
		{1, 150 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 500 * time.Millisecond},
	})
}

func TestConfigPolicy(t *testing.T) {
	t.Run("drives executions", func(t *testing.T) {
		cfg, err := retry.ParseConfig([]byte("max_retries: 2\ndelay: 1s\n"))
		require.NoError(t, err)

		fc := newFakeClock()
		policy, err := cfg.Policy(retry.WithClock(fc))
		require.NoError(t, err)

		calls := 0
		err = policy.Do(context.Background(), func(context.Context) error {
			calls++
			return errTest
		})
		require.ErrorIs(t, err, retry.ErrExhausted)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{time.Second, time.Second}, fc.Sleeps())
	})

	t.Run("timeout arms the deadline", func(t *testing.T) {
		cfg, err := retry.ParseConfig([]byte("delay: 1s\ntimeout: 1500ms\n"))
		require.NoError(t, err)

		vc := clock.NewVirtual(epoch)
		policy, err := cfg.Policy(retry.WithClock(vc))
		require.NoError(t, err)

		result := start(func() (struct{}, error) {
			return struct{}{}, policy.Do(context.Background(), func(context.Context) error { return errTest })
		})
		parked(t, vc, 2)
		require.NoError(t, vc.Advance(time.Second))
		parked(t, vc, 2)
		require.NoError(t, vc.Advance(time.Second))

		o := await(t, result)
		require.ErrorIs(t, o.err, retry.ErrCancelled)
	})

	t.Run("rejects edited config", func(t *testing.T) {
		cfg, err := retry.ParseConfig(nil)
		require.NoError(t, err)

		n := -3
		cfg.MaxRetries = &n
		_, err = cfg.Policy()
		require.ErrorIs(t, err, retry.ErrInvalidArgument)
	})
}
