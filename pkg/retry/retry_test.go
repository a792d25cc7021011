package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivgotcrazy/jukey-sub001/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	cfg := fastConfig(5)
	cfg.OnRetry = func(_ int, _ error, d time.Duration) { delays = append(delays, d) }

	attempts := 0
	err := Do(context.Background(), cfg, func() error {
		attempts++
		if attempts < 4 {
			return stderrors.New("broker unavailable")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond}, delays,
		"backoff doubles up to MaxDelay")
}

func TestDo_AttemptsExhausted(t *testing.T) {
	attempts := 0
	cause := stderrors.New("no route")
	err := Do(context.Background(), fastConfig(3), func() error {
		attempts++
		return cause
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_PermanentErrorsStopAtOnce(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"marked", Permanent(stderrors.New("bad credentials"))},
		{"invalid", errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "Connect", "server URL check")},
		{"fatal", errors.WrapFatal(stderrors.New("closed"), "Bridge", "Connect", "state check")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fastConfig(5), func() error {
				attempts++
				return tt.err
			})
			assert.Equal(t, tt.err, err)
			assert.Equal(t, 1, attempts)
		})
	}

	assert.False(t, IsPermanent(errors.WrapTransient(stderrors.New("timeout"), "Bridge", "Connect", "dial")))
	assert.Nil(t, Permanent(nil))
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Second}
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return stderrors.New("refused")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDo_InvalidConfig(t *testing.T) {
	for _, cfg := range []Config{
		{InitialDelay: -time.Second},
		{InitialDelay: time.Second, MaxDelay: time.Millisecond},
	} {
		err := Do(context.Background(), cfg, func() error { return nil })
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	v, err := DoWithResult(context.Background(), fastConfig(3), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", stderrors.New("temporary")
		}
		return "connected", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "connected", v)
	assert.Equal(t, 2, attempts)
}

func TestPresets(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), Quick()} {
		n, err := cfg.normalized()
		require.NoError(t, err)
		assert.Equal(t, cfg.MaxAttempts, n.MaxAttempts)
		assert.True(t, cfg.Jitter)
	}
}
