package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetry_Defaults(t *testing.T) {
	r := NewRetry(RetryConfig{})

	assert.Equal(t, 3, r.config.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, r.config.InitialDelay)
	assert.Equal(t, 30*time.Second, r.config.MaxDelay)
	assert.InDelta(t, 2.0, r.config.Multiplier, 0.0001)
	assert.NotNil(t, r.config.RetryIf)
}

func TestRetry_SuccessOnFirstAttempt(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_SuccessOnLastAttempt(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Strategy: BackoffConstant})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustedWrapsLastError(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Strategy: BackoffConstant})

	attempts := 0
	last := errors.New("attempt 3")
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts == 3 {
			return last
		}
		return errors.New("earlier attempt")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, last)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestRetry_SingleAttemptStillReportsExhaustion(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 1})

	err := r.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("down")
	})

	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestRetry_NonRetryableReturnedUnchanged(t *testing.T) {
	permanent := errors.New("bad request")
	r := NewRetry(RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		RetryIf:      func(err error) bool { return !errors.Is(err, permanent) },
	})

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return permanent
	})

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancelledWhileWaiting(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 10, InitialDelay: time.Second, Strategy: BackoffConstant})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := r.Execute(ctx, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetry_OnRetry(t *testing.T) {
	var seen []int
	r := NewRetry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Strategy:     BackoffConstant,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			seen = append(seen, attempt)
			assert.Equal(t, time.Millisecond, delay)
		},
	})

	_ = r.Execute(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetry_BackoffStrategies(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		attempt int
		want    time.Duration
	}{
		{
			name:    "exponential",
			config:  RetryConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, Strategy: BackoffExponential},
			attempt: 3,
			want:    40 * time.Millisecond,
		},
		{
			name:    "linear",
			config:  RetryConfig{InitialDelay: 10 * time.Millisecond, Strategy: BackoffLinear},
			attempt: 3,
			want:    30 * time.Millisecond,
		},
		{
			name:    "constant",
			config:  RetryConfig{InitialDelay: 10 * time.Millisecond, Strategy: BackoffConstant},
			attempt: 3,
			want:    10 * time.Millisecond,
		},
		{
			name:    "capped",
			config:  RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 10, Strategy: BackoffExponential},
			attempt: 5,
			want:    5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetry(tt.config)
			assert.Equal(t, tt.want, r.calculateDelay(tt.attempt))
		})
	}
}

func TestRetry_JitterStaysWithinQuarter(t *testing.T) {
	r := NewRetry(RetryConfig{InitialDelay: 100 * time.Millisecond, Strategy: BackoffConstant, Jitter: true})

	for i := 0; i < 50; i++ {
		d := r.calculateDelay(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 125*time.Millisecond)
	}
}

func TestExecuteValue(t *testing.T) {
	r := NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, Strategy: BackoffConstant})

	attempts := 0
	v, err := ExecuteValue(context.Background(), r, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "partial", errors.New("flaky")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	v, err = ExecuteValue(context.Background(), r, func(ctx context.Context) (string, error) {
		return "partial", errors.New("down")
	})
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Empty(t, v)
}
