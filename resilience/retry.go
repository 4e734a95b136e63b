package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy picks the wait before the next attempt.
type BackoffStrategy int

const (
	BackoffExponential BackoffStrategy = iota // InitialDelay * Multiplier^(n-1)
	BackoffLinear                             // InitialDelay * n
	BackoffConstant                           // InitialDelay
)

// Retry defaults.
const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0
)

// RetryConfig configures a Retry. Zero fields take the defaults above;
// the zero Strategy is exponential.
type RetryConfig struct {
	// MaxAttempts counts the first call. One means no retries.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Strategy     BackoffStrategy

	// Jitter adds up to 25% to each wait.
	Jitter bool

	// RetryIf reports whether err is worth another attempt. Nil retries
	// every error.
	RetryIf func(err error) bool

	// OnRetry runs before each wait, with the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry runs an operation until it succeeds or the attempt budget is spent.
// A Retry holds no per-call state and is safe for concurrent use.
type Retry struct {
	config RetryConfig
}

// NewRetry applies defaults to config and returns a Retry.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = DefaultInitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultMaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = DefaultMultiplier
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}
	return &Retry{config: config}
}

// Execute runs op until it succeeds, fails with a non-retryable error, or
// the attempt budget is spent.
//
// A non-retryable error is returned unchanged. Running out of attempts on a
// retryable error returns an *ExhaustedError wrapping the last failure.
// Cancellation of ctx while waiting between attempts returns ctx.Err().
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) {
			return err
		}
		if attempt >= r.config.MaxAttempts {
			break
		}

		delay := r.calculateDelay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &ExhaustedError{Attempts: r.config.MaxAttempts, Err: lastErr}
}

// ExecuteValue is Execute for operations that produce a value. The value of
// the successful attempt is returned; on failure it is the zero value.
func ExecuteValue[T any](ctx context.Context, r *Retry, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (r *Retry) calculateDelay(attempt int) time.Duration {
	c := r.config
	delay := c.InitialDelay
	switch c.Strategy {
	case BackoffLinear:
		delay *= time.Duration(attempt)
	case BackoffExponential:
		delay = time.Duration(float64(delay) * math.Pow(c.Multiplier, float64(attempt-1)))
	}
	delay = min(delay, c.MaxDelay)

	if c.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
