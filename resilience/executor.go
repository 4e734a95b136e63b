package resilience

import (
	"context"
)

// Executor composes rate limiting, circuit breaking and retry.
type Executor struct {
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker
	retry          *Retry
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor. With no options Execute
// simply calls the operation.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor. Each attempt
// made by the retry passes through the breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithRateLimiter adds rate limiting to the executor. The limiter is
// consulted once per logical call, not per attempt.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// Execute runs op through the configured patterns, outermost first:
// rate limiter, retry, circuit breaker.
//
// An open circuit returns ErrCircuitOpen from the attempt; whether that is
// retried is up to the retry's RetryIf.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	attempt := op
	if e.circuitBreaker != nil {
		attempt = func(ctx context.Context) error {
			return e.circuitBreaker.Execute(ctx, op)
		}
	}

	call := attempt
	if e.retry != nil {
		call = func(ctx context.Context) error {
			return e.retry.Execute(ctx, attempt)
		}
	}

	if e.rateLimiter != nil {
		return e.rateLimiter.Execute(ctx, call)
	}
	return call(ctx)
}
