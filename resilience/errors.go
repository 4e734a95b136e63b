package resilience

import (
	"errors"
	"fmt"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrMaxRetriesExceeded matches any *ExhaustedError.
	ErrMaxRetriesExceeded = errors.New("resilience: max retries exceeded")

	// ErrRateLimitExceeded is returned when the rate limiter has no token.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrTimeout is returned when an operation runs past its deadline.
	ErrTimeout = errors.New("resilience: operation timed out")
)

// ExhaustedError reports that every attempt failed with a retryable error.
// Err is the failure observed on the last attempt.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("resilience: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrMaxRetriesExceeded) match.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrMaxRetriesExceeded
}
