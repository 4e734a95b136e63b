package health

import "errors"

var (
	// ErrCheckTimeout indicates a health check did not finish before the
	// aggregator's deadline.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates a checker was not found.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrCircuitOpen is reported by BreakerChecker while the breaker rejects calls.
	ErrCircuitOpen = errors.New("health: circuit open")
)
