package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/scenariocache/resilience"
)

// Status represents the health status of a component.
type Status int

const (
	// StatusHealthy indicates the component is functioning normally.
	StatusHealthy Status = iota
	// StatusDegraded indicates the component is functioning but with issues.
	StatusDegraded
	// StatusUnhealthy indicates the component is not functioning properly.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result contains the outcome of a health check.
type Result struct {
	Status   Status
	Message  string
	Details  map[string]any
	Duration time.Duration
	// Timestamp is when the check started.
	Timestamp time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err, Timestamp: time.Now()}
}

// WithDetails adds details to a result.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is the interface for health checks.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc is an adapter to allow ordinary functions to be used as Checkers.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc creates a new CheckerFunc.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

// Name returns the name of this checker.
func (f *CheckerFunc) Name() string { return f.name }

// Check performs the health check.
func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// Pinger is anything that can prove it is reachable. *docstore.Client
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports a Pinger as unhealthy when Ping fails and as
// degraded when it answers slower than SlowAfter.
type PingChecker struct {
	name      string
	pinger    Pinger
	slowAfter time.Duration
	now       func() time.Time
}

// NewPingChecker creates a PingChecker. A zero slowAfter disables the
// degraded state.
func NewPingChecker(name string, p Pinger, slowAfter time.Duration) *PingChecker {
	return &PingChecker{name: name, pinger: p, slowAfter: slowAfter, now: time.Now}
}

// Name returns the checker name.
func (c *PingChecker) Name() string { return c.name }

// Check pings the dependency.
func (c *PingChecker) Check(ctx context.Context) Result {
	start := c.now()
	err := c.pinger.Ping(ctx)
	latency := c.now().Sub(start)
	details := map[string]any{"latency_ms": latency.Milliseconds()}

	switch {
	case err != nil:
		return Unhealthy("unreachable", err).WithDetails(details)
	case c.slowAfter > 0 && latency > c.slowAfter:
		return Degraded(fmt.Sprintf("slow response (%s)", latency.Round(time.Millisecond))).WithDetails(details)
	default:
		return Healthy("reachable").WithDetails(details)
	}
}

// BreakerChecker maps a circuit breaker state to a status: closed is
// healthy, half-open degraded, open unhealthy.
type BreakerChecker struct {
	name  string
	state func() resilience.State
}

// NewBreakerChecker creates a BreakerChecker over a state accessor such
// as (*docstore.Client).State.
func NewBreakerChecker(name string, state func() resilience.State) *BreakerChecker {
	return &BreakerChecker{name: name, state: state}
}

// Name returns the checker name.
func (c *BreakerChecker) Name() string { return c.name }

// Check reads the breaker state.
func (c *BreakerChecker) Check(context.Context) Result {
	state := c.state()
	details := map[string]any{"state": state.String()}
	switch state {
	case resilience.StateOpen:
		return Unhealthy("circuit open", ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit probing").WithDetails(details)
	default:
		return Healthy("circuit closed").WithDetails(details)
	}
}
