package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/scenariocache/resilience"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestPingChecker(t *testing.T) {
	down := errors.New("connection refused")

	tests := []struct {
		name    string
		err     error
		latency time.Duration
		want    Status
	}{
		{"reachable", nil, 10 * time.Millisecond, StatusHealthy},
		{"slow", nil, 2 * time.Second, StatusDegraded},
		{"unreachable", down, 0, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPingChecker("store", pingFunc(func(context.Context) error { return tt.err }), time.Second)
			now := time.Unix(0, 0)
			calls := 0
			c.now = func() time.Time {
				calls++
				if calls == 1 {
					return now
				}
				return now.Add(tt.latency)
			}

			r := c.Check(context.Background())

			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v", r.Status, tt.want)
			}
			if !errors.Is(r.Error, tt.err) {
				t.Errorf("Error = %v, want %v", r.Error, tt.err)
			}
			if r.Details["latency_ms"] != tt.latency.Milliseconds() {
				t.Errorf("latency_ms = %v, want %d", r.Details["latency_ms"], tt.latency.Milliseconds())
			}
		})
	}
}

func TestPingChecker_NoSlowThreshold(t *testing.T) {
	c := NewPingChecker("store", pingFunc(func(context.Context) error { return nil }), 0)

	if r := c.Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("Status = %v, want healthy", r.Status)
	}
	if c.Name() != "store" {
		t.Errorf("Name() = %q", c.Name())
	}
}

func TestBreakerChecker(t *testing.T) {
	tests := []struct {
		state resilience.State
		want  Status
	}{
		{resilience.StateClosed, StatusHealthy},
		{resilience.StateHalfOpen, StatusDegraded},
		{resilience.StateOpen, StatusUnhealthy},
	}

	for _, tt := range tests {
		c := NewBreakerChecker("store_breaker", func() resilience.State { return tt.state })
		r := c.Check(context.Background())
		if r.Status != tt.want {
			t.Errorf("state %v: Status = %v, want %v", tt.state, r.Status, tt.want)
		}
		if r.Details["state"] != tt.state.String() {
			t.Errorf("state detail = %v", r.Details["state"])
		}
	}

	open := NewBreakerChecker("b", func() resilience.State { return resilience.StateOpen }).Check(context.Background())
	if !errors.Is(open.Error, ErrCircuitOpen) {
		t.Errorf("Error = %v, want ErrCircuitOpen", open.Error)
	}
}
