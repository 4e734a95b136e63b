// Package resilience provides the failure-handling primitives used around
// outbound calls to the document store and the risk engine.
//
// # Patterns
//
//   - Retry: re-runs an operation while RetryIf classifies the failure as
//     retryable, with constant, linear or exponential backoff. When the
//     budget runs out on a retryable failure the error is wrapped in an
//     *ExhaustedError so callers can tell "gave up" from "rejected".
//
//   - Timeout: bounds an operation with a context deadline.
//
//   - Circuit Breaker: stops calling a dependency after consecutive
//     failures and probes it again after ResetTimeout.
//
//   - Rate Limiter: token bucket on top of golang.org/x/time/rate.
//
// # Usage
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  3,
//	    InitialDelay: 100 * time.Millisecond,
//	    Strategy:     resilience.BackoffConstant,
//	    RetryIf:      isTransient,
//	})
//
//	executor := resilience.NewExecutor(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 50, Burst: 10})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetry(retry),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    return callStore(ctx)
//	})
package resilience
