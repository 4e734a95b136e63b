package observe

import (
	"context"
	"time"
)

// Middleware wraps operations with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: the span context is propagated to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = newNoopTracer()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NewNopMiddleware returns a Middleware that records nothing.
func NewNopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// NewLoggingMiddleware returns a Middleware that only logs.
func NewLoggingMiddleware(logger Logger) *Middleware {
	return NewMiddleware(nil, nil, logger)
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(newTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// WithLogger returns a copy of m that logs to l.
func (m *Middleware) WithLogger(l Logger) *Middleware {
	if l == nil {
		l = NopLogger()
	}
	out := *m
	out.logger = l
	return &out
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// Instrument runs fn inside a span and records its duration and outcome.
// Successful operations log at debug; failures log at error.
func (m *Middleware) Instrument(ctx context.Context, meta OpMeta, fn func(context.Context) error) error {
	ctx, span := m.tracer.StartSpan(ctx, meta)

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	m.tracer.EndSpan(span, err)
	m.metrics.RecordOperation(ctx, meta, duration, err)

	opLogger := m.logger.WithOp(meta)
	fields := []Field{F("duration_ms", float64(duration.Milliseconds()))}
	if err != nil {
		fields = append(fields, F("error", err.Error()))
		opLogger.Error(ctx, "operation failed", fields...)
	} else {
		opLogger.Debug(ctx, "operation completed", fields...)
	}

	return err
}

// Retry records that attempt (2 or later) of an operation is starting.
func (m *Middleware) Retry(ctx context.Context, meta OpMeta, attempt int, cause error) {
	m.metrics.RecordRetry(ctx, meta)

	fields := []Field{F("attempt", attempt)}
	if cause != nil {
		fields = append(fields, F("cause", cause.Error()))
	}
	m.logger.WithOp(meta).Warn(ctx, "retrying operation", fields...)
}

// Lookup records a scenario cache lookup outcome.
func (m *Middleware) Lookup(ctx context.Context, scenarioID, outcome string) {
	m.metrics.RecordLookup(ctx, outcome)
	m.logger.Debug(ctx, "scenario cache lookup",
		F("scenario_id", scenarioID),
		F("outcome", outcome),
	)
}
