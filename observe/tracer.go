package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// OpMeta identifies an instrumented operation.
type OpMeta struct {
	Component string // Emitting package, e.g. "docstore" or "cache" (required)
	Name      string // Operation name, e.g. "get" (required)
	Target    string // Collection or endpoint the operation addresses (optional)

	// Remote marks a call that leaves the process. Its span is a client
	// span; everything else is internal.
	Remote bool
}

// SpanName returns the deterministic span name for this operation.
// Format: <component>.<name>
func (m OpMeta) SpanName() string {
	return m.Component + "." + m.Name
}

func (m OpMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("op.component", m.Component),
		attribute.String("op.name", m.Name),
	}
	if m.Target != "" {
		attrs = append(attrs, attribute.String("op.target", m.Target))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with operation span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for an operation.
	StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

func (m OpMeta) spanKind() trace.SpanKind {
	if m.Remote {
		return trace.SpanKindClient
	}
	return trace.SpanKindInternal
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(append(meta.attributes(), attribute.Bool("op.error", false))...),
		trace.WithSpanKind(meta.spanKind()),
	)
}

// EndSpan sets the span status from err and ends it. The error message is
// recorded as the status description; the error itself as a span event.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.SetAttributes(attribute.Bool("op.error", true))
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

// newNoopTracer returns a Tracer whose spans record nothing.
func newNoopTracer() Tracer {
	return &tracerImpl{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
}
