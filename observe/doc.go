// Package observe provides tracing, metrics and structured logging for the
// document store client and the scenario cache.
//
// Operations are described by OpMeta and wrapped with Middleware.Instrument,
// which opens a span, records operation metrics and logs the outcome.
// Logging is backed by zap; field keys listed in RedactedFields never reach
// the output.
package observe
