package observe

import "errors"

// Configuration errors returned by Config.Validate. Validate reports every
// problem it finds, so several of these may be joined in one error.
var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: invalid log level")
	ErrInvalidLogFormat       = errors.New("observe: invalid log format")

	// ErrInvalidAttribute means a resource attribute has an empty key or
	// tries to override service.name or service.version.
	ErrInvalidAttribute = errors.New("observe: invalid resource attribute")
)

// ErrNilObserver indicates a nil Observer was provided.
var ErrNilObserver = errors.New("observe: observer is nil")

// Sampling bounds for TracingConfig.SamplePct.
const (
	MinSamplePct = 0.0
	MaxSamplePct = 1.0
)

// Accepted names. The empty string always means the default ("none" for
// exporters, "info" and "json" for logging).
var (
	ValidTracingExporters = []string{"otlp", "jaeger", "stdout", "none", ""}
	ValidMetricsExporters = []string{"otlp", "prometheus", "stdout", "none", ""}
	ValidLogLevels        = []string{"debug", "info", "warn", "error", ""}
	ValidLogFormats       = []string{FormatJSON, FormatConsole, ""}
)

// reservedAttributes are set from Config.ServiceName and Config.Version.
var reservedAttributes = []string{"service.name", "service.version"}
