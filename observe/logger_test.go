package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zapcore"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

// TestLogger_IncludesOpFields verifies WithOp attaches the operation identity.
func TestLogger_IncludesOpFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).WithOp(OpMeta{Component: "docstore", Name: "get", Target: "scenarios"})

	logger.Info(context.Background(), "fetched", F("status", 200))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["op.component"] != "docstore" || e["op.name"] != "get" || e["op.target"] != "scenarios" {
		t.Errorf("missing op fields: %v", e)
	}
	if e["msg"] != "fetched" {
		t.Errorf("expected msg 'fetched', got %v", e["msg"])
	}
	if e["status"] != float64(200) {
		t.Errorf("expected status 200, got %v", e["status"])
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("expected timestamp field")
	}
}

// TestLogger_RedactsSensitiveFields verifies credential-like keys never reach the output.
func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "configured",
		F("api_key", "sk-live-123"),
		F("token", "abc"),
		F("base_url", "https://store.example"),
	)

	out := buf.String()
	if strings.Contains(out, "sk-live-123") || strings.Contains(out, "\"abc\"") {
		t.Fatalf("sensitive value leaked: %s", out)
	}
	e := decodeLines(t, &buf)[0]
	if e["api_key"] != "[REDACTED]" {
		t.Errorf("expected api_key redacted, got %v", e["api_key"])
	}
	if e["base_url"] != "https://store.example" {
		t.Errorf("expected base_url kept, got %v", e["base_url"])
	}
}

// TestLogger_LevelFiltering verifies entries below the configured level are dropped.
func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["level"] != "warn" || entries[1]["level"] != "error" {
		t.Errorf("unexpected levels: %v, %v", entries[0]["level"], entries[1]["level"])
	}
}

// TestLogger_TraceIDFromContext verifies the active span's trace id is logged.
func TestLogger_TraceIDFromContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	NewLoggerWithWriter("info", &buf).Info(ctx, "inside span")

	e := decodeLines(t, &buf)[0]
	if e["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace_id %s, got %v", span.SpanContext().TraceID(), e["trace_id"])
	}
}

// TestParseLogLevel verifies known names and the info fallback.
func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// TestZap_UnwrapsOrNoops verifies Zap returns the backing logger when there is one.
func TestZap_UnwrapsOrNoops(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	Zap(logger).Info("direct")
	if !strings.Contains(buf.String(), "direct") {
		t.Errorf("expected direct zap write to reach the writer, got %q", buf.String())
	}

	if Zap(NopLogger()) == nil {
		t.Error("expected a no-op zap logger, got nil")
	}
}
