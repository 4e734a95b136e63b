package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*metricsImpl, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// TestMetrics_RecordOperationSuccess verifies a success counts once and is not an error.
func TestMetrics_RecordOperationSuccess(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordOperation(context.Background(), OpMeta{Component: "docstore", Name: "get"}, 12*time.Millisecond, nil)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "operation.total"); got != 1 {
		t.Errorf("expected operation.total 1, got %d", got)
	}
	if got := sumValue(t, rm, "operation.errors"); got != 0 {
		t.Errorf("expected operation.errors 0, got %d", got)
	}
	if findMetric(rm, "operation.duration_ms") == nil {
		t.Error("operation.duration_ms metric not found")
	}
}

// TestMetrics_RecordOperationFailure verifies failures increment the error counter.
func TestMetrics_RecordOperationFailure(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordOperation(context.Background(), OpMeta{Component: "docstore", Name: "upsert"}, time.Millisecond, errors.New("boom"))

	rm := collect(t, reader)
	if got := sumValue(t, rm, "operation.errors"); got != 1 {
		t.Errorf("expected operation.errors 1, got %d", got)
	}
}

// TestMetrics_LabelsApplied verifies operation attributes are attached.
func TestMetrics_LabelsApplied(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordOperation(context.Background(), OpMeta{Component: "docstore", Name: "get", Target: "risk_results"}, time.Millisecond, nil)

	rm := collect(t, reader)
	sum := findMetric(rm, "operation.total").Data.(metricdata.Sum[int64])
	attrs := sum.DataPoints[0].Attributes
	for key, want := range map[attribute.Key]string{
		"op.component": "docstore",
		"op.name":      "get",
		"op.target":    "risk_results",
	} {
		got, ok := attrs.Value(key)
		if !ok || got.AsString() != want {
			t.Errorf("attribute %s: expected %q, got %q", key, want, got.AsString())
		}
	}
}

// TestMetrics_RetryAndLookup verifies the store retry and cache lookup counters.
func TestMetrics_RetryAndLookup(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRetry(ctx, OpMeta{Component: "docstore", Name: "get"})
	m.RecordRetry(ctx, OpMeta{Component: "docstore", Name: "get"})
	m.RecordLookup(ctx, OutcomeHit)
	m.RecordLookup(ctx, OutcomeMiss)
	m.RecordLookup(ctx, OutcomeMiss)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "store.retry.total"); got != 2 {
		t.Errorf("expected store.retry.total 2, got %d", got)
	}

	lookups := findMetric(rm, "scenario.cache.lookups").Data.(metricdata.Sum[int64])
	byOutcome := map[string]int64{}
	for _, dp := range lookups.DataPoints {
		v, _ := dp.Attributes.Value("outcome")
		byOutcome[v.AsString()] = dp.Value
	}
	if byOutcome[OutcomeHit] != 1 || byOutcome[OutcomeMiss] != 2 {
		t.Errorf("unexpected lookup counts: %v", byOutcome)
	}
}

// TestMetrics_ConcurrentRecording verifies the counters are safe for concurrent use.
func TestMetrics_ConcurrentRecording(t *testing.T) {
	m, reader := newTestMetrics(t)
	meta := OpMeta{Component: "cache", Name: "chat_context"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordOperation(context.Background(), meta, time.Millisecond, nil)
		}()
	}
	wg.Wait()

	if got := sumValue(t, collect(t, reader), "operation.total"); got != 50 {
		t.Errorf("expected operation.total 50, got %d", got)
	}
}
