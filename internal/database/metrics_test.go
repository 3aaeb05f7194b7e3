package database

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecordQuery(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	ctx := context.Background()
	metrics.RecordQuery(ctx, "save_processed", 0.01, false)
	metrics.RecordQuery(ctx, "get_audit_record", 0.002, false)
	metrics.RecordQuery(ctx, "save_processed", 0.5, true)

	got := collect(t, reader)

	histogram, ok := got["db_query_duration_seconds"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("db_query_duration_seconds missing or not a float histogram")
	}
	if len(histogram.DataPoints) != 2 {
		t.Errorf("expected one series per operation, got %d", len(histogram.DataPoints))
	}

	failures, ok := got["db_query_errors_total"].Data.(metricdata.Sum[int64])
	if !ok || len(failures.DataPoints) != 1 {
		t.Fatalf("db_query_errors_total = %+v", got["db_query_errors_total"])
	}
	point := failures.DataPoints[0]
	if point.Value != 1 {
		t.Errorf("error count = %d, want 1", point.Value)
	}
	if op, _ := point.Attributes.Value(attribute.Key("operation")); op.AsString() != "save_processed" {
		t.Errorf("operation = %s", op.AsString())
	}
}
