package kafka

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	producerLatency metric.Float64Histogram
	consumerLatency metric.Float64Histogram
	consumerErrors  metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.producerLatency, err = meter.Float64Histogram(
		"kafka_producer_latency_seconds",
		metric.WithDescription("Kafka producer latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka_producer_latency histogram: %w", err)
	}

	m.consumerLatency, err = meter.Float64Histogram(
		"kafka_consumer_handle_seconds",
		metric.WithDescription("Time spent handling one consumed message"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka_consumer_handle histogram: %w", err)
	}

	m.consumerErrors, err = meter.Int64Counter(
		"kafka_consumer_errors_total",
		metric.WithDescription("Kafka fetch and commit failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka_consumer_errors counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordPublish(ctx context.Context, topic string, durationSeconds float64, success bool) {
	m.producerLatency.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("status", status(success)),
	))
}

func (m *Metrics) RecordConsume(ctx context.Context, topic string, durationSeconds float64) {
	m.consumerLatency.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("topic", topic),
	))
}

// RecordConsumerError counts a failed fetch or commit.
func (m *Metrics) RecordConsumerError(ctx context.Context, topic, operation string) {
	m.consumerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("operation", operation),
	))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
