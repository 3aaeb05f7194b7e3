package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	checkoutsTotal     metric.Int64Counter
	checkoutDuration   metric.Float64Histogram
	stageDuration      metric.Float64Histogram
	streamMessages     metric.Int64Counter
	fraudScore         metric.Float64Histogram
	fraudAlertsTotal   metric.Int64Counter
	paymentMismatchAdj metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.checkoutsTotal, err = meter.Int64Counter(
		"checkout_sagas_total",
		metric.WithDescription("Total number of checkout saga executions by final status"),
		metric.WithUnit("{saga}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_sagas_total counter: %w", err)
	}

	m.checkoutDuration, err = meter.Float64Histogram(
		"checkout_saga_duration_seconds",
		metric.WithDescription("Duration of checkout saga executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_saga_duration histogram: %w", err)
	}

	m.stageDuration, err = meter.Float64Histogram(
		"saga_stage_duration_seconds",
		metric.WithDescription("Duration of individual saga stages"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create saga_stage_duration histogram: %w", err)
	}

	m.streamMessages, err = meter.Int64Counter(
		"stream_messages_total",
		metric.WithDescription("Messages handled by the risk pipeline by outcome"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stream_messages_total counter: %w", err)
	}

	m.fraudScore, err = meter.Float64Histogram(
		"fraud_score",
		metric.WithDescription("Distribution of fraud scores"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(10, 20, 30, 40, 50, 60, 70, 80, 90, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("create fraud_score histogram: %w", err)
	}

	m.fraudAlertsTotal, err = meter.Int64Counter(
		"fraud_alerts_total",
		metric.WithDescription("Fraud alerts raised by risk level"),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create fraud_alerts_total counter: %w", err)
	}

	m.paymentMismatchAdj, err = meter.Int64Counter(
		"payment_amount_corrections_total",
		metric.WithDescription("Payment amounts overwritten with the recomputed grand total"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payment_amount_corrections_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordCheckout(ctx context.Context, status string, durationSeconds float64) {
	m.checkoutsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	m.checkoutDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordStage(ctx context.Context, stage, outcome string, durationSeconds float64) {
	m.stageDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordStreamMessage(ctx context.Context, outcome string) {
	m.streamMessages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordFraudScore(ctx context.Context, score float64, suspicious bool, riskLevel string) {
	m.fraudScore.Record(ctx, score)
	if suspicious {
		m.fraudAlertsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("risk_level", riskLevel),
		))
	}
}

func (m *Metrics) RecordPaymentCorrection(ctx context.Context) {
	m.paymentMismatchAdj.Add(ctx, 1)
}
