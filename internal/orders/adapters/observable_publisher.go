package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/orderflow/internal/kafka"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservablePublisher struct {
	publisher ports.Publisher
	metrics   *kafka.Metrics
}

func NewObservablePublisher(publisher ports.Publisher, metrics *kafka.Metrics) *ObservablePublisher {
	return &ObservablePublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *ObservablePublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	ctx, span := telemetry.StartProducerSpan(ctx, "Publisher.Publish", topic)
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("messaging.key", key),
		attribute.Int("messaging.payload_bytes", len(payload)),
	)

	start := time.Now()
	err := p.publisher.Publish(ctx, topic, key, payload)
	duration := time.Since(start).Seconds()

	p.metrics.RecordPublish(ctx, topic, duration, err == nil)
	return telemetry.EndSpanWith(span, err)
}
