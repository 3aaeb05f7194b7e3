package stream

import (
	"context"
	"log/slog"

	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// Processor connects the pipeline to a message transport: it runs each raw
// message through the pipeline and forwards the validated event.
type Processor struct {
	pipeline       *Pipeline
	publisher      ports.Publisher
	validatedTopic string
	logger         *slog.Logger
}

func NewProcessor(pipeline *Pipeline, publisher ports.Publisher, validatedTopic string, logger *slog.Logger) *Processor {
	return &Processor{
		pipeline:       pipeline,
		publisher:      publisher,
		validatedTopic: validatedTopic,
		logger:         logger,
	}
}

// HandleMessage processes one raw order message. Emission failures are
// logged; the audit record is already persisted at that point.
func (p *Processor) HandleMessage(ctx context.Context, _, value []byte) {
	result := p.pipeline.Handle(ctx, value)
	if result.Outcome != OutcomeEmitted || p.validatedTopic == "" {
		return
	}
	if err := p.publisher.Publish(ctx, p.validatedTopic, result.Order.OrderID, result.Event); err != nil {
		p.logger.ErrorContext(ctx, "failed to emit validated order",
			"order_id", result.Order.OrderID,
			"topic", p.validatedTopic,
			"error", err,
		)
	}
}
