package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/saga"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCheckoutHandler struct {
	handler CheckoutHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCheckoutHandler(handler CheckoutHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCheckoutHandler {
	return &ObservableCheckoutHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCheckoutHandler) Handle(ctx context.Context, cmd CheckoutCommand) (saga.Execution, error) {
	ctx, span := telemetry.StartSpan(ctx, "CheckoutCommand.Handle")
	defer span.End()

	start := time.Now()
	status := "INVALID"
	defer func() {
		o.metrics.RecordCheckout(ctx, status, time.Since(start).Seconds())
	}()

	o.logger.InfoContext(ctx, "starting checkout",
		"customer_id", cmd.Order.Customer.CustomerID,
		"items", len(cmd.Order.Items),
		"payment_method", cmd.Order.Payment.Method,
	)

	exec, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.WarnContext(ctx, "checkout rejected",
			"customer_id", cmd.Order.Customer.CustomerID,
			"error", err,
		)
		return exec, err
	}

	status = string(exec.Status)
	telemetry.AddSpanAttributes(span,
		attribute.String("saga.id", exec.SagaID),
		attribute.String("saga.status", status),
		attribute.String("order.id", exec.Order.OrderID),
		attribute.String("order.status", string(exec.Order.Status)),
	)

	if !exec.Succeeded() {
		o.logger.WarnContext(ctx, "checkout did not complete",
			"saga_id", exec.SagaID,
			"status", exec.Status,
			"failed_stage", exec.FailedStage,
			"reason", exec.Reason,
		)
		telemetry.AddSpanAttributes(span, attribute.String("saga.failed_stage", exec.FailedStage))
		return exec, nil
	}

	o.logger.InfoContext(ctx, "checkout completed",
		"saga_id", exec.SagaID,
		"order_id", exec.Order.OrderID,
		"grand_total", exec.Order.GrandTotal().String(),
	)
	telemetry.SetSpanSuccess(span)
	return exec, nil
}
