package stream

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
)

// Enricher normalizes an accepted order before it is scored. Running it
// twice only moves UpdatedAt.
type Enricher struct {
	clock   func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewEnricher(clock func() time.Time, logger *slog.Logger, m *metrics.Metrics) *Enricher {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{clock: clock, logger: logger, metrics: m}
}

func (e *Enricher) Enrich(ctx context.Context, order domain.Order) domain.Order {
	order.UpdatedAt = e.clock()

	if strings.TrimSpace(order.Source) == "" {
		order.Source = domain.DefaultSource
	}
	if order.Status == domain.StatusPending && order.Payment.IsPaid {
		order.Status = domain.StatusPaymentConfirmed
	}

	grandTotal := order.GrandTotal()
	if !order.Payment.Amount.Equal(grandTotal) {
		e.logger.WarnContext(ctx, "payment amount mismatch",
			"order_id", order.OrderID,
			"payment_amount", order.Payment.Amount.String(),
			"grand_total", grandTotal.String(),
		)
		order.Payment.Amount = grandTotal
		if e.metrics != nil {
			e.metrics.RecordPaymentCorrection(ctx)
		}
	}

	e.logger.DebugContext(ctx, "order enriched",
		"order_id", order.OrderID,
		"status", order.Status,
		"total_items", order.TotalItems(),
		"grand_total", grandTotal.String(),
	)
	return order
}
