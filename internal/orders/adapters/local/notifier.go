package local

import (
	"context"
	"log/slog"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

// Notifier logs the messages a real provider would deliver.
type Notifier struct {
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

func (n *Notifier) SendEmail(ctx context.Context, order domain.Order) error {
	n.logger.InfoContext(ctx, "order confirmation email sent",
		"order_id", order.OrderID,
		"email", order.Customer.Email,
		"grand_total", order.GrandTotal().String(),
	)
	return nil
}

func (n *Notifier) SendSMS(ctx context.Context, order domain.Order) error {
	n.logger.InfoContext(ctx, "order confirmation sms sent",
		"order_id", order.OrderID,
		"phone", order.Customer.Phone,
	)
	return nil
}
