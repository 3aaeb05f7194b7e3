package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/saga"
)

const transactionPrefix = "TXN-"

// ProcessPayment asks the authorizer to charge the order. Cash on delivery and
// bank transfers are approved without it. A decline or an authorizer error is
// reported through payment_success and never aborts.
type ProcessPayment struct {
	payments ports.PaymentAuthorizer
	timeout  time.Duration
	newID    func() string
	logger   *slog.Logger
}

func (s *ProcessPayment) Name() string { return StageProcessPayment }

func (s *ProcessPayment) Execute(ctx context.Context, order domain.Order) (saga.Result, error) {
	if autoApproved(order.Payment.Method) {
		return s.approve(ctx, order), nil
	}

	approved, err := s.authorize(ctx, order)
	if err != nil {
		s.logger.WarnContext(ctx, "payment authorization failed",
			"order_id", order.OrderID,
			"payment_method", order.Payment.Method,
			"error", err,
		)
		return saga.Complete(order, map[string]any{OutputPaymentSuccess: false}), nil
	}
	if !approved {
		s.logger.InfoContext(ctx, "payment declined",
			"order_id", order.OrderID,
			"payment_method", order.Payment.Method,
		)
		return saga.Complete(order, map[string]any{OutputPaymentSuccess: false}), nil
	}
	return s.approve(ctx, order), nil
}

func (s *ProcessPayment) approve(ctx context.Context, order domain.Order) saga.Result {
	order.Payment.TransactionID = transactionPrefix + shortID(s.newID, 8)
	order.Payment.IsPaid = true

	s.logger.InfoContext(ctx, "payment authorized",
		"order_id", order.OrderID,
		"transaction_id", order.Payment.TransactionID,
		"payment_method", order.Payment.Method,
	)
	return saga.Complete(order, map[string]any{
		OutputPaymentSuccess: true,
		OutputTransactionID:  order.Payment.TransactionID,
	})
}

// autoApproved methods settle outside the gateway.
func autoApproved(method domain.PaymentMethod) bool {
	return method == domain.PaymentCOD || method == domain.PaymentBankTransfer
}

func (s *ProcessPayment) authorize(ctx context.Context, order domain.Order) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.payments.Authorize(ctx, order.Payment.Method, order.Payment.Amount)
}
