package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/saga"
)

const orderPrefix = "ORD-"

// ReserveStock reserves every line. Any reservation error aborts.
type ReserveStock struct {
	inventory ports.Inventory
	timeout   time.Duration
	logger    *slog.Logger
}

func (s *ReserveStock) Name() string { return StageReserveStock }

func (s *ReserveStock) Execute(ctx context.Context, order domain.Order) (saga.Result, error) {
	for _, item := range order.Items {
		if err := s.reserve(ctx, item); err != nil {
			s.logger.WarnContext(ctx, "stock reservation failed",
				"order_id", order.OrderID,
				"product_id", item.ProductID,
				"error", err,
			)
			return saga.Abort(fmt.Sprintf("reserve %s: %v", item.ProductID, err)), nil
		}
	}
	return saga.Complete(order, nil), nil
}

func (s *ReserveStock) reserve(ctx context.Context, item domain.OrderItem) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inventory.Reserve(ctx, item)
}

// CreateOrder assigns identity and confirms the order.
type CreateOrder struct {
	clock  func() time.Time
	newID  func() string
	logger *slog.Logger
}

func (s *CreateOrder) Name() string { return StageCreateOrder }

func (s *CreateOrder) Execute(ctx context.Context, order domain.Order) (saga.Result, error) {
	now := s.clock()
	if order.OrderID == "" {
		order.OrderID = orderPrefix + shortID(s.newID, 12)
	}
	order.Status = domain.StatusPaymentConfirmed
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	s.logger.InfoContext(ctx, "order created",
		"order_id", order.OrderID,
		"status", order.Status,
	)
	return saga.Complete(order, nil), nil
}
