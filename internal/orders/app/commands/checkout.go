package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/saga"
)

// CheckoutCommand asks for a cart to be taken through the checkout saga.
type CheckoutCommand struct {
	Order domain.Order
}

// Validate rejects requests that are malformed. Business rules such as an
// empty cart or oversized lines are left to the saga so they appear in its trail.
func (c CheckoutCommand) Validate() error {
	customer := c.Order.Customer
	if strings.TrimSpace(customer.CustomerID) == "" {
		return fmt.Errorf("%w: customer_id is required", domain.ErrValidation)
	}
	if !strings.Contains(customer.Email, "@") {
		return fmt.Errorf("%w: customer email must be valid", domain.ErrValidation)
	}
	if !c.Order.Payment.Method.Valid() {
		return fmt.Errorf("%w: unsupported payment method %q", domain.ErrValidation, c.Order.Payment.Method)
	}
	for i, item := range c.Order.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: items[%d].product_id is required", domain.ErrValidation, i)
		}
		if err := item.Validate(); err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
	}
	return nil
}

type CheckoutHandler interface {
	Handle(ctx context.Context, cmd CheckoutCommand) (saga.Execution, error)
}

// Runner executes a checkout saga.
type Runner interface {
	Run(ctx context.Context, order domain.Order) saga.Execution
}

type CheckoutCommandHandler struct {
	runner Runner
}

func NewCheckoutCommandHandler(runner Runner) *CheckoutCommandHandler {
	return &CheckoutCommandHandler{runner: runner}
}

// Handle validates the command and runs the saga. Saga failures are reported
// in the Execution, not as an error.
func (h *CheckoutCommandHandler) Handle(ctx context.Context, cmd CheckoutCommand) (saga.Execution, error) {
	if err := cmd.Validate(); err != nil {
		return saga.Execution{}, err
	}

	order := cmd.Order.Clone().WithDefaults()
	order.Status = domain.StatusPending
	return h.runner.Run(ctx, order), nil
}
