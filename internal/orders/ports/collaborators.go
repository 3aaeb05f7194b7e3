package ports

import (
	"context"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/shopspring/decimal"
)

// Inventory checks and reserves stock for cart lines.
type Inventory interface {
	CheckAvailability(ctx context.Context, item domain.OrderItem) (bool, error)
	Reserve(ctx context.Context, item domain.OrderItem) error
}

// PaymentAuthorizer approves or declines a charge. A decline is a false
// result, not an error.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, method domain.PaymentMethod, amount decimal.Decimal) (bool, error)
}

// Notifier delivers customer-facing confirmations.
type Notifier interface {
	SendEmail(ctx context.Context, order domain.Order) error
	SendSMS(ctx context.Context, order domain.Order) error
}

// SagaLogEntry records one stage transition of a checkout run.
type SagaLogEntry struct {
	SagaID  string
	OrderID string
	Stage   string
	Outcome string
	Reason  string
	TraceID string
	SpanID  string
}

// SagaLog appends stage transitions for later inspection.
type SagaLog interface {
	Append(ctx context.Context, entry SagaLogEntry) error
}
