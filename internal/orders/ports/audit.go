package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no audit record exists for an order.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyProcessed is returned by SaveProcessed when the order already
	// has an audit record. Nothing is written.
	ErrAlreadyProcessed = errors.New("order already processed")
)

// AuditRecord is the flattened snapshot of an order after it went through
// the risk pipeline.
type AuditRecord struct {
	ID               string
	OrderID          string
	CustomerID       string
	CustomerName     string
	CustomerEmail    string
	Status           domain.OrderStatus
	TotalItems       int
	Subtotal         decimal.Decimal
	ShippingCost     decimal.Decimal
	VoucherDiscount  decimal.Decimal
	GrandTotal       decimal.Decimal
	PaymentMethod    domain.PaymentMethod
	TransactionID    string
	IsPaid           bool
	ShippingCity     string
	ShippingProvince string
	ShippingCountry  string
	FraudScore       float64
	IsSuspicious     bool
	RiskLevel        domain.RiskLevel
	Recommendation   domain.Recommendation
	Flags            []string
	Source           string
	Snapshot         []byte
	CreatedAt        time.Time
	ProcessedAt      time.Time
}

// FraudAlert is persisted for every suspicious order and reviewed by operators.
type FraudAlert struct {
	ID             string                `json:"id"`
	OrderID        string                `json:"order_id"`
	CustomerID     string                `json:"customer_id"`
	FraudScore     float64               `json:"fraud_score"`
	RiskLevel      domain.RiskLevel      `json:"risk_level"`
	Flags          []string              `json:"flags"`
	Recommendation domain.Recommendation `json:"recommendation"`
	Reviewed       bool                  `json:"reviewed"`
	CreatedAt      time.Time             `json:"created_at"`
}

// AlertFilter narrows fraud alert listings.
type AlertFilter struct {
	Reviewed *bool
	Limit    int
}

// Stats summarizes the audit log for the admin dashboard.
type Stats struct {
	TotalOrders      int64
	SuspiciousOrders int64
	UnreviewedAlerts int64
}

// DetectionRate is the share of processed orders flagged as suspicious, in percent.
func (s Stats) DetectionRate() float64 {
	if s.TotalOrders == 0 {
		return 0
	}
	return float64(s.SuspiciousOrders) / float64(s.TotalOrders) * 100
}

// AuditRepository persists risk pipeline outcomes.
type AuditRepository interface {
	// SaveProcessed stores the audit record and, when alert is non-nil, the
	// fraud alert in a single unit of work. Audit records are immutable: a
	// second save for the same order returns ErrAlreadyProcessed.
	SaveProcessed(ctx context.Context, record AuditRecord, alert *FraudAlert) error
	GetByOrderID(ctx context.Context, orderID string) (*AuditRecord, error)
	Recent(ctx context.Context, limit int) ([]AuditRecord, error)
	Stats(ctx context.Context) (Stats, error)
	ListFraudAlerts(ctx context.Context, filter AlertFilter) ([]FraudAlert, error)
}
