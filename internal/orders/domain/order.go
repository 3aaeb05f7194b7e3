package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus captures the lifecycle of an order across checkout and stream processing.
type OrderStatus string

const (
	StatusPending           OrderStatus = "PENDING"
	StatusPaymentProcessing OrderStatus = "PAYMENT_PROCESSING"
	StatusPaymentConfirmed  OrderStatus = "PAYMENT_CONFIRMED"
	StatusPaymentFailed     OrderStatus = "PAYMENT_FAILED"
	StatusValidated         OrderStatus = "VALIDATED"
	StatusProcessing        OrderStatus = "PROCESSING"
	StatusShipped           OrderStatus = "SHIPPED"
	StatusDelivered         OrderStatus = "DELIVERED"
	StatusCancelled         OrderStatus = "CANCELLED"
	StatusRefunded          OrderStatus = "REFUNDED"
	StatusFraudSuspected    OrderStatus = "FRAUD_SUSPECTED"
)

const (
	// DefaultSource is applied when an order arrives without a channel.
	DefaultSource = "WEB"

	// SuspiciousScore is the score above which a scored order reports IsSuspicious.
	SuspiciousScore = 70.0
)

// ErrValidation marks malformed or incomplete orders.
var ErrValidation = errors.New("invalid order")

// Order is the aggregate moved through the checkout saga and the risk pipeline.
// Derived amounts are methods and are never stored on the struct.
type Order struct {
	OrderID         string          `json:"order_id"`
	Customer        Customer        `json:"customer"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress Address         `json:"shipping_address"`
	Payment         Payment         `json:"payment"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ShippingCost    decimal.Decimal `json:"shipping_cost"`
	VoucherCode     string          `json:"voucher_code,omitempty"`
	VoucherDiscount decimal.Decimal `json:"voucher_discount"`
	Notes           string          `json:"notes,omitempty"`
	FraudScore      *float64        `json:"fraud_score,omitempty"`
	Source          string          `json:"source"`
}

// TotalItems is the sum of item quantities.
func (o Order) TotalItems() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// Subtotal is the sum of item total prices.
func (o Order) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range o.Items {
		subtotal = subtotal.Add(item.TotalPrice())
	}
	return subtotal
}

// GrandTotal is subtotal + shipping - voucher discount, recomputed on every call.
func (o Order) GrandTotal() decimal.Decimal {
	return o.Subtotal().Add(o.ShippingCost).Sub(o.VoucherDiscount)
}

// IsSuspicious reports whether the recorded fraud score is above SuspiciousScore.
// The risk pipeline branches on FraudCheckResult.IsSuspicious instead.
func (o Order) IsSuspicious() bool {
	return o.FraudScore != nil && *o.FraudScore > SuspiciousScore
}

// IsFinalState indicates whether the order can no longer move.
func (o Order) IsFinalState() bool {
	switch o.Status {
	case StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// Validate checks the minimum an order needs before it is scored.
func (o Order) Validate() error {
	if strings.TrimSpace(o.OrderID) == "" {
		return fmt.Errorf("%w: order_id is required", ErrValidation)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: order %s has no items", ErrValidation, o.OrderID)
	}
	if total := o.GrandTotal(); total.Sign() <= 0 {
		return fmt.Errorf("%w: order %s has non-positive grand total %s", ErrValidation, o.OrderID, total)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing items or pointers.
func (o Order) Clone() Order {
	clone := o
	if o.Items != nil {
		clone.Items = make([]OrderItem, len(o.Items))
		for i, item := range o.Items {
			clone.Items[i] = item.clone()
		}
	}
	if o.FraudScore != nil {
		score := *o.FraudScore
		clone.FraudScore = &score
	}
	return clone
}

// WithDefaults fills the zero-valued fields that carry a documented default.
func (o Order) WithDefaults() Order {
	if o.Status == "" {
		o.Status = StatusPending
	}
	if strings.TrimSpace(o.Source) == "" {
		o.Source = DefaultSource
	}
	if strings.TrimSpace(o.Payment.Currency) == "" {
		o.Payment.Currency = DefaultCurrency
	}
	return o
}

// Address is the shipping destination of an order.
type Address struct {
	Street         string `json:"street"`
	City           string `json:"city"`
	Province       string `json:"province"`
	PostalCode     string `json:"postal_code"`
	Country        string `json:"country"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

// Customer identifies the buyer. TotalOrders counts prior orders.
type Customer struct {
	CustomerID  string `json:"customer_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	IsVerified  bool   `json:"is_verified"`
	TotalOrders int    `json:"total_orders"`
}

// IsNew reports whether the customer has never ordered before.
func (c Customer) IsNew() bool {
	return c.TotalOrders == 0
}
