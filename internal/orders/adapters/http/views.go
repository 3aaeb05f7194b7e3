package http

import (
	"encoding/json"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/shopspring/decimal"
)

type auditView struct {
	OrderID         string                `json:"order_id"`
	CustomerID      string                `json:"customer_id"`
	CustomerName    string                `json:"customer_name"`
	CustomerEmail   string                `json:"customer_email"`
	Status          domain.OrderStatus    `json:"status"`
	TotalItems      int                   `json:"total_items"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	ShippingCost    decimal.Decimal       `json:"shipping_cost"`
	VoucherDiscount decimal.Decimal       `json:"voucher_discount"`
	GrandTotal      decimal.Decimal       `json:"grand_total"`
	PaymentMethod   domain.PaymentMethod  `json:"payment_method"`
	TransactionID   string                `json:"transaction_id,omitempty"`
	IsPaid          bool                  `json:"is_paid"`
	ShippingCity    string                `json:"shipping_city"`
	FraudScore      float64               `json:"fraud_score"`
	IsSuspicious    bool                  `json:"is_suspicious"`
	RiskLevel       domain.RiskLevel      `json:"risk_level"`
	Recommendation  domain.Recommendation `json:"recommendation"`
	Flags           []string              `json:"flags"`
	Source          string                `json:"source"`
	Snapshot        json.RawMessage       `json:"order_data,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	ProcessedAt     time.Time             `json:"processed_at"`
}

func newAuditView(record ports.AuditRecord) auditView {
	flags := record.Flags
	if flags == nil {
		flags = []string{}
	}
	var snapshot json.RawMessage
	if json.Valid(record.Snapshot) {
		snapshot = record.Snapshot
	}
	return auditView{
		OrderID:         record.OrderID,
		CustomerID:      record.CustomerID,
		CustomerName:    record.CustomerName,
		CustomerEmail:   record.CustomerEmail,
		Status:          record.Status,
		TotalItems:      record.TotalItems,
		Subtotal:        record.Subtotal,
		ShippingCost:    record.ShippingCost,
		VoucherDiscount: record.VoucherDiscount,
		GrandTotal:      record.GrandTotal,
		PaymentMethod:   record.PaymentMethod,
		TransactionID:   record.TransactionID,
		IsPaid:          record.IsPaid,
		ShippingCity:    record.ShippingCity,
		FraudScore:      record.FraudScore,
		IsSuspicious:    record.IsSuspicious,
		RiskLevel:       record.RiskLevel,
		Recommendation:  record.Recommendation,
		Flags:           flags,
		Source:          record.Source,
		Snapshot:        snapshot,
		CreatedAt:       record.CreatedAt,
		ProcessedAt:     record.ProcessedAt,
	}
}
