package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the settlement currency. IDR has no minor unit.
const DefaultCurrency = "IDR"

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds half-up to whole currency units.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(0)
}

// OrderItem is a single cart line.
type OrderItem struct {
	ProductID       string          `json:"product_id"`
	ProductName     string          `json:"product_name"`
	SKU             string          `json:"sku,omitempty"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	WeightGrams     *int            `json:"weight_grams,omitempty"`
	Category        string          `json:"category,omitempty"`
}

// Subtotal is unit price times quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// DiscountAmount is subtotal * discountPercent / 100.
func (i OrderItem) DiscountAmount() decimal.Decimal {
	return i.Subtotal().Mul(i.DiscountPercent).Shift(-2)
}

// TaxAmount applies the tax percentage after the discount.
func (i OrderItem) TaxAmount() decimal.Decimal {
	return i.Subtotal().Sub(i.DiscountAmount()).Mul(i.TaxPercent).Shift(-2)
}

// TotalPrice is subtotal - discount + tax.
func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.Subtotal().Sub(i.DiscountAmount()).Add(i.TaxAmount())
}

// IsCategory compares the item category case-insensitively.
func (i OrderItem) IsCategory(category string) bool {
	return strings.EqualFold(i.Category, category)
}

// Validate enforces quantity >= 1, a positive unit price, a discount within
// 0..100 and non-negative tax and weight.
func (i OrderItem) Validate() error {
	if i.Quantity < 1 {
		return fmt.Errorf("%w: quantity for %s must be at least 1", ErrValidation, i.ProductID)
	}
	if i.UnitPrice.Sign() <= 0 {
		return fmt.Errorf("%w: unit_price for %s must be positive", ErrValidation, i.ProductID)
	}
	if i.DiscountPercent.LessThan(decimal.Zero) || i.DiscountPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: discount_percent for %s out of range", ErrValidation, i.ProductID)
	}
	if i.TaxPercent.IsNegative() {
		return fmt.Errorf("%w: tax_percent for %s must not be negative", ErrValidation, i.ProductID)
	}
	if i.WeightGrams != nil && *i.WeightGrams < 0 {
		return fmt.Errorf("%w: weight_grams for %s must not be negative", ErrValidation, i.ProductID)
	}
	return nil
}

func (i OrderItem) clone() OrderItem {
	if i.WeightGrams != nil {
		weight := *i.WeightGrams
		i.WeightGrams = &weight
	}
	return i
}

// PaymentMethod enumerates the supported tender types.
type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentDebitCard    PaymentMethod = "DEBIT_CARD"
	PaymentCOD          PaymentMethod = "COD"
	PaymentEWallet      PaymentMethod = "E_WALLET"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Valid reports whether the method is one of the known constants.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCreditCard, PaymentDebitCard, PaymentCOD, PaymentEWallet, PaymentBankTransfer:
		return true
	default:
		return false
	}
}

// Payment carries the tender for an order.
type Payment struct {
	Method         PaymentMethod   `json:"method"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	PaymentGateway string          `json:"payment_gateway,omitempty"`
	CardLastFour   string          `json:"card_last_four,omitempty"`
	IsPaid         bool            `json:"is_paid"`
}
