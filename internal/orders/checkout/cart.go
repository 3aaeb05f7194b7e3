package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/saga"
	"github.com/shopspring/decimal"
)

// MaxItemQuantity is the largest quantity accepted for a single cart line.
const MaxItemQuantity = 100

// ValidateCart rejects empty carts, oversized lines and unavailable products.
type ValidateCart struct {
	inventory ports.Inventory
	timeout   time.Duration
	logger    *slog.Logger
}

func (s *ValidateCart) Name() string { return StageValidateCart }

func (s *ValidateCart) Execute(ctx context.Context, order domain.Order) (saga.Result, error) {
	if len(order.Items) == 0 {
		return saga.Abort("cart is empty"), nil
	}

	for _, item := range order.Items {
		if item.Quantity > MaxItemQuantity {
			return saga.Abort(fmt.Sprintf("quantity for %s exceeds maximum limit of %d", item.ProductName, MaxItemQuantity)), nil
		}
	}

	for _, item := range order.Items {
		available, err := s.checkAvailability(ctx, item)
		if err != nil {
			return saga.Abort(fmt.Sprintf("stock check for %s failed: %v", item.ProductID, err)), nil
		}
		if !available {
			return saga.Abort(fmt.Sprintf("product %s is out of stock", item.ProductName)), nil
		}
	}

	s.logger.InfoContext(ctx, "cart validated",
		"order_id", order.OrderID,
		"items", len(order.Items),
	)
	return saga.Complete(order, nil), nil
}

func (s *ValidateCart) checkAvailability(ctx context.Context, item domain.OrderItem) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inventory.CheckAvailability(ctx, item)
}

const defaultItemWeightGrams = 500

var (
	shippingRatePerKg = decimal.NewFromInt(10_000)
	gramsPerKg        = decimal.NewFromInt(1_000)
)

// voucherRates maps voucher codes to the fraction of the subtotal they discount.
var voucherRates = map[string]decimal.Decimal{
	"WELCOME10": decimal.RequireFromString("0.10"),
	"SAVE20":    decimal.RequireFromString("0.20"),
	"NEWYEAR":   decimal.RequireFromString("0.15"),
}

// CalculateTotal prices shipping and vouchers and aligns the payment amount
// with the grand total. It never aborts.
type CalculateTotal struct {
	logger *slog.Logger
}

func (s *CalculateTotal) Name() string { return StageCalculateTotal }

func (s *CalculateTotal) Execute(ctx context.Context, order domain.Order) (saga.Result, error) {
	order.ShippingCost = ShippingCost(order.Items)
	if order.VoucherCode != "" {
		order.VoucherDiscount = VoucherDiscount(order.VoucherCode, order.Subtotal())
	}

	grandTotal := order.GrandTotal()
	order.Payment.Amount = grandTotal

	s.logger.InfoContext(ctx, "order total calculated",
		"order_id", order.OrderID,
		"shipping_cost", order.ShippingCost.String(),
		"voucher_discount", order.VoucherDiscount.String(),
		"grand_total", grandTotal.String(),
	)
	return saga.Complete(order, map[string]any{OutputGrandTotal: grandTotal.String()}), nil
}

// ShippingCost charges per kilogram of shipped weight. Weight is rounded
// half-up to two decimals of a kilogram, the cost to whole currency units.
func ShippingCost(items []domain.OrderItem) decimal.Decimal {
	grams := 0
	for _, item := range items {
		weight := defaultItemWeightGrams
		if item.WeightGrams != nil {
			weight = *item.WeightGrams
		}
		grams += weight * item.Quantity
	}
	kilograms := decimal.NewFromInt(int64(grams)).DivRound(gramsPerKg, 2)
	return domain.RoundMoney(shippingRatePerKg.Mul(kilograms))
}

// VoucherDiscount looks up code and applies its rate to subtotal. Unknown
// codes discount nothing.
func VoucherDiscount(code string, subtotal decimal.Decimal) decimal.Decimal {
	rate, ok := voucherRates[code]
	if !ok {
		return decimal.Zero
	}
	return domain.RoundMoney(subtotal.Mul(rate))
}
