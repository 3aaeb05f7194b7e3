// Package payment holds a simulated gateway used in place of a real payment
// provider.
package payment

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/shopspring/decimal"
)

const (
	DefaultCardSuccessRate    = 0.95
	DefaultEWalletSuccessRate = 0.98
)

type Rates struct {
	Card    float64
	EWallet float64
}

func DefaultRates() Rates {
	return Rates{Card: DefaultCardSuccessRate, EWallet: DefaultEWalletSuccessRate}
}

// SimulatedAuthorizer approves COD and bank transfers outright and approves
// card and e-wallet payments with a fixed probability.
type SimulatedAuthorizer struct {
	rates  Rates
	logger *slog.Logger

	mu   sync.Mutex
	roll func() float64
}

// NewSimulatedAuthorizer uses roll as the random source; nil uses math/rand/v2.
func NewSimulatedAuthorizer(rates Rates, roll func() float64, logger *slog.Logger) *SimulatedAuthorizer {
	if roll == nil {
		roll = rand.Float64
	}
	return &SimulatedAuthorizer{rates: rates, roll: roll, logger: logger}
}

func (a *SimulatedAuthorizer) Authorize(ctx context.Context, method domain.PaymentMethod, amount decimal.Decimal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var approved bool
	switch method {
	case domain.PaymentCOD, domain.PaymentBankTransfer:
		approved = true
	case domain.PaymentCreditCard, domain.PaymentDebitCard:
		approved = a.draw() < a.rates.Card
	case domain.PaymentEWallet:
		approved = a.draw() < a.rates.EWallet
	default:
		a.logger.WarnContext(ctx, "unknown payment method", "payment_method", method)
		return false, nil
	}

	a.logger.InfoContext(ctx, "payment simulated",
		"payment_method", method,
		"amount", amount.String(),
		"approved", approved,
	)
	return approved, nil
}

func (a *SimulatedAuthorizer) draw() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.roll()
}
