// Package fraud scores orders for risk. Scoring is pure: the same order and
// Config always produce the same FraudCheckResult.
package fraud

import (
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/shopspring/decimal"
)

const (
	DefaultSuspiciousThreshold = 50.0
	DefaultHighRiskThreshold   = 70.0

	maxScore = 100.0
)

var (
	highValueLimit       = decimal.NewFromInt(10_000_000)
	newCustomerLimit     = decimal.NewFromInt(5_000_000)
	codLimit             = decimal.NewFromInt(3_000_000)
	bulkQuantityLimit    = 10
	electronicsCategory  = "ELECTRONICS"
	electronicsItemLimit = 3
	lateNightEndHour     = 5
)

var ErrInvalidConfig = errors.New("invalid fraud configuration")

// Config is loaded once and treated as immutable while scoring.
type Config struct {
	Enabled             bool
	SuspiciousThreshold float64
	HighRiskThreshold   float64
	// Location is the zone used for the late-night rule. Nil keeps the
	// wall clock carried by the order timestamp.
	Location *time.Location
}

// DefaultConfig enables scoring with the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		SuspiciousThreshold: DefaultSuspiciousThreshold,
		HighRiskThreshold:   DefaultHighRiskThreshold,
	}
}

func (c Config) Validate() error {
	if c.SuspiciousThreshold < 0 || c.SuspiciousThreshold > maxScore {
		return fmt.Errorf("%w: suspicious threshold %.1f out of range", ErrInvalidConfig, c.SuspiciousThreshold)
	}
	if c.HighRiskThreshold < 0 || c.HighRiskThreshold > maxScore {
		return fmt.Errorf("%w: high risk threshold %.1f out of range", ErrInvalidConfig, c.HighRiskThreshold)
	}
	if c.SuspiciousThreshold > c.HighRiskThreshold {
		return fmt.Errorf("%w: suspicious threshold above high risk threshold", ErrInvalidConfig)
	}
	return nil
}

// rule is one additive scoring condition. Rules never short-circuit each other.
type rule struct {
	flag   string
	weight float64
	match  func(order domain.Order, grandTotal decimal.Decimal) bool
}

// Scorer evaluates the rule table against an order.
type Scorer struct {
	cfg   Config
	rules []rule
}

// NewScorer validates cfg and builds the rule table.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scorer{cfg: cfg}
	s.rules = []rule{
		{domain.FlagHighValueOrder, 15, func(_ domain.Order, total decimal.Decimal) bool {
			return total.GreaterThan(highValueLimit)
		}},
		{domain.FlagNewCustomerHighValue, 20, func(o domain.Order, total decimal.Decimal) bool {
			return o.Customer.IsNew() && total.GreaterThan(newCustomerLimit)
		}},
		{domain.FlagUnverifiedCustomer, 10, func(o domain.Order, _ decimal.Decimal) bool {
			return !o.Customer.IsVerified
		}},
		{domain.FlagBulkOrder, 15, func(o domain.Order, _ decimal.Decimal) bool {
			for _, item := range o.Items {
				if item.Quantity > bulkQuantityLimit {
					return true
				}
			}
			return false
		}},
		{domain.FlagLateNightOrder, 10, func(o domain.Order, _ decimal.Decimal) bool {
			return s.isLateNight(o.CreatedAt)
		}},
		{domain.FlagHighValueCOD, 25, func(o domain.Order, total decimal.Decimal) bool {
			return o.Payment.Method == domain.PaymentCOD && total.GreaterThan(codLimit)
		}},
		{domain.FlagMultipleElectronics, 15, func(o domain.Order, _ decimal.Decimal) bool {
			count := 0
			for _, item := range o.Items {
				if item.IsCategory(electronicsCategory) {
					count++
				}
			}
			return count >= electronicsItemLimit
		}},
	}
	return s, nil
}

// Score runs every rule and returns the banded result.
func (s *Scorer) Score(order domain.Order) domain.FraudCheckResult {
	if !s.cfg.Enabled {
		return domain.FraudCheckResult{
			OrderID:        order.OrderID,
			FraudScore:     0,
			IsSuspicious:   false,
			RiskLevel:      domain.RiskLow,
			Flags:          []string{},
			Recommendation: domain.RecommendApprove,
		}
	}

	grandTotal := order.GrandTotal()
	score := 0.0
	flags := make([]string, 0, len(s.rules))
	for _, r := range s.rules {
		if r.match(order, grandTotal) {
			score += r.weight
			flags = append(flags, r.flag)
		}
	}
	score = clamp(score)

	return domain.FraudCheckResult{
		OrderID:        order.OrderID,
		FraudScore:     score,
		IsSuspicious:   score >= s.cfg.SuspiciousThreshold,
		RiskLevel:      domain.RiskLevelFor(score),
		Flags:          flags,
		Recommendation: s.recommend(score),
	}
}

func (s *Scorer) recommend(score float64) domain.Recommendation {
	switch {
	case score >= s.cfg.HighRiskThreshold:
		return domain.RecommendReview
	case score >= s.cfg.SuspiciousThreshold:
		return domain.RecommendApproveWithMonitoring
	default:
		return domain.RecommendApprove
	}
}

// isLateNight covers [00:00, 05:00).
func (s *Scorer) isLateNight(createdAt time.Time) bool {
	if createdAt.IsZero() {
		return false
	}
	if s.cfg.Location != nil {
		createdAt = createdAt.In(s.cfg.Location)
	}
	return createdAt.Hour() < lateNightEndHour
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}
