package domain

// RiskLevel bands a 0-100 fraud score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskLevelFor maps a score to LOW (<=30), MEDIUM (<=70) or HIGH.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score <= 30:
		return RiskLow
	case score <= 70:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Recommendation is the action suggested to operators for a scored order.
type Recommendation string

const (
	RecommendApprove               Recommendation = "APPROVE"
	RecommendApproveWithMonitoring Recommendation = "APPROVE_WITH_MONITORING"
	RecommendReview                Recommendation = "REVIEW"
)

// Fraud rule flags, listed in evaluation order.
const (
	FlagHighValueOrder       = "HIGH_VALUE_ORDER"
	FlagNewCustomerHighValue = "NEW_CUSTOMER_HIGH_VALUE"
	FlagUnverifiedCustomer   = "UNVERIFIED_CUSTOMER"
	FlagBulkOrder            = "BULK_ORDER"
	FlagLateNightOrder       = "LATE_NIGHT_ORDER"
	FlagHighValueCOD         = "HIGH_VALUE_COD"
	FlagMultipleElectronics  = "MULTIPLE_ELECTRONICS"
)

// FraudCheckResult is produced once per risk pipeline run and never mutated.
type FraudCheckResult struct {
	OrderID        string         `json:"order_id"`
	FraudScore     float64        `json:"fraud_score"`
	IsSuspicious   bool           `json:"is_suspicious"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	Flags          []string       `json:"flags"`
	Recommendation Recommendation `json:"recommendation"`
}

// HasFlag reports whether the named rule contributed to the score.
func (r FraudCheckResult) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
