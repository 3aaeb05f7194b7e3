// Package saga runs an ordered list of stages over a single order.
package saga

import (
	"context"

	"github.com/dejobratic/orderflow/internal/orders/domain"
)

// Outcome is the verdict a stage reports back to the orchestrator.
type Outcome string

const (
	OutcomeComplete Outcome = "COMPLETE"
	OutcomeAbort    Outcome = "ABORT"
)

// Result is what a stage hands back. Order is only adopted on COMPLETE.
type Result struct {
	Order   domain.Order
	Outputs map[string]any
	Outcome Outcome
	Reason  string
}

// Complete reports success with the updated order.
func Complete(order domain.Order, outputs map[string]any) Result {
	return Result{Order: order, Outputs: outputs, Outcome: OutcomeComplete}
}

// Abort reports a terminal failure. The caller's order is left untouched.
func Abort(reason string) Result {
	return Result{Outcome: OutcomeAbort, Reason: reason}
}

// Stage is one unit of checkout work. Implementations receive their own copy
// of the order and must report ABORT rather than leave it half-updated.
type Stage interface {
	Name() string
	Execute(ctx context.Context, order domain.Order) (Result, error)
}

// Gate inspects a completed stage and may stop the saga on a business
// outcome. When halt is true the order moves to status.
type Gate func(result Result) (halt bool, status domain.OrderStatus, reason string)

// Step pairs a stage with an optional gate.
type Step struct {
	Stage Stage
	Gate  Gate
}
