// Package checkout holds the stages that turn a cart into a confirmed order.
package checkout

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/saga"
	"github.com/google/uuid"
)

// Output keys reported by best-effort stages.
const (
	OutputPaymentSuccess   = "payment_success"
	OutputTransactionID    = "transaction_id"
	OutputGrandTotal       = "grand_total"
	OutputNotificationSent = "notification_sent"
	OutputPublished        = "published"
)

const (
	StageValidateCart     = "ValidateCart"
	StageCalculateTotal   = "CalculateTotal"
	StageProcessPayment   = "ProcessPayment"
	StageReserveStock     = "ReserveStock"
	StageCreateOrder      = "CreateOrder"
	StageSendNotification = "SendNotification"
	StagePublishEvent     = "PublishOrderEvent"
)

// DefaultCollaboratorTimeout bounds each external call made by a stage.
const DefaultCollaboratorTimeout = 5 * time.Second

// Dependencies are the collaborators the checkout stages call out to.
type Dependencies struct {
	Inventory ports.Inventory
	Payments  ports.PaymentAuthorizer
	Notifier  ports.Notifier
	Publisher ports.Publisher
	// Topic receives the confirmed order document.
	Topic   string
	Timeout time.Duration
	Logger  *slog.Logger
	Clock   func() time.Time
	// NewID returns a random identifier; order and transaction ids are cut from it.
	NewID func() string
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Timeout <= 0 {
		d.Timeout = DefaultCollaboratorTimeout
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// Stages returns the checkout steps in their fixed order. A declined payment
// halts the saga with status PAYMENT_FAILED.
func Stages(deps Dependencies) []saga.Step {
	deps = deps.withDefaults()
	return []saga.Step{
		{Stage: &ValidateCart{inventory: deps.Inventory, timeout: deps.Timeout, logger: deps.Logger}},
		{Stage: &CalculateTotal{logger: deps.Logger}},
		{Stage: &ProcessPayment{payments: deps.Payments, timeout: deps.Timeout, newID: deps.NewID, logger: deps.Logger}, Gate: paymentDeclined},
		{Stage: &ReserveStock{inventory: deps.Inventory, timeout: deps.Timeout, logger: deps.Logger}},
		{Stage: &CreateOrder{clock: deps.Clock, newID: deps.NewID, logger: deps.Logger}},
		{Stage: &SendNotification{notifier: deps.Notifier, timeout: deps.Timeout, logger: deps.Logger}},
		{Stage: &PublishOrderEvent{publisher: deps.Publisher, topic: deps.Topic, timeout: deps.Timeout, logger: deps.Logger}},
	}
}

// NewSaga builds the checkout orchestrator.
func NewSaga(deps Dependencies, opts ...saga.Option) *saga.Orchestrator {
	return saga.NewOrchestrator(Stages(deps), opts...)
}

func paymentDeclined(result saga.Result) (bool, domain.OrderStatus, string) {
	if ok, _ := result.Outputs[OutputPaymentSuccess].(bool); ok {
		return false, "", ""
	}
	return true, domain.StatusPaymentFailed, "payment was not authorized"
}

// shortID upper-cases the first n hex characters of a random id.
func shortID(newID func() string, n int) string {
	id := strings.ToUpper(strings.ReplaceAll(newID(), "-", ""))
	if len(id) > n {
		id = id[:n]
	}
	return id
}
