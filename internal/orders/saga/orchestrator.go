package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Status is the final state of a saga execution.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusAborted   Status = "ABORTED"
	StatusHalted    Status = "HALTED"
	StatusCanceled  Status = "CANCELED"
)

// StageRecord is one entry in the execution trail.
type StageRecord struct {
	Stage    string        `json:"stage"`
	Outcome  Outcome       `json:"outcome"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Execution summarizes a saga run. Order is the last state adopted from a
// completed stage.
type Execution struct {
	SagaID      string         `json:"saga_id"`
	Status      Status         `json:"status"`
	Order       domain.Order   `json:"order"`
	Outputs     map[string]any `json:"outputs"`
	FailedStage string         `json:"failed_stage,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Trail       []StageRecord  `json:"trail"`
}

// Succeeded reports whether every stage ran to completion.
func (e Execution) Succeeded() bool {
	return e.Status == StatusCompleted
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithSagaLog appends every stage transition to log. Append failures are
// logged and never affect the saga.
func WithSagaLog(log ports.SagaLog) Option {
	return func(o *Orchestrator) {
		o.sagaLog = log
	}
}

// Orchestrator runs steps strictly in order. It holds no per-run state and
// may be shared by concurrent executions.
type Orchestrator struct {
	steps   []Step
	logger  *slog.Logger
	metrics *metrics.Metrics
	sagaLog ports.SagaLog
}

func NewOrchestrator(steps []Step, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		steps:  steps,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stages lists stage names in execution order.
func (o *Orchestrator) Stages() []string {
	names := make([]string, len(o.steps))
	for i, step := range o.steps {
		names[i] = step.Stage.Name()
	}
	return names
}

// Run drives order through every step. Cancellation is observed between
// stages; a stage that has started is allowed to finish.
func (o *Orchestrator) Run(ctx context.Context, order domain.Order) Execution {
	exec := Execution{
		SagaID:  uuid.NewString(),
		Status:  StatusCompleted,
		Order:   order.Clone(),
		Outputs: make(map[string]any),
		Trail:   make([]StageRecord, 0, len(o.steps)),
	}

	for _, step := range o.steps {
		name := step.Stage.Name()

		if err := ctx.Err(); err != nil {
			exec.Status = StatusCanceled
			exec.FailedStage = name
			exec.Reason = err.Error()
			o.logger.WarnContext(ctx, "saga canceled",
				"saga_id", exec.SagaID,
				"stage", name,
				"error", err,
			)
			return exec
		}

		result, duration := o.runStage(ctx, step.Stage, exec.Order)
		exec.Trail = append(exec.Trail, StageRecord{
			Stage:    name,
			Outcome:  result.Outcome,
			Reason:   result.Reason,
			Duration: duration,
		})
		o.appendLog(ctx, exec, name, result)

		if result.Outcome != OutcomeComplete {
			exec.Status = StatusAborted
			exec.FailedStage = name
			exec.Reason = result.Reason
			o.logger.WarnContext(ctx, "saga aborted",
				"saga_id", exec.SagaID,
				"order_id", exec.Order.OrderID,
				"stage", name,
				"reason", result.Reason,
			)
			return exec
		}

		exec.Order = result.Order
		for key, value := range result.Outputs {
			exec.Outputs[key] = value
		}

		if step.Gate == nil {
			continue
		}
		if halt, status, reason := step.Gate(result); halt {
			exec.Order.Status = status
			exec.Order.UpdatedAt = time.Now().UTC()
			exec.Status = StatusHalted
			exec.FailedStage = name
			exec.Reason = reason
			o.logger.InfoContext(ctx, "saga halted",
				"saga_id", exec.SagaID,
				"order_id", exec.Order.OrderID,
				"stage", name,
				"reason", reason,
			)
			return exec
		}
	}

	o.logger.InfoContext(ctx, "saga completed",
		"saga_id", exec.SagaID,
		"order_id", exec.Order.OrderID,
	)
	return exec
}

// runStage executes a stage on a private copy, converting errors and panics
// into ABORT.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, order domain.Order) (result Result, duration time.Duration) {
	ctx, span := telemetry.StartSpan(ctx, "Saga."+stage.Name())
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("stage %s panicked: %v", stage.Name(), r)
			telemetry.RecordSpanError(span, err)
			result = Abort(err.Error())
		}
		duration = time.Since(start)
		if o.metrics != nil {
			o.metrics.RecordStage(ctx, stage.Name(), string(result.Outcome), duration.Seconds())
		}
		telemetry.AddSpanAttributes(span,
			attribute.String("saga.stage", stage.Name()),
			attribute.String("saga.outcome", string(result.Outcome)),
		)
	}()

	res, err := stage.Execute(ctx, order.Clone())
	if err != nil {
		telemetry.RecordSpanError(span, err)
		return Abort(err.Error()), 0
	}
	if res.Outcome == "" {
		res.Outcome = OutcomeComplete
	}
	if res.Outcome == OutcomeComplete {
		telemetry.SetSpanSuccess(span)
	}
	return res, 0
}

func (o *Orchestrator) appendLog(ctx context.Context, exec Execution, stage string, result Result) {
	if o.sagaLog == nil {
		return
	}
	orderID := exec.Order.OrderID
	if result.Outcome == OutcomeComplete && result.Order.OrderID != "" {
		orderID = result.Order.OrderID
	}
	entry := ports.SagaLogEntry{
		SagaID:  exec.SagaID,
		OrderID: orderID,
		Stage:   stage,
		Outcome: string(result.Outcome),
		Reason:  result.Reason,
		TraceID: telemetry.TraceID(ctx),
		SpanID:  telemetry.SpanID(ctx),
	}
	if err := o.sagaLog.Append(ctx, entry); err != nil {
		o.logger.WarnContext(ctx, "failed to append saga log",
			"saga_id", exec.SagaID,
			"stage", stage,
			"error", err,
		)
	}
}
