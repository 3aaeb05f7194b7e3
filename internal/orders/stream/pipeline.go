// Package stream re-validates, enriches and fraud-scores orders read from the
// raw orders topic.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/fraud"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ErrSerialization marks payloads that are not a valid order document.
var ErrSerialization = errors.New("malformed order message")

const (
	DefaultSourceService = "kafka-stream-processor"
	DefaultEventVersion  = "1.0"
)

// Outcome is the fate of one message.
type Outcome string

const (
	// OutcomeEmitted means the order was persisted and Event should be sent downstream.
	OutcomeEmitted Outcome = "EMITTED"
	// OutcomeRejected means the order failed validation.
	OutcomeRejected Outcome = "REJECTED"
	// OutcomeDropped means the message could not be processed. Nothing was persisted.
	OutcomeDropped Outcome = "DROPPED"
	// OutcomeDuplicate means the order already has an audit record. Nothing
	// was persisted, alerted or emitted.
	OutcomeDuplicate Outcome = "DUPLICATE"
)

// Result describes what Handle did with a message.
type Result struct {
	Outcome Outcome
	Order   domain.Order
	Fraud   *domain.FraudCheckResult
	// Event is the serialized ORDER_VALIDATED event, set only when emitted.
	Event  []byte
	Reason string
}

type Config struct {
	// AlertTopic receives a FraudCheckResult for every suspicious order.
	AlertTopic    string
	SourceService string
	EventVersion  string
	// Location interprets created_at and updated_at values that carry no UTC
	// offset. Nil means UTC.
	Location *time.Location
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// Pipeline holds no per-message state; Handle may run concurrently.
type Pipeline struct {
	cfg       Config
	scorer    *fraud.Scorer
	audit     ports.AuditRepository
	publisher ports.Publisher
	enricher  *Enricher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
}

func NewPipeline(cfg Config, scorer *fraud.Scorer, audit ports.AuditRepository, publisher ports.Publisher, opts ...Option) *Pipeline {
	if cfg.SourceService == "" {
		cfg.SourceService = DefaultSourceService
	}
	if cfg.EventVersion == "" {
		cfg.EventVersion = DefaultEventVersion
	}
	p := &Pipeline{
		cfg:       cfg,
		scorer:    scorer,
		audit:     audit,
		publisher: publisher,
		logger:    slog.Default(),
		clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	p.enricher = NewEnricher(p.clock, p.logger, p.metrics)
	return p
}

// Handle processes one raw order message. It never panics and never returns
// an error: failures are reported through the Result.
func (p *Pipeline) Handle(ctx context.Context, msg []byte) (result Result) {
	ctx, span := telemetry.StartSpan(ctx, "RiskPipeline.Handle")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("risk pipeline panicked: %v", r)
			telemetry.RecordSpanError(span, err)
			p.logger.ErrorContext(ctx, "dropping message", "error", err)
			result = Result{Outcome: OutcomeDropped, Reason: err.Error()}
		}
		if p.metrics != nil {
			p.metrics.RecordStreamMessage(ctx, string(result.Outcome))
		}
		telemetry.AddSpanAttributes(span,
			attribute.String("order.id", result.Order.OrderID),
			attribute.String("stream.outcome", string(result.Outcome)),
		)
	}()

	order, err := decode(msg, p.cfg.Location)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		p.logger.ErrorContext(ctx, "dropping undecodable message", "error", err)
		return Result{Outcome: OutcomeDropped, Reason: err.Error()}
	}

	if err := order.Validate(); err != nil {
		p.logger.WarnContext(ctx, "rejecting invalid order",
			"order_id", order.OrderID,
			"error", err,
		)
		return Result{Outcome: OutcomeRejected, Order: order, Reason: err.Error()}
	}

	order = p.enricher.Enrich(ctx, order)

	check := p.scorer.Score(order)
	score := check.FraudScore
	order.FraudScore = &score
	if p.metrics != nil {
		p.metrics.RecordFraudScore(ctx, check.FraudScore, check.IsSuspicious, string(check.RiskLevel))
	}

	var alert *ports.FraudAlert
	if check.IsSuspicious {
		order.Status = domain.StatusFraudSuspected
		alert = p.newAlert(order, check)
	} else {
		order.Status = domain.StatusValidated
	}

	record, event, err := p.build(ctx, order, check)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		p.logger.ErrorContext(ctx, "dropping order", "order_id", order.OrderID, "error", err)
		return Result{Outcome: OutcomeDropped, Order: order, Fraud: &check, Reason: err.Error()}
	}

	err = p.audit.SaveProcessed(ctx, record, alert)
	if errors.Is(err, ports.ErrAlreadyProcessed) {
		p.logger.InfoContext(ctx, "skipping already processed order", "order_id", order.OrderID)
		telemetry.SetSpanSuccess(span)
		return Result{Outcome: OutcomeDuplicate, Order: order, Fraud: &check, Reason: err.Error()}
	}
	if err != nil {
		telemetry.RecordSpanError(span, err)
		p.logger.ErrorContext(ctx, "failed to persist order audit",
			"order_id", order.OrderID,
			"error", err,
		)
		return Result{Outcome: OutcomeDropped, Order: order, Fraud: &check, Reason: err.Error()}
	}

	if alert != nil {
		p.logger.WarnContext(ctx, "suspicious order detected",
			"order_id", order.OrderID,
			"fraud_score", check.FraudScore,
			"risk_level", check.RiskLevel,
			"flags", check.Flags,
		)
		p.publishAlert(ctx, check)
	}

	p.logger.InfoContext(ctx, "order processed",
		"order_id", order.OrderID,
		"status", order.Status,
		"fraud_score", check.FraudScore,
	)
	telemetry.SetSpanSuccess(span)
	return Result{Outcome: OutcomeEmitted, Order: order, Fraud: &check, Event: event}
}

// inboundOrder lets created_at and updated_at be decoded by parseTimestamp
// instead of time.Time, which only accepts RFC 3339.
type inboundOrder struct {
	domain.Order
	CreatedAt *string `json:"created_at"`
	UpdatedAt *string `json:"updated_at"`
}

// localTimestamp is ISO-8601 without an offset, as sent by producers that
// serialize wall-clock times.
const localTimestamp = "2006-01-02T15:04:05.999999999"

func decode(msg []byte, loc *time.Location) (domain.Order, error) {
	if len(msg) == 0 {
		return domain.Order{}, fmt.Errorf("%w: empty payload", ErrSerialization)
	}
	var in inboundOrder
	if err := json.Unmarshal(msg, &in); err != nil {
		return in.Order, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	order := in.Order
	var err error
	if order.CreatedAt, err = parseTimestamp(in.CreatedAt, loc); err != nil {
		return order, fmt.Errorf("%w: created_at: %v", ErrSerialization, err)
	}
	if order.UpdatedAt, err = parseTimestamp(in.UpdatedAt, loc); err != nil {
		return order, fmt.Errorf("%w: updated_at: %v", ErrSerialization, err)
	}
	return order, nil
}

func parseTimestamp(raw *string, loc *time.Location) (time.Time, error) {
	if raw == nil || *raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, *raw); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(localTimestamp, *raw, loc)
}

// build serializes the snapshot and the validated event. It runs before
// anything is persisted.
func (p *Pipeline) build(ctx context.Context, order domain.Order, check domain.FraudCheckResult) (ports.AuditRecord, []byte, error) {
	snapshot, err := json.Marshal(order)
	if err != nil {
		return ports.AuditRecord{}, nil, fmt.Errorf("marshal order snapshot: %w", err)
	}

	event := domain.OrderEvent{
		EventID:       uuid.NewString(),
		EventType:     domain.EventTypeOrderValidated,
		Timestamp:     p.clock(),
		SourceService: p.cfg.SourceService,
		Order:         order,
		Metadata: &domain.EventMetadata{
			CorrelationID: telemetry.TraceID(ctx),
			Version:       p.cfg.EventVersion,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return ports.AuditRecord{}, nil, fmt.Errorf("marshal validated event: %w", err)
	}

	return NewAuditRecord(order, check, snapshot, p.clock()), payload, nil
}

func (p *Pipeline) newAlert(order domain.Order, check domain.FraudCheckResult) *ports.FraudAlert {
	return &ports.FraudAlert{
		ID:             uuid.NewString(),
		OrderID:        order.OrderID,
		CustomerID:     order.Customer.CustomerID,
		FraudScore:     check.FraudScore,
		RiskLevel:      check.RiskLevel,
		Flags:          append([]string(nil), check.Flags...),
		Recommendation: check.Recommendation,
		Reviewed:       false,
		CreatedAt:      p.clock(),
	}
}

func (p *Pipeline) publishAlert(ctx context.Context, check domain.FraudCheckResult) {
	if p.publisher == nil || p.cfg.AlertTopic == "" {
		return
	}
	payload, err := json.Marshal(check)
	if err == nil {
		err = p.publisher.Publish(ctx, p.cfg.AlertTopic, check.OrderID, payload)
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to publish fraud alert",
			"order_id", check.OrderID,
			"topic", p.cfg.AlertTopic,
			"error", err,
		)
	}
}

// NewAuditRecord flattens a scored order into its audit representation.
func NewAuditRecord(order domain.Order, check domain.FraudCheckResult, snapshot []byte, processedAt time.Time) ports.AuditRecord {
	return ports.AuditRecord{
		ID:               uuid.NewString(),
		OrderID:          order.OrderID,
		CustomerID:       order.Customer.CustomerID,
		CustomerName:     order.Customer.Name,
		CustomerEmail:    order.Customer.Email,
		Status:           order.Status,
		TotalItems:       order.TotalItems(),
		Subtotal:         order.Subtotal(),
		ShippingCost:     order.ShippingCost,
		VoucherDiscount:  order.VoucherDiscount,
		GrandTotal:       order.GrandTotal(),
		PaymentMethod:    order.Payment.Method,
		TransactionID:    order.Payment.TransactionID,
		IsPaid:           order.Payment.IsPaid,
		ShippingCity:     order.ShippingAddress.City,
		ShippingProvince: order.ShippingAddress.Province,
		ShippingCountry:  order.ShippingAddress.Country,
		FraudScore:       check.FraudScore,
		IsSuspicious:     check.IsSuspicious,
		RiskLevel:        check.RiskLevel,
		Recommendation:   check.Recommendation,
		Flags:            append([]string(nil), check.Flags...),
		Source:           order.Source,
		Snapshot:         snapshot,
		CreatedAt:        order.CreatedAt,
		ProcessedAt:      processedAt,
	}
}
