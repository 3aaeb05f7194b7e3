package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/orderflow/internal/database"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type ObservableAuditRepository struct {
	repo    ports.AuditRepository
	metrics *database.Metrics
}

func NewObservableAuditRepository(repo ports.AuditRepository, metrics *database.Metrics) *ObservableAuditRepository {
	return &ObservableAuditRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableAuditRepository) SaveProcessed(ctx context.Context, record ports.AuditRecord, alert *ports.FraudAlert) error {
	ctx, span := telemetry.StartSpan(ctx, "AuditRepository.SaveProcessed")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", record.OrderID),
		attribute.Bool("fraud.alert", alert != nil),
		attribute.String("operation", "save_processed"),
	)

	start := time.Now()
	err := r.repo.SaveProcessed(ctx, record, alert)
	return r.finish(ctx, span, "save_processed", start, err)
}

func (r *ObservableAuditRepository) GetByOrderID(ctx context.Context, orderID string) (*ports.AuditRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "AuditRepository.GetByOrderID")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", orderID),
		attribute.String("operation", "get_by_order_id"),
	)

	start := time.Now()
	record, err := r.repo.GetByOrderID(ctx, orderID)
	return record, r.finish(ctx, span, "get_audit_record", start, err)
}

func (r *ObservableAuditRepository) Recent(ctx context.Context, limit int) ([]ports.AuditRecord, error) {
	ctx, span := telemetry.StartSpan(ctx, "AuditRepository.Recent")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.Int("query.limit", limit))

	start := time.Now()
	records, err := r.repo.Recent(ctx, limit)
	return records, r.finish(ctx, span, "recent_audit_records", start, err)
}

func (r *ObservableAuditRepository) Stats(ctx context.Context) (ports.Stats, error) {
	ctx, span := telemetry.StartSpan(ctx, "AuditRepository.Stats")
	defer span.End()

	start := time.Now()
	stats, err := r.repo.Stats(ctx)
	return stats, r.finish(ctx, span, "audit_stats", start, err)
}

func (r *ObservableAuditRepository) ListFraudAlerts(ctx context.Context, filter ports.AlertFilter) ([]ports.FraudAlert, error) {
	ctx, span := telemetry.StartSpan(ctx, "AuditRepository.ListFraudAlerts")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.Int("query.limit", filter.Limit))
	if filter.Reviewed != nil {
		telemetry.AddSpanAttributes(span, attribute.Bool("query.reviewed", *filter.Reviewed))
	}

	start := time.Now()
	alerts, err := r.repo.ListFraudAlerts(ctx, filter)
	return alerts, r.finish(ctx, span, "list_fraud_alerts", start, err)
}

func (r *ObservableAuditRepository) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error) error {
	failed := err != nil && !errors.Is(err, ports.ErrNotFound) && !errors.Is(err, ports.ErrAlreadyProcessed)
	r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds(), failed)
	return telemetry.EndSpanWith(span, err)
}
