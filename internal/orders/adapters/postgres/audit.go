package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const defaultLimit = 20

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// SaveProcessed writes the audit record and optional alert in one transaction.
// An existing row for the order is left untouched and no alert is added.
func (r *AuditRepository) SaveProcessed(ctx context.Context, record ports.AuditRecord, alert *ports.FraudAlert) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin audit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO order_audit_log (
			id, order_id, customer_id, customer_name, customer_email, order_status,
			total_items, subtotal, shipping_cost, voucher_discount, grand_total,
			payment_method, transaction_id, is_paid,
			shipping_city, shipping_province, shipping_country,
			fraud_score, is_suspicious, risk_level, recommendation, flags,
			source, order_data, created_at, processed_at
		)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8::numeric, $9::numeric, $10::numeric, $11::numeric,
			$12, $13, $14,
			$15, $16, $17,
			$18, $19, $20, $21, $22,
			$23, $24, $25, $26
		)
		ON CONFLICT (order_id) DO NOTHING
	`

	var createdAt any
	if !record.CreatedAt.IsZero() {
		createdAt = record.CreatedAt
	}

	tag, err := tx.Exec(ctx, query,
		record.ID,
		record.OrderID,
		record.CustomerID,
		record.CustomerName,
		record.CustomerEmail,
		record.Status,
		record.TotalItems,
		record.Subtotal.String(),
		record.ShippingCost.String(),
		record.VoucherDiscount.String(),
		record.GrandTotal.String(),
		record.PaymentMethod,
		record.TransactionID,
		record.IsPaid,
		record.ShippingCity,
		record.ShippingProvince,
		record.ShippingCountry,
		record.FraudScore,
		record.IsSuspicious,
		record.RiskLevel,
		record.Recommendation,
		nonNil(record.Flags),
		record.Source,
		record.Snapshot,
		createdAt,
		record.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ports.ErrAlreadyProcessed, record.OrderID)
	}

	if alert != nil {
		alertQuery := `
			INSERT INTO fraud_alerts (id, order_id, customer_id, fraud_score, risk_level, flags, recommendation, reviewed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`
		_, err = tx.Exec(ctx, alertQuery,
			alert.ID,
			alert.OrderID,
			alert.CustomerID,
			alert.FraudScore,
			alert.RiskLevel,
			nonNil(alert.Flags),
			alert.Recommendation,
			alert.Reviewed,
			alert.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert fraud alert: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit audit transaction: %w", err)
	}
	return nil
}

const auditColumns = `
	id::text, order_id, customer_id, customer_name, customer_email, order_status,
	total_items, subtotal::text, shipping_cost::text, voucher_discount::text, grand_total::text,
	payment_method, transaction_id, is_paid,
	shipping_city, shipping_province, shipping_country,
	fraud_score, is_suspicious, risk_level, recommendation, flags,
	source, order_data, COALESCE(created_at, processed_at), processed_at
`

func (r *AuditRepository) GetByOrderID(ctx context.Context, orderID string) (*ports.AuditRecord, error) {
	query := `SELECT ` + auditColumns + ` FROM order_audit_log WHERE order_id = $1`

	record, err := scanAudit(r.pool.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select audit record: %w", err)
	}
	return &record, nil
}

func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]ports.AuditRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	query := `SELECT ` + auditColumns + ` FROM order_audit_log ORDER BY processed_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit records: %w", err)
	}
	defer rows.Close()

	records := []ports.AuditRecord{}
	for rows.Next() {
		record, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

func (r *AuditRepository) Stats(ctx context.Context) (ports.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM order_audit_log),
			(SELECT COUNT(*) FROM order_audit_log WHERE is_suspicious),
			(SELECT COUNT(*) FROM fraud_alerts WHERE NOT reviewed)
	`

	var stats ports.Stats
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.TotalOrders, &stats.SuspiciousOrders, &stats.UnreviewedAlerts); err != nil {
		return ports.Stats{}, fmt.Errorf("select audit stats: %w", err)
	}
	return stats, nil
}

func (r *AuditRepository) ListFraudAlerts(ctx context.Context, filter ports.AlertFilter) ([]ports.FraudAlert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	query := `
		SELECT id::text, order_id, customer_id, fraud_score, risk_level, flags, recommendation, reviewed, created_at
		FROM fraud_alerts
		WHERE ($1::boolean IS NULL OR reviewed = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, filter.Reviewed, limit)
	if err != nil {
		return nil, fmt.Errorf("query fraud alerts: %w", err)
	}
	defer rows.Close()

	alerts := []ports.FraudAlert{}
	for rows.Next() {
		var alert ports.FraudAlert
		if err := rows.Scan(
			&alert.ID,
			&alert.OrderID,
			&alert.CustomerID,
			&alert.FraudScore,
			&alert.RiskLevel,
			&alert.Flags,
			&alert.Recommendation,
			&alert.Reviewed,
			&alert.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan fraud alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fraud alerts: %w", err)
	}
	return alerts, nil
}

func scanAudit(row pgx.Row) (ports.AuditRecord, error) {
	var (
		record                                  ports.AuditRecord
		subtotal, shipping, voucher, grandTotal string
	)
	err := row.Scan(
		&record.ID,
		&record.OrderID,
		&record.CustomerID,
		&record.CustomerName,
		&record.CustomerEmail,
		&record.Status,
		&record.TotalItems,
		&subtotal,
		&shipping,
		&voucher,
		&grandTotal,
		&record.PaymentMethod,
		&record.TransactionID,
		&record.IsPaid,
		&record.ShippingCity,
		&record.ShippingProvince,
		&record.ShippingCountry,
		&record.FraudScore,
		&record.IsSuspicious,
		&record.RiskLevel,
		&record.Recommendation,
		&record.Flags,
		&record.Source,
		&record.Snapshot,
		&record.CreatedAt,
		&record.ProcessedAt,
	)
	if err != nil {
		return ports.AuditRecord{}, err
	}

	amounts := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{subtotal, &record.Subtotal},
		{shipping, &record.ShippingCost},
		{voucher, &record.VoucherDiscount},
		{grandTotal, &record.GrandTotal},
	}
	for _, amount := range amounts {
		value, err := decimal.NewFromString(amount.raw)
		if err != nil {
			return ports.AuditRecord{}, fmt.Errorf("parse amount %q: %w", amount.raw, err)
		}
		*amount.dst = value
	}
	return record, nil
}

func nonNil(flags []string) []string {
	if flags == nil {
		return []string{}
	}
	return flags
}
