package postgres

import (
	"context"
	"fmt"

	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SagaLog struct {
	pool *pgxpool.Pool
}

func NewSagaLog(pool *pgxpool.Pool) *SagaLog {
	return &SagaLog{pool: pool}
}

func (l *SagaLog) Append(ctx context.Context, entry ports.SagaLogEntry) error {
	query := `
		INSERT INTO saga_logs (saga_id, order_id, stage, outcome, reason, trace_id, span_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := l.pool.Exec(ctx, query,
		entry.SagaID,
		entry.OrderID,
		entry.Stage,
		entry.Outcome,
		entry.Reason,
		entry.TraceID,
		entry.SpanID,
	)
	if err != nil {
		return fmt.Errorf("insert saga log: %w", err)
	}
	return nil
}

// Entries returns the transitions recorded for sagaID in append order.
func (l *SagaLog) Entries(ctx context.Context, sagaID string) ([]ports.SagaLogEntry, error) {
	query := `
		SELECT saga_id::text, order_id, stage, outcome, reason, trace_id, span_id
		FROM saga_logs
		WHERE saga_id = $1
		ORDER BY id
	`

	rows, err := l.pool.Query(ctx, query, sagaID)
	if err != nil {
		return nil, fmt.Errorf("query saga logs: %w", err)
	}
	defer rows.Close()

	var entries []ports.SagaLogEntry
	for rows.Next() {
		var entry ports.SagaLogEntry
		if err := rows.Scan(
			&entry.SagaID,
			&entry.OrderID,
			&entry.Stage,
			&entry.Outcome,
			&entry.Reason,
			&entry.TraceID,
			&entry.SpanID,
		); err != nil {
			return nil, fmt.Errorf("scan saga log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saga logs: %w", err)
	}
	return entries, nil
}
