package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dejobratic/orderflow/internal/orders/ports"
)

const defaultLimit = 20

// AuditRepository keeps audit records and fraud alerts in memory. Useful for
// local development and tests.
type AuditRepository struct {
	mu      sync.RWMutex
	records []ports.AuditRecord
	byOrder map[string]int
	alerts  []ports.FraudAlert
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{byOrder: make(map[string]int)}
}

// SaveProcessed stores the record and optional alert under one lock so
// readers never see one without the other. The first record for an order wins.
func (r *AuditRepository) SaveProcessed(_ context.Context, record ports.AuditRecord, alert *ports.FraudAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byOrder[record.OrderID]; ok {
		return fmt.Errorf("%w: %s", ports.ErrAlreadyProcessed, record.OrderID)
	}

	record.Flags = append([]string(nil), record.Flags...)
	r.byOrder[record.OrderID] = len(r.records)
	r.records = append(r.records, record)

	if alert != nil {
		stored := *alert
		stored.Flags = append([]string(nil), alert.Flags...)
		r.alerts = append(r.alerts, stored)
	}
	return nil
}

func (r *AuditRepository) GetByOrderID(_ context.Context, orderID string) (*ports.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byOrder[orderID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	record := r.records[idx]
	return &record, nil
}

// Recent returns the most recently processed records first.
func (r *AuditRepository) Recent(_ context.Context, limit int) ([]ports.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ports.AuditRecord, len(r.records))
	copy(result, r.records)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ProcessedAt.After(result[j].ProcessedAt)
	})

	return result[:clampLimit(limit, len(result))], nil
}

func (r *AuditRepository) Stats(_ context.Context) (ports.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := ports.Stats{TotalOrders: int64(len(r.records))}
	for _, record := range r.records {
		if record.IsSuspicious {
			stats.SuspiciousOrders++
		}
	}
	for _, alert := range r.alerts {
		if !alert.Reviewed {
			stats.UnreviewedAlerts++
		}
	}
	return stats, nil
}

// ListFraudAlerts returns the newest alerts first.
func (r *AuditRepository) ListFraudAlerts(_ context.Context, filter ports.AlertFilter) ([]ports.FraudAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []ports.FraudAlert
	for i := len(r.alerts) - 1; i >= 0; i-- {
		alert := r.alerts[i]
		if filter.Reviewed != nil && alert.Reviewed != *filter.Reviewed {
			continue
		}
		result = append(result, alert)
	}
	if result == nil {
		return []ports.FraudAlert{}, nil
	}
	return result[:clampLimit(filter.Limit, len(result))], nil
}

func clampLimit(limit, size int) int {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > size {
		return size
	}
	return limit
}
