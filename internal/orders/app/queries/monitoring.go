package queries

import (
	"context"

	"github.com/dejobratic/orderflow/internal/orders/ports"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// clampLimit maps non-positive limits to DefaultLimit and caps at MaxLimit.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

type RecentOrdersQuery struct {
	Limit int
}

type FraudAlertsQuery struct {
	Reviewed *bool
	Limit    int
}

// StatsView is the fraud dashboard summary.
type StatsView struct {
	TotalOrders      int64   `json:"total_orders"`
	SuspiciousOrders int64   `json:"suspicious_orders"`
	UnreviewedAlerts int64   `json:"unreviewed_alerts"`
	DetectionRate    float64 `json:"detection_rate"`
}

// MonitoringQueryHandler serves the read side of the stream processor's results.
type MonitoringQueryHandler struct {
	repo ports.AuditRepository
}

func NewMonitoringQueryHandler(repo ports.AuditRepository) *MonitoringQueryHandler {
	return &MonitoringQueryHandler{repo: repo}
}

func (h *MonitoringQueryHandler) RecentOrders(ctx context.Context, query RecentOrdersQuery) ([]ports.AuditRecord, error) {
	return h.repo.Recent(ctx, clampLimit(query.Limit))
}

func (h *MonitoringQueryHandler) FraudAlerts(ctx context.Context, query FraudAlertsQuery) ([]ports.FraudAlert, error) {
	return h.repo.ListFraudAlerts(ctx, ports.AlertFilter{
		Reviewed: query.Reviewed,
		Limit:    clampLimit(query.Limit),
	})
}

func (h *MonitoringQueryHandler) Stats(ctx context.Context) (StatsView, error) {
	stats, err := h.repo.Stats(ctx)
	if err != nil {
		return StatsView{}, err
	}
	return StatsView{
		TotalOrders:      stats.TotalOrders,
		SuspiciousOrders: stats.SuspiciousOrders,
		UnreviewedAlerts: stats.UnreviewedAlerts,
		DetectionRate:    stats.DetectionRate(),
	}, nil
}
