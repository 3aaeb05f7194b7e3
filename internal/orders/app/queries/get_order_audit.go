package queries

import (
	"context"
	"errors"
	"strings"

	"github.com/dejobratic/orderflow/internal/orders/ports"
)

// GetOrderAuditQuery represents a request to retrieve the audit record of one order.
type GetOrderAuditQuery struct {
	OrderID string
}

// Validate ensures the query has valid parameters.
func (q GetOrderAuditQuery) Validate() error {
	if strings.TrimSpace(q.OrderID) == "" {
		return errors.New("order_id is required")
	}
	return nil
}

// GetOrderAuditQueryHandler executes GetOrderAuditQuery.
type GetOrderAuditQueryHandler struct {
	repo ports.AuditRepository
}

func NewGetOrderAuditQueryHandler(repo ports.AuditRepository) *GetOrderAuditQueryHandler {
	return &GetOrderAuditQueryHandler{repo: repo}
}

// Handle returns ports.ErrNotFound when the order was never processed.
func (h *GetOrderAuditQueryHandler) Handle(ctx context.Context, query GetOrderAuditQuery) (*ports.AuditRecord, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	return h.repo.GetByOrderID(ctx, query.OrderID)
}
