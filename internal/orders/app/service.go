package app

import (
	"context"
	"log/slog"

	"github.com/dejobratic/orderflow/internal/orders/app/commands"
	"github.com/dejobratic/orderflow/internal/orders/app/queries"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/saga"
)

// Service bundles the use cases exposed over HTTP.
type Service struct {
	idemStore       ports.IdempotencyStore
	checkoutHandler commands.CheckoutHandler
	getAudit        *queries.GetOrderAuditQueryHandler
	monitoring      *queries.MonitoringQueryHandler
}

// NewService wires required dependencies.
func NewService(
	runner commands.Runner,
	audit ports.AuditRepository,
	idem ports.IdempotencyStore,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Service {
	coreHandler := commands.NewCheckoutCommandHandler(runner)
	observableHandler := commands.NewObservableCheckoutHandler(coreHandler, logger, metrics)

	return &Service{
		idemStore:       idem,
		checkoutHandler: observableHandler,
		getAudit:        queries.NewGetOrderAuditQueryHandler(audit),
		monitoring:      queries.NewMonitoringQueryHandler(audit),
	}
}

// Checkout runs the checkout saga for a cart.
func (s *Service) Checkout(ctx context.Context, cmd commands.CheckoutCommand) (saga.Execution, error) {
	return s.checkoutHandler.Handle(ctx, cmd)
}

// GetOrderAudit returns the stream processor's record of one order.
func (s *Service) GetOrderAudit(ctx context.Context, orderID string) (*ports.AuditRecord, error) {
	return s.getAudit.Handle(ctx, queries.GetOrderAuditQuery{OrderID: orderID})
}

func (s *Service) RecentOrders(ctx context.Context, limit int) ([]ports.AuditRecord, error) {
	return s.monitoring.RecentOrders(ctx, queries.RecentOrdersQuery{Limit: limit})
}

func (s *Service) FraudAlerts(ctx context.Context, query queries.FraudAlertsQuery) ([]ports.FraudAlert, error) {
	return s.monitoring.FraudAlerts(ctx, query)
}

func (s *Service) Stats(ctx context.Context) (queries.StatsView, error) {
	return s.monitoring.Stats(ctx)
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// ReserveIdempotencyKey claims key for one in-flight checkout.
func (s *Service) ReserveIdempotencyKey(ctx context.Context, key string) (bool, error) {
	return s.idemStore.Reserve(ctx, key)
}

// ReleaseIdempotencyKey frees a claim that produced no stored response.
func (s *Service) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return s.idemStore.Release(ctx, key)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}
