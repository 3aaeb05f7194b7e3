//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/orderflow/internal/database/dbtest"
	"github.com/dejobratic/orderflow/internal/orders/adapters/postgres"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func auditRecord(orderID string, suspicious bool, processedAt time.Time) ports.AuditRecord {
	return ports.AuditRecord{
		ID:              uuid.NewString(),
		OrderID:         orderID,
		CustomerID:      "CUST-1",
		CustomerName:    "Dewi",
		CustomerEmail:   "dewi@example.com",
		Status:          domain.StatusValidated,
		TotalItems:      3,
		Subtotal:        decimal.RequireFromString("108223.91775"),
		ShippingCost:    decimal.NewFromInt(15_000),
		VoucherDiscount: decimal.Zero,
		GrandTotal:      decimal.RequireFromString("123223.91775"),
		PaymentMethod:   domain.PaymentEWallet,
		TransactionID:   "TXN-0A1B2C3D",
		IsPaid:          true,
		ShippingCity:    "Surabaya",
		FraudScore:      10,
		IsSuspicious:    suspicious,
		RiskLevel:       domain.RiskLow,
		Recommendation:  domain.RecommendApprove,
		Flags:           []string{domain.FlagUnverifiedCustomer},
		Source:          "WEB",
		Snapshot:        []byte(`{"order_id":"` + orderID + `"}`),
		CreatedAt:       processedAt.Add(-time.Minute),
		ProcessedAt:     processedAt,
	}
}

func fraudAlert(orderID string) *ports.FraudAlert {
	return &ports.FraudAlert{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		CustomerID:     "CUST-1",
		FraudScore:     80,
		RiskLevel:      domain.RiskHigh,
		Flags:          []string{domain.FlagHighValueOrder, domain.FlagHighValueCOD},
		Recommendation: domain.RecommendReview,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestAuditRepositorySaveAndGet(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := postgres.NewAuditRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	want := auditRecord("ORD-PG-1", false, now)
	if err := repo.SaveProcessed(ctx, want, nil); err != nil {
		t.Fatalf("SaveProcessed() error = %v", err)
	}

	got, err := repo.GetByOrderID(ctx, "ORD-PG-1")
	if err != nil {
		t.Fatalf("GetByOrderID() error = %v", err)
	}
	if !got.Subtotal.Equal(want.Subtotal) || !got.GrandTotal.Equal(want.GrandTotal) {
		t.Errorf("amounts = %s / %s, want %s / %s", got.Subtotal, got.GrandTotal, want.Subtotal, want.GrandTotal)
	}
	if got.Status != want.Status || got.PaymentMethod != want.PaymentMethod || got.TransactionID != want.TransactionID {
		t.Errorf("unexpected record %+v", got)
	}
	if len(got.Flags) != 1 || got.Flags[0] != domain.FlagUnverifiedCustomer {
		t.Errorf("Flags = %v", got.Flags)
	}
	if !got.ProcessedAt.Equal(now) {
		t.Errorf("ProcessedAt = %v, want %v", got.ProcessedAt, now)
	}

	if _, err := repo.GetByOrderID(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditRepositorySaveWithAlertIsAtomic(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := postgres.NewAuditRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.SaveProcessed(ctx, auditRecord("ORD-PG-2", true, now), fraudAlert("ORD-PG-2")); err != nil {
		t.Fatalf("SaveProcessed() error = %v", err)
	}

	// Reusing the alert id violates the primary key and must roll back the audit row too.
	duplicate := fraudAlert("ORD-PG-3")
	first := fraudAlert("ORD-PG-3")
	duplicate.ID = first.ID
	if err := repo.SaveProcessed(ctx, auditRecord("ORD-PG-3", true, now), first); err != nil {
		t.Fatalf("SaveProcessed() error = %v", err)
	}
	if err := repo.SaveProcessed(ctx, auditRecord("ORD-PG-4", true, now), duplicate); err == nil {
		t.Fatal("expected duplicate alert id to fail")
	}
	if _, err := repo.GetByOrderID(ctx, "ORD-PG-4"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("audit row survived a failed alert insert: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := ports.Stats{TotalOrders: 2, SuspiciousOrders: 2, UnreviewedAlerts: 2}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}

func TestAuditRepositoryKeepsFirstSnapshot(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := postgres.NewAuditRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if err := repo.SaveProcessed(ctx, auditRecord("ORD-PG-5", true, now), fraudAlert("ORD-PG-5")); err != nil {
		t.Fatalf("SaveProcessed() error = %v", err)
	}

	replay := auditRecord("ORD-PG-5", false, now.Add(time.Hour))
	replay.GrandTotal = decimal.NewFromInt(1_000)
	err := repo.SaveProcessed(ctx, replay, fraudAlert("ORD-PG-5"))
	if !errors.Is(err, ports.ErrAlreadyProcessed) {
		t.Fatalf("SaveProcessed() error = %v, want ErrAlreadyProcessed", err)
	}

	got, err := repo.GetByOrderID(ctx, "ORD-PG-5")
	if err != nil {
		t.Fatalf("GetByOrderID() error = %v", err)
	}
	if !got.IsSuspicious || got.GrandTotal.Equal(replay.GrandTotal) || !got.ProcessedAt.Equal(now) {
		t.Errorf("snapshot was rewritten: %+v", got)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.UnreviewedAlerts != 1 {
		t.Errorf("UnreviewedAlerts = %d, want 1", stats.UnreviewedAlerts)
	}
}

func TestAuditRepositoryRecentAndAlerts(t *testing.T) {
	pool := dbtest.NewPool(t)
	repo := postgres.NewAuditRepository(pool)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"ORD-A", "ORD-B", "ORD-C"} {
		var alert *ports.FraudAlert
		if id != "ORD-A" {
			alert = fraudAlert(id)
			alert.CreatedAt = base.Add(time.Duration(i) * time.Second)
		}
		if err := repo.SaveProcessed(ctx, auditRecord(id, alert != nil, base.Add(time.Duration(i)*time.Second)), alert); err != nil {
			t.Fatalf("SaveProcessed(%s) error = %v", id, err)
		}
	}

	recent, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 || recent[0].OrderID != "ORD-C" || recent[1].OrderID != "ORD-B" {
		t.Errorf("Recent(2) = %v", recent)
	}

	if _, err := pool.Exec(ctx, `UPDATE fraud_alerts SET reviewed = TRUE WHERE order_id = 'ORD-B'`); err != nil {
		t.Fatalf("mark reviewed: %v", err)
	}

	unreviewed := false
	alerts, err := repo.ListFraudAlerts(ctx, ports.AlertFilter{Reviewed: &unreviewed})
	if err != nil {
		t.Fatalf("ListFraudAlerts() error = %v", err)
	}
	if len(alerts) != 1 || alerts[0].OrderID != "ORD-C" || alerts[0].Reviewed {
		t.Errorf("unreviewed alerts = %+v", alerts)
	}

	all, err := repo.ListFraudAlerts(ctx, ports.AlertFilter{})
	if err != nil {
		t.Fatalf("ListFraudAlerts() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(all))
	}
}

func TestSagaLogAppend(t *testing.T) {
	pool := dbtest.NewPool(t)
	log := postgres.NewSagaLog(pool)
	ctx := context.Background()
	sagaID := uuid.NewString()

	for _, stage := range []string{"ValidateCart", "CalculateTotal"} {
		entry := ports.SagaLogEntry{SagaID: sagaID, OrderID: "ORD-LOG", Stage: stage, Outcome: "COMPLETE"}
		if err := log.Append(ctx, entry); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	entries, err := log.Entries(ctx, sagaID)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Stage != "ValidateCart" || entries[1].Stage != "CalculateTotal" {
		t.Errorf("Entries() = %+v", entries)
	}
}
