package stream_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/adapters/memory"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/fraud"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/stream"
	"github.com/shopspring/decimal"
)

var processedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type savedCall struct {
	record ports.AuditRecord
	alert  *ports.FraudAlert
}

type fakeAudit struct {
	ports.AuditRepository
	err   error
	saved []savedCall
}

func (f *fakeAudit) SaveProcessed(_ context.Context, record ports.AuditRecord, alert *ports.FraudAlert) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, savedCall{record: record, alert: alert})
	return nil
}

type fakePublisher struct {
	err    error
	topics []string
	bodies [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, topic, _ string, payload []byte) error {
	f.topics = append(f.topics, topic)
	f.bodies = append(f.bodies, payload)
	return f.err
}

func newPipeline(t *testing.T, audit ports.AuditRepository, publisher ports.Publisher) *stream.Pipeline {
	t.Helper()
	scorer, err := fraud.NewScorer(fraud.DefaultConfig())
	if err != nil {
		t.Fatalf("NewScorer() error = %v", err)
	}
	return stream.NewPipeline(
		stream.Config{AlertTopic: "fraud-alerts"},
		scorer,
		audit,
		publisher,
		stream.WithClock(func() time.Time { return processedAt }),
	)
}

func cleanOrder() domain.Order {
	return domain.Order{
		OrderID: "ORD-CLEAN",
		Customer: domain.Customer{
			CustomerID:  "CUST-1",
			Name:        "Budi",
			Email:       "budi@example.com",
			IsVerified:  true,
			TotalOrders: 4,
		},
		Items: []domain.OrderItem{
			{ProductID: "P1", ProductName: "Book", Quantity: 2, UnitPrice: decimal.NewFromInt(100_000)},
		},
		ShippingAddress: domain.Address{City: "Bandung", Province: "Jawa Barat", Country: "ID"},
		Payment: domain.Payment{
			Method:        domain.PaymentCreditCard,
			Amount:        decimal.NewFromInt(210_000),
			Currency:      "IDR",
			TransactionID: "TXN-ABCDEF12",
			IsPaid:        true,
		},
		Status:       domain.StatusPaymentConfirmed,
		ShippingCost: decimal.NewFromInt(10_000),
		CreatedAt:    time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC),
		Source:       "MOBILE",
	}
}

func suspiciousOrder() domain.Order {
	order := cleanOrder()
	order.OrderID = "ORD-RISKY"
	order.Customer.TotalOrders = 0
	order.Customer.IsVerified = false
	order.Payment.Method = domain.PaymentCOD
	order.Items[0].UnitPrice = decimal.NewFromInt(7_500_000)
	order.Payment.Amount = order.GrandTotal()
	order.CreatedAt = time.Date(2025, 6, 1, 2, 30, 0, 0, time.UTC)
	return order
}

func encode(t *testing.T, order domain.Order) []byte {
	t.Helper()
	raw, err := json.Marshal(order)
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}
	return raw
}

func TestHandleCleanOrder(t *testing.T) {
	audit := &fakeAudit{}
	publisher := &fakePublisher{}

	result := newPipeline(t, audit, publisher).Handle(context.Background(), encode(t, cleanOrder()))

	if result.Outcome != stream.OutcomeEmitted {
		t.Fatalf("Outcome = %s (%s), want EMITTED", result.Outcome, result.Reason)
	}
	if result.Order.Status != domain.StatusValidated {
		t.Errorf("Status = %s, want VALIDATED", result.Order.Status)
	}
	if result.Order.FraudScore == nil || *result.Order.FraudScore != 0 {
		t.Errorf("FraudScore = %v, want 0", result.Order.FraudScore)
	}
	if len(audit.saved) != 1 || audit.saved[0].alert != nil {
		t.Fatalf("expected one audit record without alert, got %+v", audit.saved)
	}
	if len(publisher.topics) != 0 {
		t.Errorf("clean order must not raise an alert, published to %v", publisher.topics)
	}

	record := audit.saved[0].record
	if record.OrderID != "ORD-CLEAN" || record.Status != domain.StatusValidated {
		t.Errorf("unexpected record %+v", record)
	}
	if !record.GrandTotal.Equal(decimal.NewFromInt(210_000)) || record.TotalItems != 2 {
		t.Errorf("record totals = %s / %d", record.GrandTotal, record.TotalItems)
	}
	if record.ShippingCity != "Bandung" || record.TransactionID != "TXN-ABCDEF12" || record.Source != "MOBILE" {
		t.Errorf("record did not flatten order fields: %+v", record)
	}
	if !record.ProcessedAt.Equal(processedAt) {
		t.Errorf("ProcessedAt = %v, want %v", record.ProcessedAt, processedAt)
	}
	var snapshot domain.Order
	if err := json.Unmarshal(record.Snapshot, &snapshot); err != nil || snapshot.OrderID != "ORD-CLEAN" {
		t.Errorf("snapshot is not the processed order: %v", err)
	}

	var event domain.OrderEvent
	if err := json.Unmarshal(result.Event, &event); err != nil {
		t.Fatalf("event is not valid JSON: %v", err)
	}
	if event.EventType != domain.EventTypeOrderValidated {
		t.Errorf("EventType = %s", event.EventType)
	}
	if event.SourceService != stream.DefaultSourceService {
		t.Errorf("SourceService = %s", event.SourceService)
	}
	if event.EventID == "" || event.Order.OrderID != "ORD-CLEAN" {
		t.Errorf("unexpected event %+v", event)
	}
	if event.Metadata == nil || event.Metadata.Version != stream.DefaultEventVersion {
		t.Errorf("Metadata = %+v", event.Metadata)
	}
}

func TestHandleSuspiciousOrder(t *testing.T) {
	audit := &fakeAudit{}
	publisher := &fakePublisher{}

	result := newPipeline(t, audit, publisher).Handle(context.Background(), encode(t, suspiciousOrder()))

	if result.Outcome != stream.OutcomeEmitted {
		t.Fatalf("Outcome = %s (%s), want EMITTED", result.Outcome, result.Reason)
	}
	if result.Order.Status != domain.StatusFraudSuspected {
		t.Errorf("Status = %s, want FRAUD_SUSPECTED", result.Order.Status)
	}
	if result.Fraud == nil || !result.Fraud.IsSuspicious || result.Fraud.FraudScore != 80 {
		t.Fatalf("unexpected fraud result %+v", result.Fraud)
	}

	if len(audit.saved) != 1 {
		t.Fatalf("expected one save, got %d", len(audit.saved))
	}
	alert := audit.saved[0].alert
	if alert == nil {
		t.Fatal("expected fraud alert to be saved with the audit record")
	}
	if alert.Reviewed || alert.OrderID != "ORD-RISKY" || alert.Recommendation != domain.RecommendReview {
		t.Errorf("unexpected alert %+v", alert)
	}
	if !audit.saved[0].record.IsSuspicious {
		t.Error("audit record must be marked suspicious")
	}

	if len(publisher.topics) != 1 || publisher.topics[0] != "fraud-alerts" {
		t.Fatalf("expected one alert on fraud-alerts, got %v", publisher.topics)
	}
	var published domain.FraudCheckResult
	if err := json.Unmarshal(publisher.bodies[0], &published); err != nil {
		t.Fatalf("alert payload: %v", err)
	}
	if published.OrderID != "ORD-RISKY" || len(published.Flags) != 5 {
		t.Errorf("unexpected alert payload %+v", published)
	}

	if len(result.Event) == 0 {
		t.Error("suspicious orders still emit a validated event")
	}
}

func TestHandleAlertPublishFailureIsBestEffort(t *testing.T) {
	audit := &fakeAudit{}
	publisher := &fakePublisher{err: errors.New("broker down")}

	result := newPipeline(t, audit, publisher).Handle(context.Background(), encode(t, suspiciousOrder()))

	if result.Outcome != stream.OutcomeEmitted {
		t.Errorf("Outcome = %s, want EMITTED", result.Outcome)
	}
	if len(audit.saved) != 1 {
		t.Errorf("expected audit to be persisted, got %d saves", len(audit.saved))
	}
}

func TestHandleRejectsInvalidOrders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *domain.Order)
	}{
		{"missing order id", func(o *domain.Order) { o.OrderID = "" }},
		{"empty items", func(o *domain.Order) { o.Items = []domain.OrderItem{} }},
		{"non-positive grand total", func(o *domain.Order) {
			o.ShippingCost = decimal.Zero
			o.VoucherDiscount = decimal.NewFromInt(500_000)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := &fakeAudit{}
			publisher := &fakePublisher{}
			order := cleanOrder()
			tt.mutate(&order)

			result := newPipeline(t, audit, publisher).Handle(context.Background(), encode(t, order))

			if result.Outcome != stream.OutcomeRejected {
				t.Fatalf("Outcome = %s, want REJECTED", result.Outcome)
			}
			if len(result.Event) != 0 {
				t.Error("rejected order must not emit an event")
			}
			if len(audit.saved) != 0 || len(publisher.topics) != 0 {
				t.Error("rejected order must not be persisted or published")
			}
		})
	}
}

func TestHandleDropsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		msg  []byte
	}{
		{"empty payload", nil},
		{"not json", []byte("not-json")},
		{"wrong shape", []byte(`{"items": "many"}`)},
		{"bad decimal", []byte(`{"order_id": "ORD-1", "shipping_cost": "ten"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit := &fakeAudit{}

			result := newPipeline(t, audit, &fakePublisher{}).Handle(context.Background(), tt.msg)

			if result.Outcome != stream.OutcomeDropped {
				t.Fatalf("Outcome = %s, want DROPPED", result.Outcome)
			}
			if len(audit.saved) != 0 {
				t.Error("dropped message must not be persisted")
			}
		})
	}
}

func TestHandlePersistenceFailureDropsWithoutSideEffects(t *testing.T) {
	audit := &fakeAudit{err: errors.New("connection reset")}
	publisher := &fakePublisher{}

	result := newPipeline(t, audit, publisher).Handle(context.Background(), encode(t, suspiciousOrder()))

	if result.Outcome != stream.OutcomeDropped {
		t.Fatalf("Outcome = %s, want DROPPED", result.Outcome)
	}
	if len(result.Event) != 0 {
		t.Error("no event may be emitted when persistence fails")
	}
	if len(publisher.topics) != 0 {
		t.Error("no alert may be published when persistence fails")
	}
}

func TestEnrich(t *testing.T) {
	clock := processedAt
	enricher := stream.NewEnricher(func() time.Time { return clock }, nil, nil)

	order := cleanOrder()
	order.Source = "  "
	order.Status = domain.StatusPending
	order.Payment.Amount = decimal.NewFromInt(1)

	enriched := enricher.Enrich(context.Background(), order)

	if enriched.Source != domain.DefaultSource {
		t.Errorf("Source = %q, want %q", enriched.Source, domain.DefaultSource)
	}
	if enriched.Status != domain.StatusPaymentConfirmed {
		t.Errorf("Status = %s, want PAYMENT_CONFIRMED", enriched.Status)
	}
	if !enriched.Payment.Amount.Equal(enriched.GrandTotal()) {
		t.Errorf("Payment.Amount = %s, want %s", enriched.Payment.Amount, enriched.GrandTotal())
	}
	if !enriched.UpdatedAt.Equal(processedAt) {
		t.Errorf("UpdatedAt = %v", enriched.UpdatedAt)
	}

	t.Run("unpaid pending order stays pending", func(t *testing.T) {
		o := cleanOrder()
		o.Status = domain.StatusPending
		o.Payment.IsPaid = false
		if got := enricher.Enrich(context.Background(), o).Status; got != domain.StatusPending {
			t.Errorf("Status = %s, want PENDING", got)
		}
	})

	t.Run("second run only refreshes updated at", func(t *testing.T) {
		clock = processedAt.Add(time.Minute)
		again := enricher.Enrich(context.Background(), enriched)

		if !again.UpdatedAt.Equal(clock) {
			t.Errorf("UpdatedAt = %v, want %v", again.UpdatedAt, clock)
		}
		again.UpdatedAt = enriched.UpdatedAt
		first, _ := json.Marshal(enriched)
		second, _ := json.Marshal(again)
		if string(first) != string(second) {
			t.Errorf("second enrichment changed the order:\n%s\n%s", first, second)
		}
	})
}

func TestHandleRedeliveredOrderKeepsFirstSnapshot(t *testing.T) {
	audit := memory.NewAuditRepository()
	publisher := &fakePublisher{}
	pipeline := newPipeline(t, audit, publisher)
	ctx := context.Background()

	risky := suspiciousOrder()
	risky.OrderID = "ORD-1"
	benign := cleanOrder()
	benign.OrderID = "ORD-1"

	if result := pipeline.Handle(ctx, encode(t, risky)); result.Outcome != stream.OutcomeEmitted {
		t.Fatalf("first delivery Outcome = %s (%s), want EMITTED", result.Outcome, result.Reason)
	}
	for _, msg := range [][]byte{encode(t, risky), encode(t, benign)} {
		result := pipeline.Handle(ctx, msg)
		if result.Outcome != stream.OutcomeDuplicate {
			t.Errorf("redelivery Outcome = %s, want DUPLICATE", result.Outcome)
		}
		if len(result.Event) != 0 {
			t.Error("redelivered order must not emit an event")
		}
	}

	record, err := audit.GetByOrderID(ctx, "ORD-1")
	if err != nil {
		t.Fatalf("GetByOrderID() error = %v", err)
	}
	if !record.IsSuspicious || !record.GrandTotal.Equal(risky.GrandTotal()) {
		t.Errorf("audit snapshot was rewritten: suspicious=%v grand_total=%s", record.IsSuspicious, record.GrandTotal)
	}
	stats, err := audit.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.UnreviewedAlerts != 1 {
		t.Errorf("UnreviewedAlerts = %d, want 1", stats.UnreviewedAlerts)
	}
	if len(publisher.topics) != 1 {
		t.Errorf("expected a single alert publish, got %v", publisher.topics)
	}
}

func TestHandleAcceptsTimestampsWithoutOffset(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tests := []struct {
		name      string
		createdAt string
		loc       *time.Location
		want      time.Time
	}{
		{"rfc3339", "2025-06-01T02:30:00Z", jakarta, time.Date(2025, 6, 1, 2, 30, 0, 0, time.UTC)},
		{"local in UTC", "2025-06-01T02:30:00", nil, time.Date(2025, 6, 1, 2, 30, 0, 0, time.UTC)},
		{"local in zone", "2025-06-01T02:30:00.123", jakarta, time.Date(2025, 6, 1, 2, 30, 0, 123_000_000, jakarta)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer, err := fraud.NewScorer(fraud.DefaultConfig())
			if err != nil {
				t.Fatalf("NewScorer() error = %v", err)
			}
			pipeline := stream.NewPipeline(stream.Config{Location: tt.loc}, scorer, &fakeAudit{}, &fakePublisher{},
				stream.WithClock(func() time.Time { return processedAt }),
			)

			var doc map[string]any
			if err := json.Unmarshal(encode(t, cleanOrder()), &doc); err != nil {
				t.Fatalf("unmarshal order: %v", err)
			}
			doc["created_at"] = tt.createdAt
			msg, err := json.Marshal(doc)
			if err != nil {
				t.Fatalf("marshal order: %v", err)
			}

			result := pipeline.Handle(context.Background(), msg)
			if result.Outcome != stream.OutcomeEmitted {
				t.Fatalf("Outcome = %s (%s), want EMITTED", result.Outcome, result.Reason)
			}
			if !result.Order.CreatedAt.Equal(tt.want) {
				t.Errorf("CreatedAt = %v, want %v", result.Order.CreatedAt, tt.want)
			}
		})
	}

	t.Run("garbage timestamp is dropped", func(t *testing.T) {
		scorer, _ := fraud.NewScorer(fraud.DefaultConfig())
		pipeline := stream.NewPipeline(stream.Config{}, scorer, &fakeAudit{}, &fakePublisher{})
		result := pipeline.Handle(context.Background(), []byte(`{"order_id":"ORD-1","created_at":"yesterday"}`))
		if result.Outcome != stream.OutcomeDropped {
			t.Errorf("Outcome = %s, want DROPPED", result.Outcome)
		}
	})
}
