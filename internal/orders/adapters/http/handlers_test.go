package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	idemmemory "github.com/dejobratic/orderflow/internal/idempotency/memory"
	httpadapter "github.com/dejobratic/orderflow/internal/orders/adapters/http"
	"github.com/dejobratic/orderflow/internal/orders/adapters/local"
	"github.com/dejobratic/orderflow/internal/orders/adapters/memory"
	"github.com/dejobratic/orderflow/internal/orders/adapters/payment"
	"github.com/dejobratic/orderflow/internal/orders/app"
	"github.com/dejobratic/orderflow/internal/orders/checkout"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/saga"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type countingPublisher struct {
	mu    sync.Mutex
	count int
}

func (p *countingPublisher) Publish(context.Context, string, string, []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return nil
}

type testServer struct {
	handler   http.Handler
	audit     *memory.AuditRepository
	publisher *countingPublisher
}

func newTestServer(t *testing.T, roll float64, httpMetrics *httpadapter.Metrics) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	orderMetrics, err := metrics.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	publisher := &countingPublisher{}
	runner := checkout.NewSaga(checkout.Dependencies{
		Inventory: local.NewInventory(logger),
		Payments:  payment.NewSimulatedAuthorizer(payment.DefaultRates(), func() float64 { return roll }, logger),
		Notifier:  local.NewNotifier(logger),
		Publisher: publisher,
		Topic:     "orders.raw",
		Logger:    logger,
	})

	audit := memory.NewAuditRepository()
	service := app.NewService(runner, audit, idemmemory.NewStore(time.Hour), logger, orderMetrics)
	router := httpadapter.NewRouter(httpadapter.NewHandler(service), httpMetrics, logger, nil)

	return &testServer{handler: router, audit: audit, publisher: publisher}
}

func (s *testServer) do(t *testing.T, method, path, key string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

const checkoutBody = `{
	"customer": {"customer_id": "CUST-1", "name": "Rina", "email": "rina@example.com", "is_verified": true, "total_orders": 3},
	"items": [{"product_id": "P1", "product_name": "Teh", "quantity": 2, "unit_price": "50000"}],
	"shipping_address": {"city": "Jakarta", "country": "ID"},
	"payment": {"method": "CREDIT_CARD"},
	"voucher_code": "welcome10"
}`

type checkoutResponse struct {
	Checkout struct {
		Status      string       `json:"status"`
		FailedStage string       `json:"failed_stage"`
		Order       domain.Order `json:"order"`
	} `json:"checkout"`
}

func decodeCheckout(t *testing.T, rec *httptest.ResponseRecorder) checkoutResponse {
	t.Helper()
	var resp checkoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestCheckoutRequiresIdempotencyKey(t *testing.T) {
	srv := newTestServer(t, 0, nil)

	rec := srv.do(t, http.MethodPost, "/v1/checkouts", "", checkoutBody)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCheckoutCompletesAndReplays(t *testing.T) {
	srv := newTestServer(t, 0, nil)

	first := srv.do(t, http.MethodPost, "/v1/checkouts", "key-1", checkoutBody)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	resp := decodeCheckout(t, first)
	if resp.Checkout.Status != "COMPLETED" {
		t.Errorf("expected COMPLETED, got %s", resp.Checkout.Status)
	}
	if !strings.HasPrefix(resp.Checkout.Order.OrderID, "ORD-") {
		t.Errorf("expected generated order id, got %q", resp.Checkout.Order.OrderID)
	}
	if resp.Checkout.Order.VoucherCode != "WELCOME10" {
		t.Errorf("expected normalized voucher code, got %q", resp.Checkout.Order.VoucherCode)
	}
	if resp.Checkout.Order.Status != domain.StatusPaymentConfirmed {
		t.Errorf("expected PAYMENT_CONFIRMED, got %s", resp.Checkout.Order.Status)
	}

	replay := srv.do(t, http.MethodPost, "/v1/checkouts", "key-1", checkoutBody)
	if replay.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", replay.Code)
	}
	if replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected replay header")
	}
	if !bytes.Equal(first.Body.Bytes(), replay.Body.Bytes()) {
		t.Error("replayed body differs from original")
	}
	if srv.publisher.count != 1 {
		t.Errorf("expected saga to run once, publisher called %d times", srv.publisher.count)
	}
}

func TestCheckoutOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		roll       float64
		body       string
		wantCode   int
		wantStatus string
	}{
		{
			name:       "declined card halts",
			roll:       0.99,
			body:       checkoutBody,
			wantCode:   http.StatusPaymentRequired,
			wantStatus: "HALTED",
		},
		{
			name:       "empty cart aborts",
			body:       strings.Replace(checkoutBody, `"items": [{"product_id": "P1", "product_name": "Teh", "quantity": 2, "unit_price": "50000"}]`, `"items": []`, 1),
			wantCode:   http.StatusUnprocessableEntity,
			wantStatus: "ABORTED",
		},
		{
			name:       "oversized line aborts",
			body:       strings.Replace(checkoutBody, `"quantity": 2`, `"quantity": 101`, 1),
			wantCode:   http.StatusUnprocessableEntity,
			wantStatus: "ABORTED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.roll, nil)

			rec := srv.do(t, http.MethodPost, "/v1/checkouts", "key-"+tt.name, tt.body)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if got := decodeCheckout(t, rec).Checkout.Status; got != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, got)
			}
		})
	}
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (r *blockingRunner) Run(_ context.Context, order domain.Order) saga.Execution {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	r.started <- struct{}{}
	<-r.release
	order.OrderID = "ORD-BLOCKED"
	return saga.Execution{SagaID: "saga-1", Status: saga.StatusCompleted, Order: order}
}

func TestCheckoutSameKeyWhileInFlight(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orderMetrics, err := metrics.NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	service := app.NewService(runner, memory.NewAuditRepository(), idemmemory.NewStore(time.Hour), logger, orderMetrics)
	srv := &testServer{handler: httpadapter.NewRouter(httpadapter.NewHandler(service), nil, logger, nil)}

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- srv.do(t, http.MethodPost, "/v1/checkouts", "dup-key", checkoutBody)
	}()
	<-runner.started

	concurrent := srv.do(t, http.MethodPost, "/v1/checkouts", "dup-key", checkoutBody)
	if concurrent.Code != http.StatusConflict {
		t.Errorf("expected 409 while the first request runs, got %d: %s", concurrent.Code, concurrent.Body.String())
	}

	close(runner.release)
	if rec := <-first; rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for the first request, got %d", rec.Code)
	}

	replayed := srv.do(t, http.MethodPost, "/v1/checkouts", "dup-key", checkoutBody)
	if replayed.Code != http.StatusCreated || replayed.Header().Get("Idempotent-Replayed") != "true" {
		t.Errorf("expected replayed 201, got %d", replayed.Code)
	}
	if runner.calls != 1 {
		t.Errorf("saga ran %d times, want 1", runner.calls)
	}
}

func TestCheckoutRejectedRequestFreesKey(t *testing.T) {
	srv := newTestServer(t, 0, nil)

	bad := srv.do(t, http.MethodPost, "/v1/checkouts", "retry-key", strings.Replace(checkoutBody, "rina@example.com", "", 1))
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.Code)
	}

	good := srv.do(t, http.MethodPost, "/v1/checkouts", "retry-key", checkoutBody)
	if good.Code != http.StatusCreated {
		t.Errorf("expected the corrected retry to run, got %d: %s", good.Code, good.Body.String())
	}
}

func TestCheckoutRejectsBadRequests(t *testing.T) {
	srv := newTestServer(t, 0, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"customer":`},
		{name: "unknown payment method", body: strings.Replace(checkoutBody, "CREDIT_CARD", "BARTER", 1)},
		{name: "missing email", body: strings.Replace(checkoutBody, "rina@example.com", "", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/v1/checkouts", "key-"+tt.name, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func seedAudit(t *testing.T, repo *memory.AuditRepository) {
	t.Helper()
	now := time.Now().UTC()
	records := []struct {
		record ports.AuditRecord
		alert  *ports.FraudAlert
	}{
		{record: ports.AuditRecord{OrderID: "ORD-1", Status: domain.StatusValidated, FraudScore: 10, ProcessedAt: now.Add(-time.Minute), Snapshot: []byte(`{"order_id":"ORD-1"}`)}},
		{
			record: ports.AuditRecord{OrderID: "ORD-2", Status: domain.StatusFraudSuspected, FraudScore: 80, IsSuspicious: true, ProcessedAt: now},
			alert:  &ports.FraudAlert{ID: "A-2", OrderID: "ORD-2", FraudScore: 80, RiskLevel: domain.RiskHigh, CreatedAt: now},
		},
	}
	for _, r := range records {
		if err := repo.SaveProcessed(context.Background(), r.record, r.alert); err != nil {
			t.Fatalf("SaveProcessed() error = %v", err)
		}
	}
}

func TestAdminEndpoints(t *testing.T) {
	srv := newTestServer(t, 0, nil)
	seedAudit(t, srv.audit)

	t.Run("order audit", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/admin/orders/ORD-1", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Order struct {
				OrderID   string          `json:"order_id"`
				OrderData json.RawMessage `json:"order_data"`
				Flags     []string        `json:"flags"`
			} `json:"order"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Order.OrderID != "ORD-1" || string(body.Order.OrderData) != `{"order_id":"ORD-1"}` {
			t.Errorf("unexpected body %s", rec.Body.String())
		}
		if body.Order.Flags == nil {
			t.Error("expected flags to render as an empty list")
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		if rec := srv.do(t, http.MethodGet, "/v1/admin/orders/ORD-404", "", ""); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("recent orders newest first", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/admin/orders/recent?limit=1", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body struct {
			Orders []struct {
				OrderID string `json:"order_id"`
			} `json:"orders"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Orders) != 1 || body.Orders[0].OrderID != "ORD-2" {
			t.Errorf("unexpected orders %+v", body.Orders)
		}
	})

	t.Run("stats", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/admin/stats", "", "")
		var body map[string]float64
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["total_orders"] != 2 || body["suspicious_orders"] != 1 || body["unreviewed_alerts"] != 1 || body["detection_rate"] != 50 {
			t.Errorf("unexpected stats %v", body)
		}
	})

	t.Run("fraud alerts", func(t *testing.T) {
		rec := srv.do(t, http.MethodGet, "/v1/admin/fraud-alerts?reviewed=false", "", "")
		var body struct {
			Alerts []ports.FraudAlert `json:"alerts"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Alerts) != 1 || body.Alerts[0].OrderID != "ORD-2" {
			t.Errorf("unexpected alerts %+v", body.Alerts)
		}
	})

	t.Run("bad query parameters", func(t *testing.T) {
		for _, path := range []string{"/v1/admin/orders/recent?limit=ten", "/v1/admin/fraud-alerts?reviewed=maybe"} {
			if rec := srv.do(t, http.MethodGet, path, "", ""); rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", path, rec.Code)
			}
		}
	})
}

func TestRouterRecordsRoutePattern(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	httpMetrics, err := httpadapter.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	srv := newTestServer(t, 0, httpMetrics)
	seedAudit(t, srv.audit)
	srv.do(t, http.MethodGet, "/v1/admin/orders/ORD-1", "", "")
	srv.do(t, http.MethodGet, "/v1/admin/orders/ORD-2", "", "")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http_requests_total" {
				continue
			}
			sum := m.Data.(metricdata.Sum[int64])
			if len(sum.DataPoints) != 1 {
				t.Fatalf("expected one series, got %d", len(sum.DataPoints))
			}
			route, _ := sum.DataPoints[0].Attributes.Value("route")
			if route.AsString() != "/v1/admin/orders/{orderID}" {
				t.Errorf("route = %q", route.AsString())
			}
			if sum.DataPoints[0].Value != 2 {
				t.Errorf("expected 2 requests, got %d", sum.DataPoints[0].Value)
			}
			return
		}
	}
	t.Error("http_requests_total metric not found")
}

func TestHealthProbes(t *testing.T) {
	srv := newTestServer(t, 0, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := srv.do(t, http.MethodGet, path, "", ""); rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
