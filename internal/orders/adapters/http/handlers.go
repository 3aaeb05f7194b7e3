package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dejobratic/orderflow/internal/orders/app"
	"github.com/dejobratic/orderflow/internal/orders/app/commands"
	"github.com/dejobratic/orderflow/internal/orders/app/queries"
	"github.com/dejobratic/orderflow/internal/orders/domain"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/saga"
	"github.com/go-chi/chi/v5"
)

const idempotencyHeader = "Idempotency-Key"

// Handler exposes the checkout API and the fraud monitoring endpoints.
type Handler struct {
	service *app.Service
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the handlers on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/checkouts", h.checkout)
	r.Route("/v1/admin", func(r chi.Router) {
		r.Get("/stats", h.stats)
		r.Get("/orders/recent", h.recentOrders)
		r.Get("/orders/{orderID}", h.getOrderAudit)
		r.Get("/fraud-alerts", h.fraudAlerts)
	})
}

// checkoutRequest is the client-controlled part of an order. Status, totals
// and fraud fields are always computed server side.
type checkoutRequest struct {
	Customer        domain.Customer    `json:"customer"`
	Items           []domain.OrderItem `json:"items"`
	ShippingAddress domain.Address     `json:"shipping_address"`
	Payment         struct {
		Method       domain.PaymentMethod `json:"method"`
		Currency     string               `json:"currency"`
		CardLastFour string               `json:"card_last_four"`
	} `json:"payment"`
	VoucherCode string `json:"voucher_code"`
	Notes       string `json:"notes"`
	Source      string `json:"source"`
}

func (req checkoutRequest) toOrder() domain.Order {
	return domain.Order{
		Customer:        req.Customer,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		Payment: domain.Payment{
			Method:       req.Payment.Method,
			Currency:     req.Payment.Currency,
			CardLastFour: req.Payment.CardLastFour,
		},
		VoucherCode: strings.ToUpper(strings.TrimSpace(req.VoucherCode)),
		Notes:       req.Notes,
		Source:      req.Source,
	}
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	idemKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if idemKey == "" {
		writeError(w, http.StatusBadRequest, "Idempotency-Key header required")
		return
	}

	if stored, err := h.service.GetIdempotentResponse(ctx, idemKey); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	} else if stored != nil {
		replay(w, stored)
		return
	}

	var payload checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	reserved, err := h.service.ReserveIdempotencyKey(ctx, idemKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !reserved {
		// Lost the race: the other request either finished or is still running.
		stored, err := h.service.GetIdempotentResponse(ctx, idemKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		replay(w, stored)
		return
	}

	saved := false
	defer func() {
		if saved {
			return
		}
		if err := h.service.ReleaseIdempotencyKey(context.WithoutCancel(ctx), idemKey); err != nil {
			slog.ErrorContext(ctx, "failed to release idempotency key", "key", idemKey, "error", err)
		}
	}()

	exec, err := h.service.Checkout(ctx, commands.CheckoutCommand{Order: payload.toOrder()})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := checkoutStatusCode(exec.Status)
	body, err := json.Marshal(map[string]any{"checkout": exec})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// A canceled saga is the client's own disconnect; a retry must run again.
	if exec.Status != saga.StatusCanceled {
		stored := ports.StoredResponse{
			StatusCode: status,
			Body:       body,
			OrderID:    exec.Order.OrderID,
		}
		if err := h.service.SaveIdempotentResponse(context.WithoutCancel(ctx), idemKey, stored); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		saved = true
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// replay writes a stored response, or 409 while the key's first request is
// still running.
func replay(w http.ResponseWriter, stored *ports.StoredResponse) {
	if stored == nil || stored.Pending() {
		writeError(w, http.StatusConflict, "a request with this Idempotency-Key is already in progress")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.StatusCode)
	_, _ = w.Write(stored.Body)
}

func checkoutStatusCode(status saga.Status) int {
	switch status {
	case saga.StatusCompleted:
		return http.StatusCreated
	case saga.StatusHalted:
		return http.StatusPaymentRequired
	case saga.StatusAborted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *Handler) getOrderAudit(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.GetOrderAudit(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": newAuditView(*record)})
}

func (h *Handler) recentOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.service.RecentOrders(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]auditView, 0, len(records))
	for _, record := range records {
		views = append(views, newAuditView(record))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": views})
}

func (h *Handler) fraudAlerts(w http.ResponseWriter, r *http.Request) {
	query := queries.FraudAlertsQuery{}

	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query.Limit = limit

	if value := r.URL.Query().Get("reviewed"); value != "" {
		reviewed, err := strconv.ParseBool(value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reviewed must be true or false")
			return
		}
		query.Reviewed = &reviewed
	}

	alerts, err := h.service.FraudAlerts(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func intParam(r *http.Request, name string) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
