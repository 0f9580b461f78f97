// Package http exposes the cancellation engine over REST. Authentication
// happens upstream; this layer only reads the identity headers the gateway
// injects.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/arcube/ancillary-orders/internal/order/application"
	"github.com/arcube/ancillary-orders/internal/order/domain"
	"github.com/arcube/ancillary-orders/internal/webhook"
)

type Handler struct {
	log      *slog.Logger
	service  *application.Service
	webhooks webhook.SubscriptionStore
	clock    domain.Clock
	dupes    DuplicateChecker
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, webhooks webhook.SubscriptionStore, clock domain.Clock, dupes DuplicateChecker) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		webhooks: webhooks,
		clock:    clock,
		dupes:    dupes,
		tracer:   otel.Tracer("ancillary-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", h.health)
	r.Get("/ready", h.health)

	r.Group(func(r chi.Router) {
		r.Use(RequesterFromHeaders)
		r.Use(Idempotency(h.log, h.dupes))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Post("/cancel", h.cancel)
			r.Post("/bulk-cancel", h.bulkCancel)
			r.Post("/activate-esim", h.activateESIM)
			r.Get("/customer/my-orders", h.myOrders)

			r.With(RequireRole(domain.RolePartner, domain.RoleAdmin)).Post("/partner/update-status", h.updateStatus)
			r.With(RequireRole(domain.RolePartner)).Get("/partner/stats", h.stats)
			r.With(RequireRole(domain.RoleAdmin)).Get("/admin/stats", h.stats)

			r.Get("/{pnr}", h.getOrder)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Use(RequireRole(domain.RoleAdmin, domain.RolePartner))
			r.Post("/register", h.registerWebhook)
			r.Get("/", h.listWebhooks)
			r.Delete("/{id}", h.deactivateWebhook)
		})
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	req.Requester = requesterFrom(r)

	order, err := h.service.CreateOrder(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	order, err := h.service.GetOrder(ctx, chi.URLParam(r, "pnr"), r.URL.Query().Get("email"), requesterFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListCustomerOrders")
	defer span.End()

	orders, err := h.service.ListCustomerOrders(ctx, requesterFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders, "count": len(orders)})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelProduct")
	defer span.End()

	var req application.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "productId required"})
		return
	}
	req.Requester = requesterFrom(r)

	res, err := h.service.Cancel(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) bulkCancel(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "BulkCancel")
	defer span.End()

	var req application.BulkCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if len(req.ProductIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "productIds required"})
		return
	}
	req.Requester = requesterFrom(r)

	res, err := h.service.BulkCancel(ctx, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) activateESIM(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ActivateESIM")
	defer span.End()

	var req application.ActivateESIMRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	req.Requester = requesterFrom(r)

	if err := h.service.ActivateESIM(ctx, req); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active", "productId": req.ProductID})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateProductStatus")
	defer span.End()

	var req application.UpdateProductStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	req.Requester = requesterFrom(r)

	if err := h.service.UpdateProductStatus(ctx, req); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pnr": req.PNR, "productId": req.ProductID, "status": req.Status})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Stats")
	defer span.End()

	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"byStatus": stats})
}

type registerWebhookReq struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func (h *Handler) registerWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RegisterWebhook")
	defer span.End()

	var req registerWebhookReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	sub, err := webhook.NewSubscription(req.URL, req.Events, requesterFrom(r).UserID, h.clock.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.webhooks.Create(ctx, sub); err != nil {
		h.writeError(w, err)
		return
	}
	// the signing secret is returned exactly once, at registration
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     sub.ID,
		"url":    sub.URL,
		"events": sub.Events,
		"secret": sub.Secret,
	})
}

func (h *Handler) listWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := h.webhooks.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": subs, "count": len(subs)})
}

func (h *Handler) deactivateWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.webhooks.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ineligible *domain.IneligibleError
	var unavailable *domain.VendorUnavailableError

	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrWebhookNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &ineligible):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": ineligible.Reason})
	case errors.As(err, &unavailable):
		w.Header().Set("Retry-After", strconv.Itoa(int(unavailable.RetryAfter.Seconds())))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":      err.Error(),
			"provider":   unavailable.Provider,
			"retryAfter": int(unavailable.RetryAfter.Seconds()),
		})
	case errors.Is(err, domain.ErrAlreadyCancelled), errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrWrongProvider), errors.Is(err, domain.ErrUnsupportedProvider):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
