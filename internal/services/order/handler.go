package order

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"deliverus/internal/httpx"
	"deliverus/internal/logger"
	"deliverus/internal/models"
)

// HeaderIdempotencyKey lets clients retry POST /orders safely.
const HeaderIdempotencyKey = "Idempotency-Key"

// Handler handles HTTP requests for the order service
type Handler struct {
	service *Service
	logger  *logger.Logger
	timeout time.Duration
}

// NewHandler creates a new order handler
func NewHandler(service *Service, log *logger.Logger, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		service: service,
		logger:  log,
		timeout: timeout,
	}
}

// Register mounts the order routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Get("/orders", h.ListCustomerOrders)
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{id}", h.GetOrder)
	r.Put("/orders/{id}", h.UpdateOrder)
	r.Delete("/orders/{id}", h.DeleteOrder)
	r.Patch("/orders/{id}/confirm", h.transition(h.service.ConfirmOrder))
	r.Patch("/orders/{id}/send", h.transition(h.service.SendOrder))
	r.Patch("/orders/{id}/deliver", h.transition(h.service.DeliverOrder))
	r.Get("/restaurants/{id}/orders", h.ListRestaurantOrders)
}

// CreateOrder handles POST /orders requests
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	callerID, err := httpx.CallerID(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	var body createOrderBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.service.CreateOrder(ctx, &CreateOrderRequest{
		CustomerID:     callerID,
		RestaurantID:   body.RestaurantID,
		Address:        body.Address,
		Products:       body.Products,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, NewOrderResponse(order))
}

// UpdateOrder handles PUT /orders/{id} requests
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	callerID, err := httpx.CallerID(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	var body updateOrderBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if body.RestaurantID != nil {
		httpx.WriteError(w, r, &models.ValidationError{
			Field:   "restaurantId",
			Message: "the restaurant of an order cannot be changed",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.service.UpdateOrder(ctx, orderID, &UpdateOrderRequest{
		CustomerID: callerID,
		Address:    body.Address,
		Products:   body.Products,
	})
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, NewOrderResponse(order))
}

// DeleteOrder handles DELETE /orders/{id} requests
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	callerID, err := httpx.CallerID(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.service.DeleteOrder(ctx, orderID, callerID); err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Order deleted successfully"})
}

type transitionFunc func(ctx context.Context, orderID, ownerID int64) (*models.Order, error)

// transition handles PATCH /orders/{id}/{confirm,send,deliver} requests
func (h *Handler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, err := httpx.CallerID(r)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}
		orderID, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		order, err := fn(ctx, orderID, callerID)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		httpx.WriteJSON(w, http.StatusOK, NewOrderResponse(order))
	}
}

// GetOrder handles GET /orders/{id} requests
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	callerID, err := httpx.CallerID(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.service.GetOrder(ctx, orderID, callerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, NewOrderResponse(order))
}

// ListCustomerOrders handles GET /orders requests
func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	callerID, err := httpx.CallerID(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	filter, err := h.parseFilter(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.service.ListForCustomer(ctx, callerID, filter)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newOrderResponses(orders))
}

// ListRestaurantOrders handles GET /restaurants/{id}/orders requests
func (h *Handler) ListRestaurantOrders(w http.ResponseWriter, r *http.Request) {
	callerID, err := httpx.CallerID(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	restaurantID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	filter, err := h.parseFilter(r)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.service.ListForRestaurant(ctx, restaurantID, callerID, filter)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, newOrderResponses(orders))
}

func (h *Handler) parseFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	return h.service.ParseListFilter(q.Get("status"), q.Get("from"), q.Get("to"))
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.service.HealthCheck(ctx)

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "order-service",
		"healthy":   healthy,
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
		h.logger.Warn("health_check_failed", "Store did not answer", logger.RequestIDFromContext(r.Context()), nil)
	}
	httpx.WriteJSON(w, status, response)
}
