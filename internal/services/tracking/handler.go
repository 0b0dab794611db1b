package tracking

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"deliverus/internal/httpx"
	"deliverus/internal/logger"
)

// Handler handles HTTP requests for the tracking service
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new tracking handler
func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/orders/{id}/status", h.GetOrderStatus)
	r.Get("/orders/{id}/history", h.GetOrderHistory)
}

// GetOrderStatus handles GET /orders/{id}/status requests
func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
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

	h.logger.Debug("request_received", "Get order status request", logger.RequestIDFromContext(r.Context()), map[string]interface{}{
		"order_id": orderID,
		"endpoint": "status",
	})

	status, err := h.service.GetOrderStatus(r.Context(), orderID, callerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, status)
}

// GetOrderHistory handles GET /orders/{id}/history requests
func (h *Handler) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
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

	h.logger.Debug("request_received", "Get order history request", logger.RequestIDFromContext(r.Context()), map[string]interface{}{
		"order_id": orderID,
		"endpoint": "history",
	})

	history, err := h.service.GetOrderHistory(r.Context(), orderID, callerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, history)
}
