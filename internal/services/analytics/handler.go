package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"deliverus/internal/httpx"
	"deliverus/internal/models"
)

type Response struct {
	RestaurantID            int64       `json:"restaurantId"`
	NumYesterdayOrders      int         `json:"numYesterdayOrders"`
	NumPendingOrders        int         `json:"numPendingOrders"`
	NumDeliveredTodayOrders int         `json:"numDeliveredTodayOrders"`
	InvoicedToday           json.Number `json:"invoicedToday"`
}

type Handler struct {
	service *Service
	timeout time.Duration
}

func NewHandler(service *Service, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{service: service, timeout: timeout}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/restaurants/{id}/analytics", h.GetAnalytics)
}

// GetAnalytics handles GET /restaurants/{id}/analytics requests
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	a, err := h.service.Compute(ctx, restaurantID, callerID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, Response{
		RestaurantID:            a.RestaurantID,
		NumYesterdayOrders:      a.NumYesterdayOrders,
		NumPendingOrders:        a.NumPendingOrders,
		NumDeliveredTodayOrders: a.NumDeliveredTodayOrders,
		InvoicedToday:           models.MoneyJSON(a.InvoicedToday),
	})
}
