package order

import (
	"encoding/json"
	"time"

	"deliverus/internal/models"
)

type createOrderBody struct {
	RestaurantID int64                  `json:"restaurantId"`
	Address      string                 `json:"address"`
	Products     []models.LineItemInput `json:"products"`
}

// updateOrderBody accepts restaurantId only to reject it explicitly.
type updateOrderBody struct {
	RestaurantID *int64                 `json:"restaurantId,omitempty"`
	Address      string                 `json:"address"`
	Products     []models.LineItemInput `json:"products"`
}

type LineItemResponse struct {
	ProductID  int64       `json:"productId"`
	Name       string      `json:"name"`
	Quantity   int         `json:"quantity"`
	UnityPrice json.Number `json:"unityPrice"`
}

type RestaurantSummary struct {
	ID                    int64       `json:"id"`
	Name                  string      `json:"name"`
	ShippingCosts         json.Number `json:"shippingCosts"`
	AverageServiceMinutes *float64    `json:"averageServiceMinutes,omitempty"`
}

// OrderResponse is the JSON form of an order.
type OrderResponse struct {
	ID            int64              `json:"id"`
	RestaurantID  int64              `json:"restaurantId"`
	CustomerID    int64              `json:"userId"`
	Address       string             `json:"address"`
	Price         json.Number        `json:"price"`
	ShippingCosts json.Number        `json:"shippingCosts"`
	Status        models.Status      `json:"status"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	StartedAt     *time.Time         `json:"startedAt"`
	SentAt        *time.Time         `json:"sentAt"`
	DeliveredAt   *time.Time         `json:"deliveredAt"`
	Products      []LineItemResponse `json:"products"`
	Restaurant    *RestaurantSummary `json:"restaurant,omitempty"`
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// NewOrderResponse renders an order with its line items.
func NewOrderResponse(o *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:            o.ID,
		RestaurantID:  o.RestaurantID,
		CustomerID:    o.CustomerID,
		Address:       o.Address,
		Price:         models.MoneyJSON(o.Price),
		ShippingCosts: models.MoneyJSON(o.ShippingCosts),
		Status:        o.Status,
		CreatedAt:     o.CreatedAt.UTC(),
		UpdatedAt:     o.UpdatedAt.UTC(),
		StartedAt:     utcPtr(o.StartedAt),
		SentAt:        utcPtr(o.SentAt),
		DeliveredAt:   utcPtr(o.DeliveredAt),
		Products:      make([]LineItemResponse, 0, len(o.Products)),
	}
	for _, li := range o.Products {
		resp.Products = append(resp.Products, LineItemResponse{
			ProductID:  li.ProductID,
			Name:       li.Name,
			Quantity:   li.Quantity,
			UnityPrice: models.MoneyJSON(li.UnityPrice),
		})
	}
	if r := o.Restaurant; r != nil {
		resp.Restaurant = &RestaurantSummary{
			ID:                    r.ID,
			Name:                  r.Name,
			ShippingCosts:         models.MoneyJSON(r.ShippingCosts),
			AverageServiceMinutes: r.AverageServiceMinutes,
		}
	}
	return resp
}

func newOrderResponses(orders []models.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, NewOrderResponse(&orders[i]))
	}
	return out
}
