package tracking

import (
	"context"
	"time"

	"deliverus/internal/logger"
	"deliverus/internal/models"
)

// Service provides tracking functionality
type Service struct {
	orders  OrderReader
	history HistoryRepo
	logger  *logger.Logger
}

// NewService creates a new tracking service
func NewService(orders OrderReader, history HistoryRepo, log *logger.Logger) *Service {
	return &Service{
		orders:  orders,
		history: history,
		logger:  log,
	}
}

// OrderStatus is the current position of an order in its lifecycle.
type OrderStatus struct {
	OrderID           int64         `json:"orderId"`
	CurrentStatus     models.Status `json:"currentStatus"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	EstimatedDelivery *time.Time    `json:"estimatedDelivery,omitempty"`
}

// GetOrderStatus returns the current status of an order. Undelivered orders
// get an estimate from the restaurant's average service time.
func (s *Service) GetOrderStatus(ctx context.Context, orderID, callerID int64) (*OrderStatus, error) {
	o, err := s.orders.GetOrder(ctx, orderID, callerID)
	if err != nil {
		return nil, err
	}

	status := &OrderStatus{
		OrderID:       o.ID,
		CurrentStatus: o.Status,
		UpdatedAt:     o.UpdatedAt.UTC(),
	}
	if o.Status != models.StatusDelivered && o.Restaurant != nil && o.Restaurant.AverageServiceMinutes != nil {
		eta := o.CreatedAt.Add(time.Duration(*o.Restaurant.AverageServiceMinutes * float64(time.Minute))).UTC()
		status.EstimatedDelivery = &eta
	}
	return status, nil
}

// GetOrderHistory returns the status changes of an order, oldest first.
func (s *Service) GetOrderHistory(ctx context.Context, orderID, callerID int64) ([]models.StatusLogEntry, error) {
	if _, err := s.orders.GetOrder(ctx, orderID, callerID); err != nil {
		return nil, err
	}

	entries, err := s.history.ListStatusLog(ctx, orderID)
	if err != nil {
		s.logger.Error("db_query_failed", "Failed to get order history", logger.RequestIDFromContext(ctx), err, map[string]interface{}{
			"order_id": orderID,
		})
		return nil, models.Persistence("get order history", err)
	}
	if entries == nil {
		entries = []models.StatusLogEntry{}
	}
	return entries, nil
}
