package tracking

import (
	"context"

	"deliverus/internal/models"
)

// OrderReader returns an order if the caller may see it.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID, callerID int64) (*models.Order, error)
}

// HistoryRepo lists the status log of an order.
type HistoryRepo interface {
	ListStatusLog(ctx context.Context, orderID int64) ([]models.StatusLogEntry, error)
}
