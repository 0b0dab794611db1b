// Package storage defines the persistence contracts of the order workflow.
//
// Every mutation goes through a Tx obtained from Store.BeginTx. The workflow
// passes that handle explicitly to each call; there is no ambient session.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"deliverus/internal/models"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write matched no row.
	ErrConflict = errors.New("conflict")
)

// OrderFilter selects orders. Zero values leave a dimension unbounded.
type OrderFilter struct {
	RestaurantID  int64
	CustomerID    int64
	Status        models.Status
	CreatedFrom   time.Time // inclusive
	CreatedBefore time.Time // exclusive
	DeliveredFrom time.Time // inclusive
}

// Reader holds the queries usable both inside and outside a transaction.
type Reader interface {
	GetRestaurant(ctx context.Context, id int64) (*models.Restaurant, error)
	GetProducts(ctx context.Context, ids []int64) ([]models.Product, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
}

// Store is the transactional order store.
type Store interface {
	Reader

	// BeginTx opens the transaction every mutation runs in.
	BeginTx(ctx context.Context) (Tx, error)

	ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error)
	CountOrders(ctx context.Context, f OrderFilter) (int, error)
	SumOrderPrice(ctx context.Context, f OrderFilter) (decimal.Decimal, error)
	ListStatusLog(ctx context.Context, orderID int64) ([]models.StatusLogEntry, error)

	Catalog

	Ping(ctx context.Context) error
	Close() error
}

// Catalog writes the restaurant and product rows orders refer to. It is used
// for seeding; the catalog itself is owned by another service.
type Catalog interface {
	CreateRestaurant(ctx context.Context, r *models.Restaurant) error
	CreateProduct(ctx context.Context, p *models.Product) error
}

// Tx is a transaction-scoped handle. Commit or Rollback must be called
// exactly once; Rollback after Commit is a no-op.
type Tx interface {
	Reader

	// LockOrder loads an order and holds it for the rest of the transaction.
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	InsertOrder(ctx context.Context, o *models.Order) error
	UpdateOrder(ctx context.Context, o *models.Order) error
	ReplaceLineItems(ctx context.Context, orderID int64, items []models.LineItem) error
	DeleteOrder(ctx context.Context, id int64) error
	// TransitionOrder moves an order from one status to the next, setting the
	// matching timestamp. It returns ErrConflict if the order is no longer
	// in status from.
	TransitionOrder(ctx context.Context, id int64, from, to models.Status, at time.Time) error
	AppendStatusLog(ctx context.Context, e models.StatusLogEntry) error
	ListServiceWindows(ctx context.Context, restaurantID int64) ([]models.ServiceWindow, error)
	SetAverageServiceMinutes(ctx context.Context, restaurantID int64, minutes float64) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// RequiredColumns lists every column the stores reference by name. Both
// stores verify it against the live schema at start-up.
var RequiredColumns = map[string][]string{
	"restaurants":      {"id", "owner_id", "name", "shipping_costs_cents", "average_service_minutes"},
	"products":         {"id", "restaurant_id", "name", "price_cents", "availability"},
	"orders":           {"id", "restaurant_id", "customer_id", "address", "price_cents", "shipping_costs_cents", "status", "created_at", "updated_at", "started_at", "sent_at", "delivered_at"},
	"order_products":   {"order_id", "product_id", "position", "name", "quantity", "unity_price_cents"},
	"order_status_log": {"id", "order_id", "status", "changed_by", "changed_at"},
}
