package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverus/internal/models"
	"deliverus/internal/storage"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCatalog(t *testing.T, s *Store) (*models.Restaurant, *models.Product) {
	t.Helper()
	ctx := context.Background()
	r := &models.Restaurant{OwnerID: 100, Name: "Casa Pepe", ShippingCosts: decimal.RequireFromString("2.50")}
	require.NoError(t, s.CreateRestaurant(ctx, r))
	p := &models.Product{RestaurantID: r.ID, Name: "Croquetas", Price: decimal.RequireFromString("4.25"), Availability: true}
	require.NoError(t, s.CreateProduct(ctx, p))
	return r, p
}

func insertOrder(t *testing.T, s *Store, r *models.Restaurant, p *models.Product, customerID int64, createdAt time.Time) *models.Order {
	t.Helper()
	ctx := context.Background()
	o := &models.Order{
		RestaurantID:  r.ID,
		CustomerID:    customerID,
		Address:       "Calle Mayor 1",
		Price:         decimal.RequireFromString("11.00"),
		ShippingCosts: decimal.RequireFromString("2.50"),
		Status:        models.StatusPending,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
		Products:      []models.LineItem{{ProductID: p.ID, Name: p.Name, Quantity: 2, UnityPrice: p.Price}},
	}
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertOrder(ctx, o))
	require.NoError(t, tx.ReplaceLineItems(ctx, o.ID, o.Products))
	require.NoError(t, tx.AppendStatusLog(ctx, models.StatusLogEntry{OrderID: o.ID, Status: models.StatusPending, ChangedBy: customerID, ChangedAt: createdAt}))
	require.NoError(t, tx.Commit(ctx))
	return o
}

func TestOrderRoundTrip(t *testing.T) {
	s := openStore(t)
	r, p := seedCatalog(t, s)
	o := insertOrder(t, s, r, p, 7, base)

	got, err := s.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.CustomerID, got.CustomerID)
	assert.True(t, got.Price.Equal(o.Price))
	assert.True(t, got.ShippingCosts.Equal(o.ShippingCosts))
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, got.CreatedAt.Equal(base))
	require.Len(t, got.Products, 1)
	assert.Equal(t, 2, got.Products[0].Quantity)
	assert.True(t, got.Products[0].UnityPrice.Equal(p.Price))
	require.NotNil(t, got.Restaurant)
	assert.Equal(t, r.OwnerID, got.Restaurant.OwnerID)
	require.NoError(t, got.Validate())
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.GetOrder(context.Background(), 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetRestaurant(context.Background(), 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTransitionIsConditional(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	r, p := seedCatalog(t, s)
	o := insertOrder(t, s, r, p, 7, base)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	err = tx.TransitionOrder(ctx, o.ID, models.StatusInProcess, models.StatusSent, base.Add(time.Minute))
	assert.ErrorIs(t, err, storage.ErrConflict)
	require.NoError(t, tx.TransitionOrder(ctx, o.ID, models.StatusPending, models.StatusInProcess, base.Add(time.Minute)))
	require.NoError(t, tx.Commit(ctx))

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProcess, got.Status)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(base.Add(time.Minute)))
	assert.Nil(t, got.SentAt)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	r, p := seedCatalog(t, s)
	o := insertOrder(t, s, r, p, 7, base)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	changed := *o
	changed.Address = "Elsewhere 2"
	changed.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, tx.UpdateOrder(ctx, &changed))
	require.NoError(t, tx.ReplaceLineItems(ctx, o.ID, nil))
	require.NoError(t, tx.Rollback(ctx))
	require.NoError(t, tx.Rollback(ctx))

	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "Calle Mayor 1", got.Address)
	assert.Len(t, got.Products, 1)
}

func TestDeleteRemovesChildren(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	r, p := seedCatalog(t, s)
	o := insertOrder(t, s, r, p, 7, base)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteOrder(ctx, o.ID))
	require.NoError(t, tx.Commit(ctx))

	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_products`).Scan(&n))
	assert.Zero(t, n)
	history, err := s.ListStatusLog(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, tx.DeleteOrder(ctx, o.ID), storage.ErrNotFound)
	require.NoError(t, tx.Rollback(ctx))
}

func TestListOrdersFilters(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	r, p := seedCatalog(t, s)

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	early := insertOrder(t, s, r, p, 7, day.Add(-time.Nanosecond))
	first := insertOrder(t, s, r, p, 7, day)
	last := insertOrder(t, s, r, p, 8, day.Add(24*time.Hour-time.Nanosecond))
	insertOrder(t, s, r, p, 7, day.Add(24*time.Hour))

	orders, err := s.ListOrders(ctx, storage.OrderFilter{
		RestaurantID:  r.ID,
		CreatedFrom:   day,
		CreatedBefore: day.AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, last.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
	for _, o := range orders {
		assert.Len(t, o.Products, 1)
	}

	orders, err = s.ListOrders(ctx, storage.OrderFilter{CustomerID: 7, CreatedBefore: day})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, early.ID, orders[0].ID)

	n, err := s.CountOrders(ctx, storage.OrderFilter{RestaurantID: r.ID, Status: models.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	sum, err := s.SumOrderPrice(ctx, storage.OrderFilter{RestaurantID: r.ID, CreatedFrom: day})
	require.NoError(t, err)
	assert.Equal(t, "33.00", sum.StringFixed(2))

	sum, err = s.SumOrderPrice(ctx, storage.OrderFilter{RestaurantID: r.ID + 1})
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestServiceWindows(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	r, p := seedCatalog(t, s)
	o := insertOrder(t, s, r, p, 7, base)

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.TransitionOrder(ctx, o.ID, models.StatusPending, models.StatusInProcess, base.Add(10*time.Minute)))
	require.NoError(t, tx.TransitionOrder(ctx, o.ID, models.StatusInProcess, models.StatusSent, base.Add(20*time.Minute)))
	require.NoError(t, tx.TransitionOrder(ctx, o.ID, models.StatusSent, models.StatusDelivered, base.Add(40*time.Minute)))

	windows, err := tx.ListServiceWindows(ctx, r.ID)
	require.NoError(t, err)
	avg, ok := models.AverageServiceMinutes(windows)
	require.True(t, ok)
	assert.InDelta(t, 40.0, avg, 1e-9)
	require.NoError(t, tx.SetAverageServiceMinutes(ctx, r.ID, avg))
	require.NoError(t, tx.Commit(ctx))

	rest, err := s.GetRestaurant(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, rest.AverageServiceMinutes)
	assert.InDelta(t, 40.0, *rest.AverageServiceMinutes, 1e-9)

	n, err := s.CountOrders(ctx, storage.OrderFilter{RestaurantID: r.ID, DeliveredFrom: base})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStatusCheckConstraint(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	r, p := seedCatalog(t, s)
	o := insertOrder(t, s, r, p, 7, base)

	_, err := s.db.ExecContext(ctx, `UPDATE orders SET status = 'sent' WHERE id = ?`, o.ID)
	assert.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := t.TempDir() + "/deliverus.db"
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.VerifySchema(context.Background()))
	assert.NoError(t, s.Ping(context.Background()))
}
