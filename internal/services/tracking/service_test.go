package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverus/internal/database/sqlite"
	"deliverus/internal/httpx"
	"deliverus/internal/logger"
	"deliverus/internal/models"
	"deliverus/internal/services/order"
)

const (
	ownerID    = int64(100)
	customerID = int64(7)
)

func setup(t *testing.T) (*Service, *order.Service, *models.Order, *time.Time) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := &models.Restaurant{OwnerID: ownerID, Name: "Casa Pepe", ShippingCosts: decimal.RequireFromString("2.50")}
	require.NoError(t, store.CreateRestaurant(ctx, r))
	p := &models.Product{RestaurantID: r.ID, Name: "Paella", Price: decimal.RequireFromString("15.00"), Availability: true}
	require.NoError(t, store.CreateProduct(ctx, p))

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	orders := order.NewService(store, logger.Discard(), order.WithClock(func() time.Time { return now }))
	o, err := orders.CreateOrder(ctx, &order.CreateOrderRequest{
		CustomerID:   customerID,
		RestaurantID: r.ID,
		Address:      "Calle Mayor 1",
		Products:     []models.LineItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	return NewService(orders, store, logger.Discard()), orders, o, &now
}

func TestGetOrderHistory(t *testing.T) {
	svc, orders, o, now := setup(t)
	ctx := context.Background()

	*now = now.Add(10 * time.Minute)
	_, err := orders.ConfirmOrder(ctx, o.ID, ownerID)
	require.NoError(t, err)

	history, err := svc.GetOrderHistory(ctx, o.ID, customerID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.StatusPending, history[0].Status)
	assert.Equal(t, customerID, history[0].ChangedBy)
	assert.Equal(t, models.StatusInProcess, history[1].Status)
	assert.Equal(t, ownerID, history[1].ChangedBy)
	assert.True(t, history[1].ChangedAt.After(history[0].ChangedAt))

	_, err = svc.GetOrderHistory(ctx, o.ID, 8)
	var ae *models.AuthorizationError
	assert.ErrorAs(t, err, &ae)

	_, err = svc.GetOrderHistory(ctx, 9999, customerID)
	var ne *models.NotFoundError
	assert.ErrorAs(t, err, &ne)
}

func TestGetOrderStatusEstimatesDelivery(t *testing.T) {
	svc, orders, o, now := setup(t)
	ctx := context.Background()

	status, err := svc.GetOrderStatus(ctx, o.ID, customerID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status.CurrentStatus)
	assert.Nil(t, status.EstimatedDelivery)

	for _, step := range []func(context.Context, int64, int64) (*models.Order, error){
		orders.ConfirmOrder, orders.SendOrder, orders.DeliverOrder,
	} {
		*now = now.Add(20 * time.Minute)
		_, err := step(ctx, o.ID, ownerID)
		require.NoError(t, err)
	}

	next, err := orders.CreateOrder(ctx, &order.CreateOrderRequest{
		CustomerID:   customerID,
		RestaurantID: o.RestaurantID,
		Address:      "Calle Mayor 1",
		Products:     []models.LineItemInput{{ProductID: o.Products[0].ProductID, Quantity: 1}},
	})
	require.NoError(t, err)

	status, err = svc.GetOrderStatus(ctx, next.ID, ownerID)
	require.NoError(t, err)
	require.NotNil(t, status.EstimatedDelivery)
	assert.True(t, status.EstimatedDelivery.Equal(next.CreatedAt.Add(60*time.Minute)))
}

func TestHandlerHistory(t *testing.T) {
	svc, _, o, _ := setup(t)
	srv := httptest.NewServer(httpx.NewRouter(logger.Discard(), nil, NewHandler(svc, logger.Discard())))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/orders/%d/history", srv.URL, o.ID), nil)
	require.NoError(t, err)
	req.Header.Set(httpx.HeaderUserID, fmt.Sprint(customerID))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var history []models.StatusLogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, models.StatusPending, history[0].Status)
}
