package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverus/internal/httpx"
	"deliverus/internal/logger"
)

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	h := NewHandler(f.service, logger.Discard(), 0)
	srv := httptest.NewServer(httpx.NewRouter(logger.Discard(), nil, h))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, userID int64, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(httpx.HeaderUserID, fmt.Sprint(userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHandlerCreateAndLifecycle(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/orders", customerID, map[string]interface{}{
		"restaurantId": f.restaurant.ID,
		"address":      "Calle Mayor 1",
		"products": []map[string]interface{}{
			{"productId": f.cheap.ID, "quantity": 1},
			{"productId": f.mid.ID, "quantity": 1},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 13.5, body["price"])
	assert.Equal(t, 2.5, body["shippingCosts"])
	assert.Equal(t, "pending", body["status"])
	id := int64(body["id"].(float64))

	resp, _ = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/orders/%d/send", srv.URL, id), ownerID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/orders/%d/confirm", srv.URL, id), customerID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPatch, fmt.Sprintf("%s/orders/%d/confirm", srv.URL, id), ownerID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "in process", body["status"])
	assert.NotNil(t, body["startedAt"])

	resp, body = doJSON(t, http.MethodPut, fmt.Sprintf("%s/orders/%d", srv.URL, id), customerID, map[string]interface{}{
		"address":  "Elsewhere",
		"products": []map[string]interface{}{{"productId": f.cheap.ID, "quantity": 2}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "state_error", body["error"])
}

func TestHandlerErrors(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	o := f.create(t, line(f.cheap, 1))

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/orders", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/orders", customerID, "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/orders", customerID, map[string]interface{}{
		"restaurantId": f.restaurant.ID,
		"address":      "Calle Mayor 1",
		"products":     []map[string]interface{}{{"productId": f.foreign.ID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "products[0].productId", body["field"])

	resp, body = doJSON(t, http.MethodPut, fmt.Sprintf("%s/orders/%d", srv.URL, o.ID), customerID, map[string]interface{}{
		"restaurantId": f.other.ID,
		"address":      "Calle Mayor 1",
		"products":     []map[string]interface{}{{"productId": f.cheap.ID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "restaurantId", body["field"])

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/orders/abc", customerID, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/orders/9999", customerID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, fmt.Sprintf("%s/restaurants/%d/orders?from=2026-13-01", srv.URL, f.restaurant.ID), ownerID, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHandlerDeleteAndList(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)
	keep := f.create(t, line(f.cheap, 1))
	drop := f.create(t, line(f.mid, 1))

	resp, body := doJSON(t, http.MethodDelete, fmt.Sprintf("%s/orders/%d", srv.URL, drop.ID), customerID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Order deleted successfully", body["message"])

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/restaurants/%d/orders?status=pending&from=2026-03-10&to=2026-03-10", srv.URL, f.restaurant.ID), nil)
	require.NoError(t, err)
	req.Header.Set(httpx.HeaderUserID, fmt.Sprint(ownerID))
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer r.Body.Close()
	require.Equal(t, http.StatusOK, r.StatusCode)

	var list []OrderResponse
	require.NoError(t, json.NewDecoder(r.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, keep.ID, list[0].ID)
	require.Len(t, list[0].Products, 1)
	assert.Equal(t, "3.00", list[0].Products[0].UnityPrice.String())
}

func TestHandlerHealth(t *testing.T) {
	f := newFixture(t)
	srv := newTestServer(t, f)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", 0, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["healthy"])
}
