package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingOrder() *Order {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Order{
		ID:            7,
		RestaurantID:  1,
		CustomerID:    2,
		Address:       "Av. Reina Mercedes s/n",
		Price:         decimal.RequireFromString("11.00"),
		ShippingCosts: decimal.RequireFromString("3.00"),
		Status:        StatusPending,
		CreatedAt:     created,
		UpdatedAt:     created,
		Products: []LineItem{
			{ProductID: 10, Quantity: 2, UnityPrice: decimal.RequireFromString("4.00")},
		},
	}
}

func TestOrderApply_ForwardOnly(t *testing.T) {
	o := newPendingOrder()
	now := o.CreatedAt.Add(5 * time.Minute)

	require.NoError(t, o.Apply(ActionConfirm, now))
	assert.Equal(t, StatusInProcess, o.Status)
	require.NotNil(t, o.StartedAt)

	require.NoError(t, o.Apply(ActionSend, now.Add(time.Minute)))
	assert.Equal(t, StatusSent, o.Status)

	require.NoError(t, o.Apply(ActionDeliver, now.Add(2*time.Minute)))
	assert.Equal(t, StatusDelivered, o.Status)
	require.NotNil(t, o.DeliveredAt)

	require.NoError(t, o.Validate())
}

func TestOrderApply_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name   string
		prior  []Action
		action Action
	}{
		{name: "send before confirm", action: ActionSend},
		{name: "deliver before send", prior: []Action{ActionConfirm}, action: ActionDeliver},
		{name: "confirm twice", prior: []Action{ActionConfirm}, action: ActionConfirm},
		{name: "nothing after delivered", prior: []Action{ActionConfirm, ActionSend, ActionDeliver}, action: ActionDeliver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newPendingOrder()
			now := o.CreatedAt
			for _, a := range tt.prior {
				now = now.Add(time.Minute)
				require.NoError(t, o.Apply(a, now))
			}
			before := *o

			err := o.Apply(tt.action, now.Add(time.Minute))

			var se *StateError
			require.True(t, errors.As(err, &se), "want StateError, got %v", err)
			assert.Equal(t, before.Status, o.Status)
			assert.Equal(t, before.StartedAt, o.StartedAt)
			assert.Equal(t, before.SentAt, o.SentAt)
			assert.Equal(t, before.DeliveredAt, o.DeliveredAt)
		})
	}
}

func TestOrderCheckEditable(t *testing.T) {
	o := newPendingOrder()
	require.NoError(t, o.CheckEditable("edit"))

	require.NoError(t, o.Apply(ActionConfirm, o.CreatedAt.Add(time.Minute)))
	err := o.CheckEditable("delete")

	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "delete", se.Action)
	assert.Equal(t, StatusInProcess, se.Status)
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Order)
		field  string
	}{
		{name: "valid", mutate: func(o *Order) {}},
		{name: "blank address", mutate: func(o *Order) { o.Address = "  " }, field: "address"},
		{name: "no products", mutate: func(o *Order) { o.Products = nil }, field: "products"},
		{name: "zero quantity", mutate: func(o *Order) { o.Products[0].Quantity = 0 }, field: "products[0].quantity"},
		{name: "price mismatch", mutate: func(o *Order) { o.Price = decimal.RequireFromString("10.99") }, field: "price"},
		{
			name: "price overflows cents",
			mutate: func(o *Order) {
				o.Products[0].Quantity = 1 << 56
				o.Price = o.ShippingCosts.Add(o.Products[0].Subtotal())
			},
			field: "price",
		},
		{name: "negative shipping", mutate: func(o *Order) { o.ShippingCosts = decimal.RequireFromString("-1") }, field: "shippingCosts"},
		{
			name: "status disagrees with timestamps",
			mutate: func(o *Order) {
				o.Status = StatusSent
			},
			field: "status",
		},
		{
			name: "sent without started",
			mutate: func(o *Order) {
				at := o.CreatedAt.Add(time.Hour)
				o.SentAt = &at
			},
			field: "status",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newPendingOrder()
			tt.mutate(o)
			err := o.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestStatusFromTimestamps(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t1, t2 := t0.Add(time.Minute), t0.Add(2*time.Minute)

	tests := []struct {
		name                     string
		started, sent, delivered *time.Time
		want                     Status
		wantErr                  bool
	}{
		{name: "pending", want: StatusPending},
		{name: "in process", started: &t0, want: StatusInProcess},
		{name: "sent", started: &t0, sent: &t1, want: StatusSent},
		{name: "delivered", started: &t0, sent: &t1, delivered: &t2, want: StatusDelivered},
		{name: "delivered without sent", started: &t0, delivered: &t2, wantErr: true},
		{name: "sent before started", started: &t1, sent: &t0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StatusFromTimestamps(tt.started, tt.sent, tt.delivered)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStatus(t *testing.T) {
	for raw, want := range map[string]Status{
		"pending":    StatusPending,
		"in process": StatusInProcess,
		"in-process": StatusInProcess,
		"Confirmed":  StatusInProcess,
		"sent":       StatusSent,
		"delivered":  StatusDelivered,
	} {
		got, err := ParseStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseStatus("promoted")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestAverageServiceMinutes(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	avg, ok := AverageServiceMinutes([]ServiceWindow{
		{CreatedAt: base, DeliveredAt: base.Add(20 * time.Minute)},
		{CreatedAt: base, DeliveredAt: base.Add(40 * time.Minute)},
	})
	require.True(t, ok)
	assert.InDelta(t, 30.0, avg, 1e-9)

	_, ok = AverageServiceMinutes(nil)
	assert.False(t, ok)
}
