package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverus/internal/logger"
	"deliverus/internal/messaging"
	"deliverus/internal/models"
)

type fakeConsumer struct {
	bodies [][]byte
	errs   []error
	closed bool
}

func (f *fakeConsumer) StartConsuming(ctx context.Context, handler messaging.MessageHandler) error {
	for _, b := range f.bodies {
		f.errs = append(f.errs, handler(ctx, b))
	}
	return context.Canceled
}

func (f *fakeConsumer) Close() error {
	f.closed = true
	return nil
}

func TestFormatNotification(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 30, 0, 0, time.UTC)
	o := &models.Order{ID: 42, RestaurantID: 3, CustomerID: 7, Status: models.StatusSent}

	tests := []struct {
		event string
		want  string
	}{
		{models.EventOrderCreated, "Order 42 placed at restaurant 3"},
		{models.EventOrderConfirmed, "Order 42 was confirmed"},
		{models.EventOrderSent, "Order 42 is on its way."},
		{models.EventOrderDelivered, "Order 42 has been delivered"},
		{models.EventOrderDeleted, "Order 42 was cancelled"},
		{"refunded", "status changed from 'in process' to 'sent' by user 100"},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			e := models.NewOrderEvent(tt.event, o, models.StatusInProcess, 100, at)
			msg := FormatNotification(e)
			assert.Contains(t, msg, "[2026-03-10 12:30:00]")
			assert.Contains(t, msg, tt.want)
		})
	}
}

func TestSubscriber(t *testing.T) {
	o := &models.Order{ID: 42, RestaurantID: 3, CustomerID: 7, Status: models.StatusDelivered}
	body, err := json.Marshal(models.NewOrderEvent(models.EventOrderDelivered, o, models.StatusSent, 100, time.Now()))
	require.NoError(t, err)

	consumer := &fakeConsumer{bodies: [][]byte{body, []byte("{not json")}}
	var out bytes.Buffer
	s := NewSubscriber(consumer, logger.Discard(), &out)

	require.NoError(t, s.Start(context.Background()))

	assert.True(t, consumer.closed)
	require.Len(t, consumer.errs, 2)
	assert.NoError(t, consumer.errs[0])
	assert.ErrorIs(t, consumer.errs[1], messaging.ErrPoison)
	assert.Contains(t, out.String(), "Order 42 has been delivered")
}
