package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"deliverus/internal/logger"
	"deliverus/internal/messaging"
	"deliverus/internal/models"
)

// Consumer delivers raw message bodies to a handler until ctx is done.
type Consumer interface {
	StartConsuming(ctx context.Context, handler messaging.MessageHandler) error
	Close() error
}

// Subscriber prints human-readable order notifications
type Subscriber struct {
	consumer Consumer
	logger   *logger.Logger

	mu  sync.Mutex
	out io.Writer
}

// NewSubscriber creates a new notification subscriber writing to out
func NewSubscriber(consumer Consumer, log *logger.Logger, out io.Writer) *Subscriber {
	return &Subscriber{
		consumer: consumer,
		logger:   log,
		out:      out,
	}
}

// Start consumes notifications until ctx is cancelled
func (s *Subscriber) Start(ctx context.Context) error {
	requestID := logger.GenerateRequestID()
	s.logger.Info("service_started", "Notification subscriber started", requestID, nil)

	err := s.consumer.StartConsuming(ctx, s.HandleNotification)

	s.logger.Info("graceful_shutdown", "Stopping notification subscriber", requestID, nil)
	if closeErr := s.consumer.Close(); closeErr != nil {
		s.logger.Error("consumer_close_failed", "Failed to close consumer", requestID, closeErr, nil)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleNotification processes one order event
func (s *Subscriber) HandleNotification(ctx context.Context, body []byte) error {
	requestID := logger.RequestIDFromContext(ctx)

	var event models.OrderEvent
	if err := messaging.ParseMessage(body, &event); err != nil {
		s.logger.Error("message_parsing_failed", "Failed to parse notification message", requestID, err, nil)
		return err
	}

	s.mu.Lock()
	_, err := fmt.Fprintln(s.out, FormatNotification(&event))
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}

	s.logger.Info("notification_displayed", "Notification displayed to user", requestID, map[string]interface{}{
		"order_id":   event.OrderID,
		"event":      event.Event,
		"old_status": string(event.OldStatus),
		"new_status": string(event.NewStatus),
		"changed_by": event.ChangedBy,
	})
	return nil
}

// FormatNotification creates a human-readable notification message
func FormatNotification(e *models.OrderEvent) string {
	timestamp := e.Timestamp.Format("2006-01-02 15:04:05")

	switch e.Event {
	case models.EventOrderCreated:
		return fmt.Sprintf("[%s] Order %d placed at restaurant %d for %s.", timestamp, e.OrderID, e.RestaurantID, e.Price)
	case models.EventOrderUpdated:
		return fmt.Sprintf("[%s] Order %d was updated by the customer. New total: %s.", timestamp, e.OrderID, e.Price)
	case models.EventOrderDeleted:
		return fmt.Sprintf("[%s] Order %d was cancelled by the customer.", timestamp, e.OrderID)
	case models.EventOrderConfirmed:
		return fmt.Sprintf("[%s] Order %d was confirmed and is now being prepared.", timestamp, e.OrderID)
	case models.EventOrderSent:
		return fmt.Sprintf("[%s] Order %d is on its way.", timestamp, e.OrderID)
	case models.EventOrderDelivered:
		return fmt.Sprintf("[%s] Order %d has been delivered. Enjoy your meal!", timestamp, e.OrderID)
	}
	return fmt.Sprintf("[%s] Order %d status changed from '%s' to '%s' by user %d.",
		timestamp, e.OrderID, e.OldStatus, e.NewStatus, e.ChangedBy)
}
