package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"deliverus/internal/logger"
	"deliverus/internal/models"
)

// Publisher handles message publishing to RabbitMQ. An AMQP channel must
// not be used by two goroutines at once, so publishes are serialised.
type Publisher struct {
	mu     sync.Mutex
	conn   *Connection
	logger *logger.Logger
}

// NewPublisher creates a new message publisher
func NewPublisher(conn *Connection, log *logger.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: log,
	}
}

// PublishOrderEvent publishes the event to the orders topic exchange under
// order.<event> and to the notifications fanout exchange.
func (p *Publisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}
	messageID := uuid.NewString()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.publishMessage(ctx, OrdersExchange, event.RoutingKey(), messageID, body, true); err != nil {
		return err
	}
	return p.publishMessage(ctx, NotificationsExchange, "", messageID, body, false)
}

// publishMessage is the generic message publishing function
func (p *Publisher) publishMessage(ctx context.Context, exchange, routingKey, messageID string, body []byte, persistent bool) error {
	requestID := logger.RequestIDFromContext(ctx)

	if p.conn.IsClosed() {
		if err := p.conn.Reconnect(ctx); err != nil {
			return fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	deliveryMode := amqp091.Transient
	if persistent {
		deliveryMode = amqp091.Persistent
	}

	publishing := amqp091.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  deliveryMode,
		MessageId:     messageID,
		CorrelationId: requestID,
		Timestamp:     time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := p.conn.Channel().PublishWithContext(
		ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		publishing,
	)
	if err != nil {
		p.logger.Error("message_publish_failed",
			fmt.Sprintf("Failed to publish message to exchange %s", exchange),
			requestID, err, map[string]interface{}{
				"exchange":    exchange,
				"routing_key": routingKey,
			})
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("message_published",
		fmt.Sprintf("Published message to exchange %s", exchange),
		requestID, map[string]interface{}{
			"exchange":     exchange,
			"routing_key":  routingKey,
			"message_id":   messageID,
			"message_size": len(body),
		})

	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	return p.conn.Close()
}
