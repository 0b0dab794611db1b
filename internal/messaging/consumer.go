package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"deliverus/internal/logger"
)

// MessageHandler processes one delivery. A returned error requeues it once
// unless it wraps ErrPoison.
type MessageHandler func(ctx context.Context, body []byte) error

// ErrPoison marks a message that can never be processed, such as malformed
// JSON. Poison messages are dropped instead of requeued.
var ErrPoison = errors.New("poison message")

// Consumer handles message consumption from RabbitMQ
type Consumer struct {
	conn        *Connection
	logger      *logger.Logger
	queueName   string
	consumerTag string
	prefetch    int
	timeout     time.Duration
}

// NewConsumer creates a new message consumer
func NewConsumer(conn *Connection, log *logger.Logger, queueName, consumerTag string, prefetch int) *Consumer {
	return &Consumer{
		conn:        conn,
		logger:      log,
		queueName:   queueName,
		consumerTag: consumerTag,
		prefetch:    prefetch,
		timeout:     30 * time.Second,
	}
}

// StartConsuming consumes until ctx is cancelled, reconnecting when the
// broker closes the delivery channel.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	for {
		msgs, err := c.subscribe(ctx)
		if err != nil {
			return err
		}

		if err := c.drain(ctx, msgs, handler); err != nil {
			return err
		}

		c.logger.Error("consumer_channel_closed", "Message channel closed, attempting to reconnect", "", nil, map[string]interface{}{
			"queue": c.queueName,
		})
		if err := c.conn.Reconnect(ctx); err != nil {
			return fmt.Errorf("failed to reconnect after channel closed: %w", err)
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp091.Delivery, error) {
	if c.conn.IsClosed() {
		if err := c.conn.Reconnect(ctx); err != nil {
			return nil, fmt.Errorf("failed to reconnect: %w", err)
		}
	}

	ch := c.conn.Channel()
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,   // queue
		c.consumerTag, // consumer
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("consumer_started",
		fmt.Sprintf("Started consuming from queue %s", c.queueName),
		"", map[string]interface{}{
			"queue":    c.queueName,
			"consumer": c.consumerTag,
			"prefetch": c.prefetch,
		})
	return msgs, nil
}

// drain returns nil when the delivery channel closes and ctx.Err() on cancel.
func (c *Consumer) drain(ctx context.Context, msgs <-chan amqp091.Delivery, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer_stopped", "Consumer stopped by context", "", nil)
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.processMessage(ctx, d, handler)
		}
	}
}

// processMessage handles a single message
func (c *Consumer) processMessage(ctx context.Context, delivery amqp091.Delivery, handler MessageHandler) {
	start := time.Now()
	requestID := delivery.CorrelationId

	fields := map[string]interface{}{
		"queue":        c.queueName,
		"routing_key":  delivery.RoutingKey,
		"message_id":   delivery.MessageId,
		"delivery_tag": delivery.DeliveryTag,
	}
	c.logger.Debug("message_received", "Processing message", requestID, fields)

	processingCtx, cancel := context.WithTimeout(logger.WithRequestID(ctx, requestID), c.timeout)
	defer cancel()

	err := handler(processingCtx, delivery.Body)
	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		requeue := !errors.Is(err, ErrPoison) && !delivery.Redelivered
		fields["requeue"] = requeue
		c.logger.Error("message_processing_failed", "Failed to process message", requestID, err, fields)

		if nackErr := delivery.Nack(false, requeue); nackErr != nil {
			c.logger.Error("message_nack_failed", "Failed to nack message", requestID, nackErr, nil)
		}
		return
	}

	c.logger.Debug("message_processed", "Successfully processed message", requestID, fields)
	if ackErr := delivery.Ack(false); ackErr != nil {
		c.logger.Error("message_ack_failed", "Failed to ack message", requestID, ackErr, nil)
	}
}

// ParseMessage parses a JSON message into v. Malformed bodies are poison.
func ParseMessage(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrPoison, err)
	}
	return nil
}

// Close cancels the consumer and closes the connection
func (c *Consumer) Close() error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Channel().Cancel(c.consumerTag, false); err != nil {
		c.logger.Error("consumer_cancel_failed", "Failed to cancel consumer", "", err, nil)
	}
	return c.conn.Close()
}
