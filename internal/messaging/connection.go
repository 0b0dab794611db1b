package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"deliverus/internal/config"
	"deliverus/internal/logger"
)

// Connection wraps a RabbitMQ connection and channel with reconnection logic
type Connection struct {
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *logger.Logger
	url     string
	retries int
}

// New dials RabbitMQ and declares the order topology
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Connection, error) {
	conn := &Connection{
		logger:  log,
		url:     cfg.RabbitMQURL(),
		retries: 5,
	}

	if err := conn.connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to establish initial connection: %w", err)
	}
	return conn, nil
}

// connect establishes the connection, backing off linearly between attempts
func (c *Connection) connect(ctx context.Context) error {
	var err error
	for i := 0; i < c.retries; i++ {
		if err = c.dial(); err == nil {
			return nil
		}

		if i == c.retries-1 {
			break
		}
		wait := time.Duration(i+1) * 2 * time.Second
		c.logger.Error("rabbitmq_connection_failed",
			fmt.Sprintf("Failed to connect to RabbitMQ, retrying in %v", wait),
			logger.RequestIDFromContext(ctx), err, map[string]interface{}{
				"attempt": i + 1,
			})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.retries, err)
}

func (c *Connection) dial() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	c.conn, c.channel = conn, ch

	if err := c.setupTopology(); err != nil {
		c.logger.Error("rabbitmq_setup_failed", "Failed to set up topology", "", err, nil)
		c.close()
		return err
	}
	return nil
}

// setupTopology declares the order exchanges and queues
func (c *Connection) setupTopology() error {
	exchanges := []struct {
		name string
		kind string
	}{
		{OrdersExchange, "topic"},
		{NotificationsExchange, "fanout"},
	}
	for _, ex := range exchanges {
		err := c.channel.ExchangeDeclare(
			ex.name, // name
			ex.kind, // type
			true,    // durable
			false,   // auto-deleted
			false,   // internal
			false,   // no-wait
			nil,     // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare %s exchange: %w", ex.name, err)
		}
	}

	bindings := []struct {
		queue      string
		routingKey string
		exchange   string
	}{
		{OrderEventsQueue, OrderEventsBinding, OrdersExchange},
		{NotificationsQueue, "", NotificationsExchange},
	}
	for _, b := range bindings {
		_, err := c.channel.QueueDeclare(
			b.queue, // name
			true,    // durable
			false,   // delete when unused
			false,   // exclusive
			false,   // no-wait
			nil,     // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.queue, err)
		}

		err = c.channel.QueueBind(
			b.queue,      // queue name
			b.routingKey, // routing key (ignored for fanout)
			b.exchange,   // exchange
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to bind queue %s with routing key %q: %w", b.queue, b.routingKey, err)
		}
	}

	return nil
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Close closes the channel and connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.close()
}

func (c *Connection) close() error {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		if errors.Is(err, amqp091.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}

// IsClosed reports whether the connection or its channel is gone
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil || c.conn.IsClosed() || c.channel == nil || c.channel.IsClosed()
}

// Reconnect drops the current connection and dials again
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.close()
	return c.connect(ctx)
}
