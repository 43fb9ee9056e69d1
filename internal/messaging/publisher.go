package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const eventsExchange = "storefront.events"

// Publisher emits storefront lifecycle events to RabbitMQ. The gateway
// runs fine without a broker; callers hold a nil Publisher in that case.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// OrderPlacedEvent announces a completed checkout.
type OrderPlacedEvent struct {
	OrderID   int64  `json:"order_id"`
	ContextID string `json:"context_id"`
	Timestamp int64  `json:"timestamp"`
}

// SessionRevokedEvent announces a session torn down after an upstream
// rejection.
type SessionRevokedEvent struct {
	ContextID string `json:"context_id"`
	Timestamp int64  `json:"timestamp"`
}

// NewPublisher connects to RabbitMQ and declares the events exchange.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := &Publisher{conn: conn, channel: ch}

	if err := p.setup(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewPublisherWithRetry keeps dialing until the broker answers or ctx
// expires. Used at startup when the broker may still be coming up.
func NewPublisherWithRetry(ctx context.Context, url string) (*Publisher, error) {
	backoff := time.Second
	for {
		p, err := NewPublisher(url)
		if err == nil {
			return p, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up connecting to RabbitMQ: %w", err)
		case <-time.After(backoff):
		}

		if backoff < 10*time.Second {
			backoff *= 2
		}
	}
}

func (p *Publisher) setup() error {
	if err := p.channel.ExchangeDeclare(
		eventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// OrderPlaced publishes an order.placed event.
func (p *Publisher) OrderPlaced(ctx context.Context, orderID int64, contextID string) error {
	event := OrderPlacedEvent{
		OrderID:   orderID,
		ContextID: contextID,
		Timestamp: time.Now().Unix(),
	}
	if err := p.publish(ctx, "order.placed", event); err != nil {
		return err
	}

	slog.Info("published order event",
		slog.Int64("order_id", orderID),
		slog.String("context_id", contextID))
	return nil
}

// SessionRevoked publishes a session.revoked event.
func (p *Publisher) SessionRevoked(ctx context.Context, contextID string) error {
	event := SessionRevokedEvent{
		ContextID: contextID,
		Timestamp: time.Now().Unix(),
	}
	if err := p.publish(ctx, "session.revoked", event); err != nil {
		return err
	}

	slog.Info("published session revocation",
		slog.String("context_id", contextID))
	return nil
}

func (p *Publisher) publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		eventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

// IsClosed reports whether the broker connection is gone.
func (p *Publisher) IsClosed() bool {
	return p.conn == nil || p.conn.IsClosed()
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
