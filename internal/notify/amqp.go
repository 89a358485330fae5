package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/couplemovie/backend/internal/models"
)

// DefaultExchange is the topic exchange events are published to. The routing
// key is the event type, e.g. "invite.received".
const DefaultExchange = "couplemovie.events"

// AMQPPublisher publishes events to a durable RabbitMQ topic exchange. The
// connection is re-established lazily after a failure.
type AMQPPublisher struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("amqp url must be provided")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &AMQPPublisher{url: url, exchange: exchange, logger: logger}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// Name identifies the sink in delivery logs.
func (p *AMQPPublisher) Name() string { return "amqp" }

func (p *AMQPPublisher) connectLocked() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // kind
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}

	p.conn = conn
	p.ch = ch
	return nil
}

func (p *AMQPPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Deliver publishes the event as a persistent JSON message.
func (p *AMQPPublisher) Deliver(ctx context.Context, event models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Type),
		Body:         body,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if p.ch == nil || p.ch.IsClosed() {
			p.resetLocked()
			if err := p.connectLocked(); err != nil {
				return err
			}
		}

		err = p.ch.PublishWithContext(ctx, p.exchange, string(event.Type), false, false, msg)
		if err == nil {
			return nil
		}
		p.logger.Warn("rabbitmq publish failed, reconnecting", "attempt", attempt+1, "error", err)
		p.resetLocked()
	}
	return fmt.Errorf("publish %s: %w", event.Type, err)
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
