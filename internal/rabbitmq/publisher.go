package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"support-dashboard/internal/logger"
	"support-dashboard/internal/observability"
	"support-dashboard/internal/telemetry"
)

var ErrClosed = errors.New("publisher closed")

// Publisher publishes session and audit events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// Config selects the broker and the topic exchange dashboard events go to.
type Config struct {
	URL      string
	Exchange string
}

// NewPublisher connects to the broker and declares a durable topic exchange.
// Any failure yields a publisher that only logs, so the dashboard keeps
// working without a broker.
func NewPublisher(cfg Config) Publisher {
	if cfg.URL == "" {
		return disabled("empty amqp url", nil)
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return disabled("dial failed", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return disabled("channel failed", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return disabled("exchange declare failed", err)
	}

	logger.Info().Str("exchange", cfg.Exchange).Msg("rabbitmq connected")
	return &amqpPublisher{conn: conn, ch: ch, exchange: cfg.Exchange}
}

func disabled(reason string, err error) Publisher {
	if err != nil {
		reason = fmt.Sprintf("%s: %v", reason, err)
	}
	logger.Warn().Str("reason", reason).Msg("rabbitmq disabled, events are logged only")
	return noopPublisher{reason: reason}
}

type amqpPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	closed   bool
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", routingKey, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      make(amqp.Table, len(headers)),
		Body:         body,
	}
	for key, value := range headers {
		msg.Headers[key] = value
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		logger.Error().Err(err).Str("routing_key", routingKey).Msg("rabbitmq publish failed")
		return err
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = p.ch.Close()
	return p.conn.Close()
}

// noopPublisher logs what would have gone to the broker.
type noopPublisher struct {
	reason string
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	entry := logger.Debug().Str("routing_key", routingKey).Str("request_id", headers["x-request-id"])
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		entry = entry.Str("event_type", envelope.EventType).Str("action", envelope.Payload.Action)
	case observability.EventEnvelope:
		entry = entry.Str("event_type", envelope.EventType).Str("event_name", envelope.EventName)
	}
	entry.Msg("event not published")
	return nil
}

func (noopPublisher) Close() error { return nil }

// PublisherMode reports "amqp" or "noop" for startup logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why events are only logged; empty when connected.
func PublisherNoopReason(p Publisher) string {
	if noop, ok := p.(noopPublisher); ok {
		return noop.reason
	}
	return ""
}
