package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	modeAMQP = "amqp"
	modeNoop = "noop"
)

// Publisher publishes JSON events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// NewPublisher connects to the broker and declares the exchange. When the
// URL is empty or the broker is unreachable it returns a publisher that only
// logs, so the service keeps running without an event bus.
func NewPublisher(amqpURL, exchange string, log *slog.Logger) Publisher {
	if amqpURL == "" {
		return newNoop("empty amqp url", log)
	}
	p, err := dial(amqpURL, exchange, log)
	if err != nil {
		return newNoop(err.Error(), log)
	}
	log.Info("rabbitmq connected", "exchange", exchange)
	return p
}

type amqpPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *slog.Logger
}

func dial(amqpURL, exchange string, log *slog.Logger) (*amqpPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	p := &amqpPublisher{conn: conn, exchange: exchange, log: log}
	if err := p.openChannel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *amqpPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.ch = ch
	return nil
}

// Publish sends event as a persistent JSON message. A channel closed by the
// broker is reopened once.
func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      toTable(headers),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) && !p.conn.IsClosed() {
		if reopenErr := p.openChannel(); reopenErr != nil {
			return reopenErr
		}
		err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	}
	if err != nil {
		p.log.Error("rabbitmq publish failed", "routing_key", routingKey, "error", err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}

func (p *amqpPublisher) mode() (string, string) { return modeAMQP, "" }

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	table := make(amqp.Table, len(headers))
	for key, value := range headers {
		table[key] = value
	}
	return table
}

type noopPublisher struct {
	reason string
	log    *slog.Logger
}

func newNoop(reason string, log *slog.Logger) *noopPublisher {
	log.Warn("rabbitmq disabled, events are only logged", "reason", reason)
	return &noopPublisher{reason: reason, log: log}
}

func (p *noopPublisher) Publish(_ context.Context, routingKey string, _ any, headers map[string]string) error {
	p.log.Debug("rabbitmq noop publish", "routing_key", routingKey, "request_id", headers["x-request-id"])
	return nil
}

func (*noopPublisher) Close() error { return nil }

func (p *noopPublisher) mode() (string, string) { return modeNoop, p.reason }

type modeReporter interface {
	mode() (string, string)
}

// PublisherMode reports "amqp" or "noop" for startup logs.
func PublisherMode(p Publisher) string {
	if r, ok := p.(modeReporter); ok {
		mode, _ := r.mode()
		return mode
	}
	return "unknown"
}

// PublisherNoopReason explains why events are not reaching the broker.
func PublisherNoopReason(p Publisher) string {
	if r, ok := p.(modeReporter); ok {
		_, reason := r.mode()
		return reason
	}
	return ""
}
