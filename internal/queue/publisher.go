package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/shopease/shop-ease-backend/internal/config"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// Publisher sends SessionEvents to a durable queue.  The connection is
// dialed lazily and reused; a broken connection is dropped and redialed on
// the next Publish.
type Publisher struct {
	url   string
	queue string
	log   *zap.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewPublisher(cfg config.EventsConfig, log *zap.Logger) *Publisher {
	return &Publisher{url: cfg.URL, queue: cfg.Queue, log: log}
}

// Publish marshals ev and publishes it as a persistent message.
func (p *Publisher) Publish(ctx context.Context, ev SessionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Type:         ev.Type,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		p.log.Warn("rabbitmq: publish failed", zap.String("event_id", ev.ID), zap.Error(err))
		p.reset()
		return err
	}
	return nil
}

// channel returns an open channel, dialing when needed.  Callers hold p.mu.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the connection.  It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.reset()
	return nil
}
