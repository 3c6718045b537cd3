// Package rabbitmq publishes booking lifecycle events to a durable queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kirinyoku/busgo/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrClosed = errors.New("rabbitmq: publisher closed")

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url, queue string) (channel, io.Closer, error)

// Publisher keeps one connection and channel open and redials lazily
// after a failed publish.
type Publisher struct {
	url    string
	queue  string
	dial   dialFunc
	logger *slog.Logger

	mu     sync.Mutex
	ch     channel
	conn   io.Closer
	closed bool
}

func NewPublisher(url, queue string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{
		url:    url,
		queue:  queue,
		dial:   dial,
		logger: logger,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

func dial(url, queue string) (channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return ch, conn, nil
}

// connect must be called with p.mu held.
func (p *Publisher) connect() error {
	if p.ch != nil {
		return nil
	}

	ch, conn, err := p.dial(p.url, p.queue)
	if err != nil {
		return err
	}

	p.ch, p.conn = ch, conn
	return nil
}

// disconnect must be called with p.mu held.
func (p *Publisher) disconnect() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Publish sends evt as a persistent JSON message routed to the queue.
func (p *Publisher) Publish(ctx context.Context, evt domain.BookingEvent) error {
	const op = "rabbitmq.Publisher.Publish"

	msg, err := newPublishing(evt, time.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}

	if err := p.connect(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		msg,
	); err != nil {
		p.logger.Warn("rabbitmq publish failed, reconnecting on next publish", slog.Any("error", err))
		p.disconnect()
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	p.disconnect()
	return nil
}

func newPublishing(evt domain.BookingEvent, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%s:%s", evt.BookingID, evt.Type),
		Type:         string(evt.Type),
		Timestamp:    now.UTC(),
		Body:         body,
	}, nil
}
