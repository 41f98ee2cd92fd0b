package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/selenly/selenly-api/internal/model"
)

// Publisher keeps one connection and channel open to the broker and
// re-dials lazily when the broker dropped them.
type Publisher struct {
	url   string
	queue string
	log   *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials url and declares the durable queue.
func NewPublisher(url, queue string, log *slog.Logger) (*Publisher, error) {
	const op = "queue.NewPublisher"
	if queue == "" {
		queue = DefaultMailQueue
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{url: url, queue: queue, log: log}
	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// connect must be called with mu held (or before p is shared).
func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish sends ev as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev MailEvent) error {
	const op = "queue.Publish"

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.ch == nil || p.ch.IsClosed() {
		p.log.Warn("rabbitmq: connection lost, redialing", "queue", p.queue)
		p.closeLocked()
		if err := p.connect(); err != nil {
			return fmt.Errorf("%s: redial: %w", op, err)
		}
	}

	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// NotifyOneTimeToken queues a mail carrying token for email.
func (p *Publisher) NotifyOneTimeToken(ctx context.Context, kind model.OneTimeKind, email, token string, expiresAt time.Time) error {
	return p.Publish(ctx, MailEvent{
		Kind:      string(kind),
		UserEmail: email,
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		IssuedAt:  time.Now().UTC(),
	})
}

// Close releases the channel and connection.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
