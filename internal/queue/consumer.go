package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MailLogFile is the outbox file written by the consumer, relative to its
// log directory.
const MailLogFile = "mail.log"

// ConsumerConfig configures StartMailConsumer.
type ConsumerConfig struct {
	URL    string
	Queue  string
	LogDir string
	Logger *slog.Logger
}

// StartMailConsumer connects to RabbitMQ, declares the mail queue (durable)
// and appends every event to LogDir/mail.log. It reconnects with backoff
// until ctx is cancelled, then returns ctx.Err().
func StartMailConsumer(ctx context.Context, cfg ConsumerConfig) error {
	if cfg.Queue == "" {
		cfg.Queue = DefaultMailQueue
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	backoff := time.Second
	for {
		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			log.Warn("mail-consumer: failed to dial broker", "err", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, cfg, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("mail-consumer: consume loop ended, reconnecting", "err", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, cfg ConsumerConfig, log *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("mail-consumer: set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Info("mail-consumer: consuming", "queue", cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(d.Body, cfg.LogDir, time.Now().UTC()); err != nil {
				log.Error("mail-consumer: handle message failed", "err", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(body []byte, dir string, now time.Time) error {
	var ev MailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.UserEmail == "" || ev.Token == "" {
		return errors.New("event without recipient or token")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, MailLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open mail log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s | to=%s | token=%s | expires_at=%s\n",
		now.Format(time.RFC3339), subject(ev.Kind), ev.UserEmail, ev.Token, ev.ExpiresAt.UTC().Format(time.RFC3339))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write mail log: %w", err)
	}
	return nil
}

func subject(kind string) string {
	switch kind {
	case "password_reset":
		return "Reset your Selenly password"
	case "email_verification":
		return "Verify your Selenly email"
	}
	return "Selenly notification (" + kind + ")"
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
