// Command mail-worker drains the auth mail queue into a local outbox file.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/selenly/selenly-api/internal/config"
	"github.com/selenly/selenly-api/internal/queue"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg.Env).With("component", "mail-worker")

	if cfg.RabbitMQURL == "" {
		log.Error("RABBITMQ_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", "queue", cfg.MailQueue, "log_dir", cfg.MailLogDir)
	err := queue.StartMailConsumer(ctx, queue.ConsumerConfig{
		URL:    cfg.RabbitMQURL,
		Queue:  cfg.MailQueue,
		LogDir: cfg.MailLogDir,
		Logger: log,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", "err", err)
		os.Exit(1)
	}
	log.Info("stopped")
}
