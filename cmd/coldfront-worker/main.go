package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/coldfront-labs/coldfront/internal/config"
	"github.com/coldfront-labs/coldfront/internal/delivery"
	"github.com/coldfront-labs/coldfront/internal/queue"
	"github.com/coldfront-labs/coldfront/internal/store/postgres"
)

// The worker runs the whole delivery pipeline: the dispatcher claims due
// planned sends and publishes jobs, the deliverer consumes them and sends
// over SMTP. With AMQP_URL set the two halves can be scaled separately;
// without it an in-process queue connects them.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := postgres.NewDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	sendStore := postgres.NewPlannedSendStore(db)
	senderStore := postgres.NewSenderAccountStore(db)

	var (
		pub  queue.Publisher
		cons queue.Consumer
	)
	if cfg.AMQPURL != "" {
		q, err := queue.NewAMQPQueue(cfg.AMQPURL)
		if err != nil {
			slog.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer q.Close()
		pub, cons = q, q
		slog.Info("delivery queue backed by rabbitmq")
	} else {
		q := queue.NewMemoryQueue(cfg.DispatcherBatchSize * 2)
		defer q.Close()
		pub, cons = q, q
		slog.Info("delivery queue running in process")
	}

	dispatcher := delivery.NewDispatcher(sendStore, pub, delivery.DispatcherOptions{
		PollInterval: time.Duration(cfg.DispatcherIntervalSeconds) * time.Second,
		BatchSize:    cfg.DispatcherBatchSize,
	})
	deliverer := delivery.NewDeliverer(sendStore, senderStore, cons, delivery.DelivererOptions{
		PerSenderRate: cfg.PerSenderRate,
		MaxAttempts:   cfg.MaxSendAttempts,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go dispatcher.Run(ctx)

	slog.Info("coldfront worker starting",
		"poll_interval_seconds", cfg.DispatcherIntervalSeconds,
		"batch_size", cfg.DispatcherBatchSize)

	if err := deliverer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("deliverer stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("worker shut down")
}
