package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/example/eventvault/internal/infrastructure/kafka"
	"github.com/example/eventvault/internal/notification"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	kafkaBrokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	kafkaTopic := getEnv("KAFKA_TOPIC", "eventvault-changes")
	consumerGroup := getEnv("KAFKA_GROUP_ID", "eventvault-notifier")

	logger.Info("[Notifier] Starting change feed consumer",
		slog.Any("brokers", kafkaBrokers),
		slog.String("topic", kafkaTopic),
		slog.String("group", consumerGroup))

	handler := notification.NewHandler(notification.NewLogNotifier(logger), logger)

	consumer := kafka.NewConsumer(kafkaBrokers, kafkaTopic, consumerGroup, logger)
	defer consumer.Close()

	go func() {
		if err := consumer.Consume(ctx, handler.HandleMessage); err != nil && ctx.Err() == nil {
			logger.Error("[Notifier] Consumer error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	logger.Info("[Notifier] Shutting down...")
	cancel()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
