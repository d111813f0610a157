package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/example/eventvault/internal/infrastructure/kafka"
	"github.com/example/eventvault/internal/infrastructure/kinesis"
	"github.com/example/eventvault/internal/notification"
)

var (
	publisher notification.Publisher
	logger    *slog.Logger
)

func init() {
	logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

	brokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getEnv("KAFKA_TOPIC", "eventvault-changes")
	publisher = kafka.NewProducer(brokers, topic)

	logger.Info("[Lambda ChangeFeed] Initialized", slog.Any("brokers", brokers), slog.String("topic", topic))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	logger.Info("[Lambda ChangeFeed] Received records", slog.Int("count", len(kinesisEvent.Records)))

	messages, failures := kinesis.BatchConvertFromKinesisEvent(kinesisEvent, time.Now().UTC())

	var batchItemFailures []events.KinesisBatchItemFailure
	for seq, err := range failures {
		logger.Error("[Lambda ChangeFeed] Failed to convert record",
			slog.String("sequence", seq), slog.String("error", err.Error()))
		batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{ItemIdentifier: seq})
	}

	published := 0
	for _, msg := range messages {
		if err := publisher.Publish(ctx, msg.Change.AggregateID, msg); err != nil {
			logger.Error("[Lambda ChangeFeed] Failed to publish",
				slog.String("aggregate_id", msg.Change.AggregateID),
				slog.String("error", err.Error()))
			// Messages are folded across records, so retry the batch from its start.
			if len(kinesisEvent.Records) > 0 {
				batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
					ItemIdentifier: kinesisEvent.Records[0].Kinesis.SequenceNumber,
				})
			}
			break
		}
		published++
	}

	logger.Info("[Lambda ChangeFeed] Published messages",
		slog.Int("published", published), slog.Int("messages", len(messages)), slog.Int("failed_records", len(failures)))

	return events.KinesisEventResponse{BatchItemFailures: batchItemFailures}, nil
}

func main() {
	lambda.Start(handler)
}
