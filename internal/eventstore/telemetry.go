package eventstore

import (
	"context"
	"log/slog"
	"time"
)

// Telemetry receives the engine's operational signals. Implementations must
// be safe for concurrent use.
type Telemetry interface {
	SkippedUnknownEvent(ctx context.Context, aggregateType, aggregateID string, version int, typeName string)
	CacheFailure(ctx context.Context, op, aggregateID string, err error)
	SnapshotFailure(ctx context.Context, aggregateType, aggregateID string, err error)
	OverflowFailure(ctx context.Context, aggregateType, aggregateID string, err error)
	Committed(ctx context.Context, aggregateType, aggregateID string, events int, elapsed time.Duration)
}

// LogTelemetry reports signals as structured log records.
type LogTelemetry struct {
	logger *slog.Logger
}

func NewLogTelemetry(logger *slog.Logger) *LogTelemetry {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTelemetry{logger: logger}
}

func (t *LogTelemetry) SkippedUnknownEvent(ctx context.Context, aggregateType, aggregateID string, version int, typeName string) {
	t.logger.LogAttrs(ctx, slog.LevelWarn, "skipped unknown event",
		slog.String("aggregate_type", aggregateType),
		slog.String("aggregate_id", aggregateID),
		slog.Int("version", version),
		slog.String("event_type", typeName),
	)
}

func (t *LogTelemetry) CacheFailure(ctx context.Context, op, aggregateID string, err error) {
	t.logger.LogAttrs(ctx, slog.LevelWarn, "cache operation failed",
		slog.String("op", op),
		slog.String("aggregate_id", aggregateID),
		slog.String("error", err.Error()),
	)
}

func (t *LogTelemetry) SnapshotFailure(ctx context.Context, aggregateType, aggregateID string, err error) {
	t.logger.LogAttrs(ctx, slog.LevelWarn, "snapshot unavailable",
		slog.String("aggregate_type", aggregateType),
		slog.String("aggregate_id", aggregateID),
		slog.String("error", err.Error()),
	)
}

func (t *LogTelemetry) OverflowFailure(ctx context.Context, aggregateType, aggregateID string, err error) {
	t.logger.LogAttrs(ctx, slog.LevelError, "large event upload failed",
		slog.String("aggregate_type", aggregateType),
		slog.String("aggregate_id", aggregateID),
		slog.String("error", err.Error()),
	)
}

func (t *LogTelemetry) Committed(ctx context.Context, aggregateType, aggregateID string, events int, elapsed time.Duration) {
	t.logger.LogAttrs(ctx, slog.LevelDebug, "events committed",
		slog.String("aggregate_type", aggregateType),
		slog.String("aggregate_id", aggregateID),
		slog.Int("events", events),
		slog.Duration("elapsed", elapsed),
	)
}
