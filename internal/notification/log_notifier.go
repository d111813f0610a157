package notification

import (
	"context"
	"log/slog"
)

// LogNotifier writes every hook to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) BeforeSave(ctx context.Context, c Change) error {
	n.log(ctx, slog.LevelDebug, "before save", c)
	return nil
}

func (n *LogNotifier) AfterSave(ctx context.Context, c Change) error {
	n.log(ctx, slog.LevelInfo, "aggregate saved", c)
	return nil
}

func (n *LogNotifier) BeforeDelete(ctx context.Context, c Change) error {
	n.log(ctx, slog.LevelDebug, "before delete", c)
	return nil
}

func (n *LogNotifier) AfterDelete(ctx context.Context, c Change) error {
	n.log(ctx, slog.LevelInfo, "aggregate deleted", c)
	return nil
}

func (n *LogNotifier) OnFailure(ctx context.Context, c Change, cause error) error {
	n.logger.LogAttrs(ctx, slog.LevelWarn, "write failed",
		slog.String("aggregate_type", c.AggregateType),
		slog.String("aggregate_id", c.AggregateID),
		slog.Int("version", c.Version),
		slog.String("error", cause.Error()),
	)
	return nil
}

func (n *LogNotifier) log(ctx context.Context, level slog.Level, msg string, c Change) {
	n.logger.LogAttrs(ctx, level, msg,
		slog.String("aggregate_type", c.AggregateType),
		slog.String("aggregate_id", c.AggregateID),
		slog.Int("version", c.Version),
		slog.Int("events", len(c.Events)),
		slog.Bool("deleted", c.IsDeleted),
		slog.Bool("permanent", c.Permanent),
		slog.String("idempotency_id", c.IdempotencyID),
	)
}
