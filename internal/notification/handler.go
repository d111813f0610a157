package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
)

// Handler consumes change-feed messages and replays them onto a Notifier.
type Handler struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewHandler creates a new notification handler
func NewHandler(notifier Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{notifier: notifier, logger: logger}
}

// HandleMessage processes a message from Kafka
func (h *Handler) HandleMessage(ctx context.Context, key, value []byte) error {
	var msg Message
	if err := json.Unmarshal(value, &msg); err != nil {
		h.logger.Error("[Notifier] failed to unmarshal message",
			slog.String("key", string(key)),
			slog.String("error", err.Error()))
		return err
	}

	switch msg.Kind {
	case KindSaved:
		return h.notifier.AfterSave(ctx, msg.Change)
	case KindDeleted:
		return h.notifier.AfterDelete(ctx, msg.Change)
	case KindFailed:
		return h.notifier.OnFailure(ctx, msg.Change, errors.New(msg.Error))
	default:
		return fmt.Errorf("unknown message kind %q", msg.Kind)
	}
}
