package notification

import (
	"context"
	"time"
)

// Publisher sends a JSON message keyed by aggregate id.
type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// KafkaNotifier publishes committed changes and failures to the change feed.
// Before hooks publish nothing.
type KafkaNotifier struct {
	publisher Publisher
	now       func() time.Time
}

func NewKafkaNotifier(publisher Publisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher, now: time.Now}
}

func (n *KafkaNotifier) BeforeSave(context.Context, Change) error   { return nil }
func (n *KafkaNotifier) BeforeDelete(context.Context, Change) error { return nil }

func (n *KafkaNotifier) AfterSave(ctx context.Context, c Change) error {
	return n.publish(ctx, Message{Kind: KindSaved, Change: c})
}

func (n *KafkaNotifier) AfterDelete(ctx context.Context, c Change) error {
	return n.publish(ctx, Message{Kind: KindDeleted, Change: c})
}

func (n *KafkaNotifier) OnFailure(ctx context.Context, c Change, cause error) error {
	return n.publish(ctx, Message{Kind: KindFailed, Change: c, Error: cause.Error()})
}

func (n *KafkaNotifier) publish(ctx context.Context, msg Message) error {
	msg.PublishedAt = n.now().UTC()
	return n.publisher.Publish(ctx, msg.Change.AggregateID, msg)
}
