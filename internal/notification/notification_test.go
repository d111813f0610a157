package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys   []string
	values []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, value any) error {
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return p.err
}

func sampleChange() Change {
	return Change{
		AggregateType: "Counter",
		AggregateID:   "c-1",
		Version:       3,
		IdempotencyID: "idem-1",
		Events:        []EventHeader{{Version: 3, TypeName: "CounterIncremented"}},
	}
}

// ============================================
// KafkaNotifier Tests
// ============================================

func TestKafkaNotifier_PublishesAfterHooks(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewKafkaNotifier(pub)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return fixed }
	ctx := context.Background()

	require.NoError(t, n.BeforeSave(ctx, sampleChange()))
	require.NoError(t, n.AfterSave(ctx, sampleChange()))
	require.NoError(t, n.AfterDelete(ctx, sampleChange()))
	require.NoError(t, n.OnFailure(ctx, sampleChange(), errors.New("conflict")))

	require.Len(t, pub.values, 3)
	assert.Equal(t, []string{"c-1", "c-1", "c-1"}, pub.keys)

	saved := pub.values[0].(Message)
	assert.Equal(t, KindSaved, saved.Kind)
	assert.Equal(t, fixed, saved.PublishedAt)
	assert.Equal(t, KindDeleted, pub.values[1].(Message).Kind)

	failed := pub.values[2].(Message)
	assert.Equal(t, KindFailed, failed.Kind)
	assert.Equal(t, "conflict", failed.Error)
}

func TestKafkaNotifier_PublishError(t *testing.T) {
	n := NewKafkaNotifier(&recordingPublisher{err: errors.New("down")})
	assert.Error(t, n.AfterSave(context.Background(), sampleChange()))
}

// ============================================
// Handler Tests
// ============================================

type captureNotifier struct {
	Nop
	saved   []Change
	deleted []Change
	failed  []error
}

func (c *captureNotifier) AfterSave(_ context.Context, ch Change) error {
	c.saved = append(c.saved, ch)
	return nil
}

func (c *captureNotifier) AfterDelete(_ context.Context, ch Change) error {
	c.deleted = append(c.deleted, ch)
	return nil
}

func (c *captureNotifier) OnFailure(_ context.Context, _ Change, cause error) error {
	c.failed = append(c.failed, cause)
	return nil
}

func TestHandler_Dispatch(t *testing.T) {
	capture := &captureNotifier{}
	h := NewHandler(capture, nil)
	ctx := context.Background()

	for _, msg := range []Message{
		{Kind: KindSaved, Change: sampleChange()},
		{Kind: KindDeleted, Change: sampleChange()},
		{Kind: KindFailed, Change: sampleChange(), Error: "boom"},
	} {
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		require.NoError(t, h.HandleMessage(ctx, []byte("c-1"), data))
	}

	require.Len(t, capture.saved, 1)
	assert.Equal(t, sampleChange(), capture.saved[0])
	assert.Len(t, capture.deleted, 1)
	require.Len(t, capture.failed, 1)
	assert.EqualError(t, capture.failed[0], "boom")
}

func TestHandler_BadMessages(t *testing.T) {
	h := NewHandler(Nop{}, nil)

	assert.Error(t, h.HandleMessage(context.Background(), nil, []byte("{")))
	assert.Error(t, h.HandleMessage(context.Background(), nil, []byte(`{"kind":"other"}`)))
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(nil)
	ctx := context.Background()

	assert.NoError(t, n.BeforeSave(ctx, sampleChange()))
	assert.NoError(t, n.AfterSave(ctx, sampleChange()))
	assert.NoError(t, n.BeforeDelete(ctx, sampleChange()))
	assert.NoError(t, n.AfterDelete(ctx, sampleChange()))
	assert.NoError(t, n.OnFailure(ctx, sampleChange(), errors.New("x")))
}
