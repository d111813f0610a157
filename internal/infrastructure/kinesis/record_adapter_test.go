package kinesis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/eventvault/internal/notification"
)

var when = time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)

func eventImage(pk string, version int, eventType, idem string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"pk":             events.NewStringAttribute(pk),
		"sk":             events.NewStringAttribute(fmt.Sprintf("Event-%010d", version)),
		"etag":           events.NewStringAttribute(""),
		"version":        events.NewNumberAttribute(strconv.Itoa(version)),
		"is_deleted":     events.NewBooleanAttribute(false),
		"aggregate_type": events.NewStringAttribute("Counter"),
		"event_type":     events.NewStringAttribute(eventType),
		"idempotency_id": events.NewStringAttribute(idem),
		"user_id":        events.NewStringAttribute("user-1"),
		"when":           events.NewStringAttribute(when.Format(time.RFC3339Nano)),
		"data":           events.NewBinaryAttribute([]byte(`{"by":1}`)),
	}
}

func streamImage(pk string, version int) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"pk":             events.NewStringAttribute(pk),
		"sk":             events.NewStringAttribute("StreamVersion"),
		"etag":           events.NewStringAttribute("token-1"),
		"version":        events.NewNumberAttribute(strconv.Itoa(version)),
		"is_deleted":     events.NewBooleanAttribute(false),
		"aggregate_type": events.NewStringAttribute("Counter"),
	}
}

func kinesisRecord(t *testing.T, seq string, record events.DynamoDBEventRecord) events.KinesisEventRecord {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	return events.KinesisEventRecord{
		EventID: "kinesis-" + seq,
		Kinesis: events.KinesisRecord{Data: data, SequenceNumber: seq},
	}
}

func TestConvertDynamoDBImage(t *testing.T) {
	tests := []struct {
		name    string
		image   map[string]events.DynamoDBAttributeValue
		wantErr bool
	}{
		{
			name:  "event row",
			image: eventImage("c-1", 1, "CounterIncremented", "req-1"),
		},
		{
			name:    "nil image",
			image:   nil,
			wantErr: true,
		},
		{
			name: "missing keys",
			image: map[string]events.DynamoDBAttributeValue{
				"pk": events.NewStringAttribute("c-1"),
			},
			wantErr: true,
		},
		{
			name: "bad timestamp",
			image: map[string]events.DynamoDBAttributeValue{
				"pk":   events.NewStringAttribute("c-1"),
				"sk":   events.NewStringAttribute("Event-0000000001"),
				"when": events.NewStringAttribute("yesterday"),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := convertDynamoDBImage("INSERT", tt.image)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, row)
			assert.Equal(t, "c-1", row.Partition)
			assert.Equal(t, "Event-0000000001", row.Key)
			assert.Equal(t, 1, row.Version)
			assert.Equal(t, "Counter", row.AggregateType)
			assert.Equal(t, "CounterIncremented", row.EventType)
			assert.Equal(t, "req-1", row.IdempotencyID)
			assert.True(t, when.Equal(row.When))
			assert.True(t, row.IsEvent())
		})
	}
}

func TestConvertFromDynamoDBStreamRecord(t *testing.T) {
	t.Run("MODIFY returns nil", func(t *testing.T) {
		row, err := ConvertFromDynamoDBStreamRecord(events.DynamoDBEventRecord{
			EventName: "MODIFY",
			Change:    events.DynamoDBStreamRecord{NewImage: streamImage("c-1", 2)},
		})
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("stream row insert is not an event", func(t *testing.T) {
		row, err := ConvertFromDynamoDBStreamRecord(events.DynamoDBEventRecord{
			EventName: "INSERT",
			Change:    events.DynamoDBStreamRecord{NewImage: streamImage("c-1", 1)},
		})
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.False(t, row.IsEvent())
		assert.False(t, row.IsErase())
	})

	t.Run("stream row removal is an erase", func(t *testing.T) {
		row, err := ConvertFromDynamoDBStreamRecord(events.DynamoDBEventRecord{
			EventName: "REMOVE",
			Change:    events.DynamoDBStreamRecord{OldImage: streamImage("c-1", 4)},
		})
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.True(t, row.IsErase())
		assert.Equal(t, 4, row.Version)
	})
}

func TestBatchConvertFromKinesisEvent(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	insert := func(image map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
		return events.DynamoDBEventRecord{EventName: "INSERT", Change: events.DynamoDBStreamRecord{NewImage: image}}
	}

	batch := events.KinesisEvent{
		Records: []events.KinesisEventRecord{
			kinesisRecord(t, "1", insert(eventImage("c-1", 2, "CounterRenamed", "req-1"))),
			kinesisRecord(t, "2", insert(streamImage("c-1", 2))),
			kinesisRecord(t, "3", insert(eventImage("c-1", 1, "CounterIncremented", "req-1"))),
			kinesisRecord(t, "4", insert(eventImage("c-2", 3, "$deleted", "req-2"))),
			kinesisRecord(t, "5", events.DynamoDBEventRecord{
				EventName: "REMOVE",
				Change:    events.DynamoDBStreamRecord{OldImage: streamImage("c-3", 5)},
			}),
			{EventID: "bad", Kinesis: events.KinesisRecord{Data: []byte("invalid json"), SequenceNumber: "6"}},
		},
	}

	messages, failures := BatchConvertFromKinesisEvent(batch, now)
	require.Len(t, failures, 1)
	assert.Contains(t, failures, "6")
	require.Len(t, messages, 3)

	erased := messages[0]
	assert.Equal(t, notification.KindDeleted, erased.Kind)
	assert.Equal(t, "c-3", erased.Change.AggregateID)
	assert.True(t, erased.Change.Permanent)

	saved := messages[1]
	assert.Equal(t, notification.KindSaved, saved.Kind)
	assert.Equal(t, "c-1", saved.Change.AggregateID)
	assert.Equal(t, "req-1", saved.Change.IdempotencyID)
	assert.Equal(t, "user-1", saved.Change.UserID)
	assert.Equal(t, 2, saved.Change.Version)
	require.Len(t, saved.Change.Events, 2)
	assert.Equal(t, "CounterIncremented", saved.Change.Events[0].TypeName)
	assert.Equal(t, "CounterRenamed", saved.Change.Events[1].TypeName)
	assert.Equal(t, now, saved.PublishedAt)

	deleted := messages[2]
	assert.Equal(t, notification.KindDeleted, deleted.Kind)
	assert.True(t, deleted.Change.IsDeleted)
	assert.False(t, deleted.Change.Permanent)
}
