package kinesis

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/example/eventvault/internal/event"
	"github.com/example/eventvault/internal/eventstore"
	"github.com/example/eventvault/internal/notification"
)

// Row is one DynamoDB stream change of the event log table, reduced to the
// attributes the change feed needs.
type Row struct {
	Operation     string
	Partition     string
	Key           string
	Version       int
	AggregateType string
	EventType     string
	IdempotencyID string
	UserID        string
	When          time.Time
}

// IsEvent reports whether the row is an inserted event. Stream-version rows
// and idempotency markers carry no event type.
func (r Row) IsEvent() bool {
	return r.Operation == "INSERT" && r.EventType != ""
}

// IsErase reports whether the row is the removal of a stream-version row,
// which only happens when an aggregate is permanently deleted.
func (r Row) IsErase() bool {
	return r.Operation == "REMOVE" && r.Key == eventstore.StreamRowKey
}

// ConvertFromKinesisRecord converts a Kinesis record (DynamoDB Streams format) to a Row.
// DynamoDB Kinesis integration sends records in DynamoDB Streams format.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*Row, error) {
	var dynamoDBRecord events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &dynamoDBRecord); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DynamoDB record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(dynamoDBRecord)
}

// ConvertFromDynamoDBStreamRecord converts a DynamoDB Stream record to a Row.
// Modifications return nil: they only touch stream-version rows.
func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*Row, error) {
	switch record.EventName {
	case "INSERT":
		return convertDynamoDBImage(record.EventName, record.Change.NewImage)
	case "REMOVE":
		return convertDynamoDBImage(record.EventName, record.Change.OldImage)
	}
	return nil, nil
}

// convertDynamoDBImage extracts row data from DynamoDB attribute values.
func convertDynamoDBImage(operation string, image map[string]events.DynamoDBAttributeValue) (*Row, error) {
	if image == nil {
		return nil, fmt.Errorf("DynamoDB image is nil")
	}

	row := &Row{
		Operation:     operation,
		Partition:     stringAttr(image, "pk"),
		Key:           stringAttr(image, "sk"),
		AggregateType: stringAttr(image, "aggregate_type"),
		EventType:     stringAttr(image, "event_type"),
		IdempotencyID: stringAttr(image, "idempotency_id"),
		UserID:        stringAttr(image, "user_id"),
	}
	if v, ok := image["version"]; ok && v.DataType() == events.DataTypeNumber {
		version, err := v.Integer()
		if err != nil {
			return nil, fmt.Errorf("failed to parse version: %w", err)
		}
		row.Version = int(version)
	}
	if when := stringAttr(image, "when"); when != "" {
		t, err := time.Parse(time.RFC3339Nano, when)
		if err != nil {
			return nil, fmt.Errorf("failed to parse when: %w", err)
		}
		row.When = t
	}

	if row.Partition == "" || row.Key == "" {
		return nil, fmt.Errorf("missing required fields: pk=%s, sk=%s", row.Partition, row.Key)
	}
	return row, nil
}

func stringAttr(image map[string]events.DynamoDBAttributeValue, name string) string {
	v, ok := image[name]
	if !ok || v.DataType() != events.DataTypeString {
		return ""
	}
	return v.String()
}

// BatchConvertFromKinesisEvent turns a Kinesis batch into change-feed
// messages. Event inserts of one save share an aggregate and an idempotency
// id and are folded into a single message; stream-row removals become
// permanent-delete messages. The second return value maps each failed record
// to its error, keyed by sequence number.
func BatchConvertFromKinesisEvent(kinesisEvent events.KinesisEvent, now time.Time) ([]notification.Message, map[string]error) {
	type saveKey struct{ partition, idempotencyID string }

	var (
		order    []saveKey
		saves    = make(map[saveKey]*notification.Message)
		messages []notification.Message
		failures = make(map[string]error)
	)

	for _, record := range kinesisEvent.Records {
		row, err := ConvertFromKinesisRecord(record)
		if err != nil {
			failures[record.Kinesis.SequenceNumber] = fmt.Errorf("record %s: %w", record.EventID, err)
			continue
		}
		if row == nil {
			continue
		}

		switch {
		case row.IsErase():
			messages = append(messages, notification.Message{
				Kind: notification.KindDeleted,
				Change: notification.Change{
					AggregateType: row.AggregateType,
					AggregateID:   row.Partition,
					Version:       row.Version,
					IsDeleted:     true,
					Permanent:     true,
				},
				PublishedAt: now,
			})
		case row.IsEvent():
			key := saveKey{row.Partition, row.IdempotencyID}
			msg, ok := saves[key]
			if !ok {
				msg = &notification.Message{
					Kind: notification.KindSaved,
					Change: notification.Change{
						AggregateType: row.AggregateType,
						AggregateID:   row.Partition,
						IdempotencyID: row.IdempotencyID,
						UserID:        row.UserID,
					},
					PublishedAt: now,
				}
				saves[key] = msg
				order = append(order, key)
			}
			addEvent(msg, row)
		}
	}

	for _, key := range order {
		messages = append(messages, *saves[key])
	}
	return messages, failures
}

func addEvent(msg *notification.Message, row *Row) {
	c := &msg.Change
	c.Events = append(c.Events, notification.EventHeader{
		Version:  row.Version,
		TypeName: row.EventType,
		When:     row.When,
	})
	sort.Slice(c.Events, func(i, j int) bool { return c.Events[i].Version < c.Events[j].Version })
	c.Version = max(c.Version, row.Version)

	switch row.EventType {
	case event.DeletedName:
		msg.Kind = notification.KindDeleted
		c.IsDeleted = true
	case event.RestoredName:
		msg.Kind = notification.KindSaved
		c.IsDeleted = false
	}
}
