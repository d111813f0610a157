package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	// DynamoMaxTransactItems is the service limit for TransactWriteItems.
	DynamoMaxTransactItems = 100
	dynamoMaxBatchWrite    = 25
	dynamoMaxBatchRetries  = 5
)

var ErrBatchTooLarge = errors.New("store: batch exceeds backend transaction limit")

// DynamoAPI is the subset of the DynamoDB client used by DynamoLogStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoLogStore stores rows in a DynamoDB table with partition key "pk" and
// sort key "sk". Inserts of event rows can be streamed to Kinesis through the
// table's Kinesis integration.
type DynamoLogStore struct {
	client    DynamoAPI
	tableName string
}

// dynamoRecord represents the DynamoDB item structure
type dynamoRecord struct {
	PK            string `dynamodbav:"pk"`
	SK            string `dynamodbav:"sk"`
	ETag          string `dynamodbav:"etag"`
	Version       int    `dynamodbav:"version"`
	IsDeleted     bool   `dynamodbav:"is_deleted"`
	AggregateType string `dynamodbav:"aggregate_type,omitempty"`
	EventType     string `dynamodbav:"event_type,omitempty"`
	IdempotencyID string `dynamodbav:"idempotency_id,omitempty"`
	UserID        string `dynamodbav:"user_id,omitempty"`
	When          string `dynamodbav:"when,omitempty"`
	Data          []byte `dynamodbav:"data,omitempty"`
}

func NewDynamoLogStore(client DynamoAPI, tableName string) *DynamoLogStore {
	return &DynamoLogStore{client: client, tableName: tableName}
}

func (s *DynamoLogStore) Get(ctx context.Context, partition, row string) (*Record, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            dynamoKey(partition, row),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var dr dynamoRecord
	if err := attributevalue.UnmarshalMap(result.Item, &dr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return dr.toRecord(), nil
}

// Commit writes all ops in one TransactWriteItems call. Conditional check
// failures are mapped to a ConflictError naming every failed op.
func (s *DynamoLogStore) Commit(ctx context.Context, ops []Op) error {
	if len(ops) > DynamoMaxTransactItems {
		return fmt.Errorf("%w: %d ops, limit %d", ErrBatchTooLarge, len(ops), DynamoMaxTransactItems)
	}

	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		av, err := attributevalue.MarshalMap(fromRecord(op.Record))
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		put := &types.Put{
			TableName: aws.String(s.tableName),
			Item:      av,
		}
		switch op.Kind {
		case OpInsert:
			put.ConditionExpression = aws.String("attribute_not_exists(pk) AND attribute_not_exists(sk)")
		case OpReplace:
			put.ConditionExpression = aws.String("etag = :etag")
			put.ExpressionAttributeValues = map[string]types.AttributeValue{
				":etag": &types.AttributeValueMemberS{Value: op.ExpectedToken},
			}
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err == nil {
		return nil
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		var failed []int
		for i, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				failed = append(failed, i)
			}
		}
		if len(failed) > 0 {
			return &ConflictError{Indexes: failed}
		}
	}
	return fmt.Errorf("failed to write transaction: %w", err)
}

func (s *DynamoLogStore) Query(ctx context.Context, partition, fromRow, toRow string) ([]Record, error) {
	// DynamoDB rejects empty key values, so an empty lower bound is dropped.
	condition := "pk = :pk AND sk BETWEEN :from AND :to"
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: partition},
		":to": &types.AttributeValueMemberS{Value: toRow},
	}
	if fromRow == "" {
		condition = "pk = :pk AND sk <= :to"
	} else {
		values[":from"] = &types.AttributeValueMemberS{Value: fromRow}
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    aws.String(condition),
		ExpressionAttributeValues: values,
		ConsistentRead:            aws.Bool(true),
		ScanIndexForward:          aws.Bool(true),
	})

	var out []Record
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query partition %s: %w", partition, err)
		}
		var items []dynamoRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items: %w", err)
		}
		for i := range items {
			out = append(out, *items[i].toRecord())
		}
	}
	return out, nil
}

// Delete removes rows with BatchWriteItem, 25 keys per request, retrying
// unprocessed items a bounded number of times.
func (s *DynamoLogStore) Delete(ctx context.Context, keys []Key) error {
	for start := 0; start < len(keys); start += dynamoMaxBatchWrite {
		end := min(start+dynamoMaxBatchWrite, len(keys))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: dynamoKey(k.Partition, k.Row)},
			})
		}

		pending := map[string][]types.WriteRequest{s.tableName: requests}
		for attempt := 0; len(pending[s.tableName]) > 0; attempt++ {
			if attempt >= dynamoMaxBatchRetries {
				return fmt.Errorf("failed to delete %d items after %d attempts", len(pending[s.tableName]), attempt)
			}
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return fmt.Errorf("failed to delete items: %w", err)
			}
			pending = out.UnprocessedItems
		}
	}
	return nil
}

func dynamoKey(partition, row string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: partition},
		"sk": &types.AttributeValueMemberS{Value: row},
	}
}

func fromRecord(r Record) dynamoRecord {
	dr := dynamoRecord{
		PK:            r.Partition,
		SK:            r.Row,
		ETag:          r.Token,
		Version:       r.Version,
		IsDeleted:     r.IsDeleted,
		AggregateType: r.AggregateType,
		EventType:     r.EventType,
		IdempotencyID: r.IdempotencyID,
		UserID:        r.UserID,
		Data:          r.Data,
	}
	if !r.When.IsZero() {
		dr.When = r.When.UTC().Format(time.RFC3339Nano)
	}
	return dr
}

func (dr dynamoRecord) toRecord() *Record {
	r := &Record{
		Partition:     dr.PK,
		Row:           dr.SK,
		Token:         dr.ETag,
		Version:       dr.Version,
		IsDeleted:     dr.IsDeleted,
		AggregateType: dr.AggregateType,
		EventType:     dr.EventType,
		IdempotencyID: dr.IdempotencyID,
		UserID:        dr.UserID,
		Data:          dr.Data,
	}
	if dr.When != "" {
		r.When, _ = time.Parse(time.RFC3339Nano, dr.When)
	}
	return r
}
