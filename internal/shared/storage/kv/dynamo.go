package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore implements Store on a table keyed by PK (namespace) and SK (key).
type DynamoStore struct {
	DB    DynamoAPI
	Table string
	Now   func() time.Time
}

type dynamoItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Value     string `dynamodbav:"value"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

func keyAttrs(namespace, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: namespace},
		"SK": &types.AttributeValueMemberS{Value: key},
	}
}

// Get returns the value stored under key.
func (s *DynamoStore) Get(ctx context.Context, namespace, key string) (string, error) {
	out, err := s.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.Table),
		Key:            keyAttrs(namespace, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("dynamodb get item table=%s: %w", s.Table, err)
	}
	if len(out.Item) == 0 {
		return "", ErrNotFound
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", fmt.Errorf("dynamodb unmarshal: %w", err)
	}
	return item.Value, nil
}

// Set writes value under key, replacing any previous value.
func (s *DynamoStore) Set(ctx context.Context, namespace, key, value string) error {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:        namespace,
		SK:        key,
		Value:     value,
		UpdatedAt: now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if _, err := s.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.Table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put item table=%s: %w", s.Table, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *DynamoStore) Delete(ctx context.Context, namespace, key string) error {
	if _, err := s.DB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.Table),
		Key:       keyAttrs(namespace, key),
	}); err != nil {
		return fmt.Errorf("dynamodb delete item table=%s: %w", s.Table, err)
	}
	return nil
}

// List queries the namespace partition by the pattern's literal prefix and filters the rest locally.
func (s *DynamoStore) List(ctx context.Context, namespace, pattern string, includeValues bool) ([]Entry, error) {
	items, err := s.query(ctx, namespace, LiteralPrefix(pattern))
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(items))
	for _, item := range items {
		if !Match(pattern, item.SK) {
			continue
		}
		e := Entry{Key: item.SK}
		if includeValues {
			e.Value = item.Value
		}
		out = append(out, e)
	}
	return out, nil
}

// Flush deletes every item in the namespace partition.
func (s *DynamoStore) Flush(ctx context.Context, namespace string) error {
	items, err := s.query(ctx, namespace, "")
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.Delete(ctx, namespace, item.SK); err != nil {
			return err
		}
	}
	return nil
}

func (s *DynamoStore) query(ctx context.Context, namespace, prefix string) ([]dynamoItem, error) {
	input := &dynamodb.QueryInput{
		TableName:                aws.String(s.Table),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": "PK"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: namespace},
		},
		ConsistentRead: aws.Bool(true),
	}
	if prefix != "" {
		input.KeyConditionExpression = aws.String("#pk = :pk AND begins_with(#sk, :prefix)")
		input.ExpressionAttributeNames["#sk"] = "SK"
		input.ExpressionAttributeValues[":prefix"] = &types.AttributeValueMemberS{Value: prefix}
	}

	var items []dynamoItem
	paginator := dynamodb.NewQueryPaginator(s.DB, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb query table=%s: %w", s.Table, err)
		}
		var batch []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("dynamodb unmarshal: %w", err)
		}
		items = append(items, batch...)
	}
	return items, nil
}

var _ Store = (*DynamoStore)(nil)
