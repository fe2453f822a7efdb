package kv

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type fakeDynamo struct {
	mu      sync.Mutex
	items   map[string]map[string]dynamoItem
	queries []*dynamodb.QueryInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]dynamoItem{}}
}

func attrS(m map[string]types.AttributeValue, key string) string {
	if v, ok := m[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[attrS(in.Key, "PK")][attrS(in.Key, "SK")]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: av}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(in.Item, &item); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items[item.PK] == nil {
		f.items[item.PK] = map[string]dynamoItem{}
	}
	f.items[item.PK][item.SK] = item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items[attrS(in.Key, "PK")], attrS(in.Key, "SK"))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, in)
	pk := attrS(in.ExpressionAttributeValues, ":pk")
	prefix := attrS(in.ExpressionAttributeValues, ":prefix")

	keys := make([]string, 0)
	for sk := range f.items[pk] {
		if strings.HasPrefix(sk, prefix) {
			keys = append(keys, sk)
		}
	}
	sort.Strings(keys)
	out := &dynamodb.QueryOutput{}
	for _, sk := range keys {
		av, err := attributevalue.MarshalMap(f.items[pk][sk])
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, av)
	}
	return out, nil
}

func TestDynamoStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	store := &DynamoStore{DB: fake, Table: "submissions"}

	if err := store.Set(ctx, "ns", "resume:1", "one"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "ns", "resume:2", "two"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "ns", "config", "x"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := store.Get(ctx, "ns", "resume:2")
	if err != nil || got != "two" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	entries, err := store.List(ctx, "ns", "resume:*", true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].Value != "one" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	last := fake.queries[len(fake.queries)-1]
	if attrS(last.ExpressionAttributeValues, ":prefix") != "resume:" {
		t.Fatalf("expected begins_with prefix pushed down, got %+v", last.ExpressionAttributeValues)
	}

	if err := store.Flush(ctx, "ns"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := store.Get(ctx, "ns", "config"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after flush, got %v", err)
	}
}
