// Package dynamo is the production storage backend: a single DynamoDB table
// holding the denormalized conversation index and message log described in
// keys.go.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// dynamodbAPI is the minimal DynamoDB interface required by Store.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store wraps the messenger DynamoDB table.
type Store struct {
	api   dynamodbAPI
	table string
	log   *slog.Logger

	// now is overridable in tests.
	now func() time.Time
}

// New creates a Store over the given table.
func New(api dynamodbAPI, table string, log *slog.Logger) (*Store, error) {
	if api == nil {
		return nil, errors.New("dynamo: api must not be nil")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("dynamo: table name must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{api: api, table: table, log: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

// conditionFailed reports whether err is a rejected conditional write, either
// on a plain put or inside a transaction.
func conditionFailed(err error) bool {
	var check *types.ConditionalCheckFailedException
	if errors.As(err, &check) {
		return true
	}
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return false
	}
	for _, reason := range canceled.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func optStrAttr(item map[string]types.AttributeValue, key string) string {
	s, _ := strAttr(item, key)
	return s
}

func uuidAttr(item map[string]types.AttributeValue, key string) (uuid.UUID, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return uuid.UUID{}, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return id, nil
}

// tsAttr decodes a UnixNano number attribute.
func tsAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	v, ok := item[key]
	if !ok {
		return time.Time{}, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return time.Time{}, fmt.Errorf("attribute %q is not a number", key)
	}
	nanos, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return time.Unix(0, nanos).UTC(), nil
}

func strVal(s string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s}
}

func tsVal(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UTC().UnixNano(), 10)}
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": strVal(pk),
		"SK": strVal(sk),
	}
}
