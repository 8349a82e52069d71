package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-idempotent-payflow/internal/aws"
)

// DynamoStore keeps payments in a DynamoDB table keyed by payment_key.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewDynamoStore creates a new payments DynamoStore.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

func (s *DynamoStore) Exists(ctx context.Context, tokenKey, payDay string) (bool, error) {
	rec, err := s.Get(ctx, tokenKey, payDay)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Get fetches a payment. Returns (nil, nil) if not found.
func (s *DynamoStore) Get(ctx context.Context, tokenKey, payDay string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"payment_key": &types.AttributeValueMemberS{Value: PaymentKey(tokenKey, payDay)},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}
	return &rec, nil
}

// Insert writes rec with attribute_not_exists(payment_key), so concurrent redeliveries race on
// the condition and exactly one wins.
func (s *DynamoStore) Insert(ctx context.Context, rec Record) error {
	if rec.PaymentKey == "" {
		rec.PaymentKey = PaymentKey(rec.TokenKey, rec.PayDay)
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal payment: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(payment_key)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		var apiErr smithy.APIError
		if errors.As(err, &ccf) || (errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException") {
			return ErrDuplicate
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool { return &b }
