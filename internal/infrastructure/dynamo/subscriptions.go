package dynamo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/appointment-watch/internal/domain"
	"github.com/appointment-watch/internal/pkg/id"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SubscriptionRepo stores watch records.
// PK: partition_key, SK: row_key. GSI notification_mail-index on the notification address.
type SubscriptionRepo struct {
	client    API
	tableName string
	now       func() time.Time
	logger    *slog.Logger
}

func NewSubscriptionRepo(client API, tableName string) *SubscriptionRepo {
	return &SubscriptionRepo{client: client, tableName: tableName, now: time.Now, logger: slog.Default()}
}

// ScanActive returns up to maxCount enabled records, following Scan pages
// until enough are collected or the table is exhausted. A record that cannot
// be decoded is logged and skipped.
func (r *SubscriptionRepo) ScanActive(ctx context.Context, maxCount int) ([]domain.Subscription, error) {
	if maxCount <= 0 {
		return nil, nil
	}
	input := &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#e = :t"),
		ExpressionAttributeNames: map[string]string{"#e": domain.AttrEnabled},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
		Limit: aws.Int32(int32(maxCount)),
	}

	var subs []domain.Subscription
	for {
		out, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, &domain.StoreError{Op: "scan", Key: r.tableName, Err: err}
		}
		for _, item := range out.Items {
			s, err := r.decode(item)
			if err != nil {
				_, row := itemIdentity(item)
				r.logger.Error("skipping undecodable subscription", "row_key", row, "err", err)
				continue
			}
			subs = append(subs, *s)
			if len(subs) == maxCount {
				return subs, nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return subs, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Get loads one record by identity.
func (r *SubscriptionRepo) Get(ctx context.Context, partition, row string) (*domain.Subscription, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(fieldPartitionKey, partition, fieldRowKey, row),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "get", Key: partition + "/" + row, Err: err}
	}
	if out.Item == nil {
		return nil, fmt.Errorf("subscription not found: %w", domain.ErrNotFound)
	}
	return r.decode(out.Item)
}

// GetByAddress finds the record registered for a notification address.
func (r *SubscriptionRepo) GetByAddress(ctx context.Context, address string) (*domain.Subscription, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexNotificationAddress),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": domain.AttrNotificationAddress},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: address}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "query", Key: address, Err: err}
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("subscription not found: %w", domain.ErrNotFound)
	}
	return r.decode(out.Items[0])
}

// UpsertByAddress writes sub as an insert-or-merge. When a record already
// exists for the same notification address, sub takes over its identity so
// the write updates it in place. A sub without a row id gets a fresh one.
func (r *SubscriptionRepo) UpsertByAddress(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	existing, err := r.GetByAddress(ctx, sub.NotificationAddress)
	switch {
	case err == nil:
		sub.Partition, sub.RowID = existing.Partition, existing.RowID
	case domain.IsNotFound(err):
		if sub.Partition == "" {
			sub.Partition = domain.SubscriptionPartition
		}
		if sub.RowID == "" {
			sub.RowID = id.New()
		}
	default:
		return nil, err
	}

	sub.UpdatedAt = r.now().UTC()
	ue, err := buildUpdateExpr(sub.ToFields())
	if err != nil {
		return nil, err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       entityKey(sub),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		return nil, storeErr("upsert", sub, err)
	}
	return sub, nil
}

// DecrementQuota debits one notification from sub and returns the new quota.
// A record without a stored quota is debited from DefaultQuota, matching the
// read default. The decrement is atomic and refuses to go below zero or to recreate a
// record that was deleted meanwhile; both cases report ErrNotFound.
func (r *SubscriptionRepo) DecrementQuota(ctx context.Context, sub *domain.Subscription) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 entityKey(sub),
		UpdateExpression:    aws.String("SET #q = if_not_exists(#q, :def) - :one, #u = :now"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND (attribute_not_exists(#q) OR #q >= :one)"),
		ExpressionAttributeNames: map[string]string{
			"#q":  domain.AttrQuota,
			"#u":  domain.AttrUpdatedAt,
			"#pk": fieldPartitionKey,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":def": &types.AttributeValueMemberN{Value: strconv.Itoa(domain.DefaultQuota)},
			":now": toAttr(domain.TimeValue(r.now())),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return 0, fmt.Errorf("subscription %s has no quota left or is gone: %w", sub.RowID, domain.ErrNotFound)
		}
		return 0, storeErr("decrement-quota", sub, err)
	}
	n, ok := out.Attributes[domain.AttrQuota].(*types.AttributeValueMemberN)
	if !ok {
		return sub.Quota - 1, nil
	}
	q, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, storeErr("decrement-quota", sub, err)
	}
	return q, nil
}

// Delete removes sub by identity. Deleting an absent record succeeds.
func (r *SubscriptionRepo) Delete(ctx context.Context, sub *domain.Subscription) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       entityKey(sub),
	})
	if err != nil {
		return storeErr("delete", sub, err)
	}
	return nil
}

func (r *SubscriptionRepo) decode(item map[string]types.AttributeValue) (*domain.Subscription, error) {
	fields, err := fieldsFromItem(item, domain.SubscriptionSchema())
	if err != nil {
		return nil, err
	}
	s := domain.NewStoredSubscription(r.now())
	if err := s.FromFields(fields); err != nil {
		return nil, err
	}
	s.Partition, s.RowID = itemIdentity(item)
	return s, nil
}
