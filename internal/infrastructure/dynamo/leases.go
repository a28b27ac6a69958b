package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/appointment-watch/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// lease is a named mutual-exclusion record. ExpiresAt is a Unix timestamp used as DynamoDB TTL.
type lease struct {
	Name      string `dynamodbav:"lease_name"`
	Owner     string `dynamodbav:"owner"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// LeaseRepo hands out time-bounded leases so that only one poller runs a cycle at a time.
// PK: lease_name.
type LeaseRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewLeaseRepo(client API, tableName string) *LeaseRepo {
	return &LeaseRepo{client: client, tableName: tableName, now: time.Now}
}

// Acquire takes the lease for ttl unless another owner holds an unexpired one,
// in which case it returns ErrConflict.
func (r *LeaseRepo) Acquire(ctx context.Context, name, owner string, ttl time.Duration) error {
	now := r.now()
	item, err := attributevalue.MarshalMap(lease{Name: name, Owner: owner, ExpiresAt: now.Add(ttl).Unix()})
	if err != nil {
		return fmt.Errorf("marshal lease: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#n) OR #e < :now OR #o = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#n": fieldLeaseName,
			"#e": fieldExpiresAt,
			"#o": fieldLeaseOwner,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			":owner": &types.AttributeValueMemberS{Value: owner},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("lease %s is held: %w", name, domain.ErrConflict)
		}
		return &domain.StoreError{Op: "acquire-lease", Key: name, Err: err}
	}
	return nil
}

// Release drops the lease if owner still holds it.
func (r *LeaseRepo) Release(ctx context.Context, name, owner string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       map[string]types.AttributeValue{fieldLeaseName: &types.AttributeValueMemberS{Value: name}},
		ConditionExpression:       aws.String("#o = :owner"),
		ExpressionAttributeNames:  map[string]string{"#o": fieldLeaseOwner},
		ExpressionAttributeValues: map[string]types.AttributeValue{":owner": &types.AttributeValueMemberS{Value: owner}},
	})
	if err != nil && !isConditionFailed(err) {
		return &domain.StoreError{Op: "release-lease", Key: name, Err: err}
	}
	return nil
}
