package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/appointment-watch/internal/domain"
	"github.com/appointment-watch/internal/pkg/id"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AccessCodeRepo stores hashed personal codes, one per email.
// PK: partition_key, SK: row_key. GSI email-index.
type AccessCodeRepo struct {
	client    API
	tableName string
}

func NewAccessCodeRepo(client API, tableName string) *AccessCodeRepo {
	return &AccessCodeRepo{client: client, tableName: tableName}
}

func (r *AccessCodeRepo) GetByEmail(ctx context.Context, email string) (*domain.AccessCode, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(indexAccessCodeEmail),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": domain.AttrEmail},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: email}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "query", Key: email, Err: err}
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("access code not found: %w", domain.ErrNotFound)
	}
	fields, err := fieldsFromItem(out.Items[0], domain.AccessCodeSchema())
	if err != nil {
		return nil, err
	}
	var c domain.AccessCode
	if err := c.FromFields(fields); err != nil {
		return nil, err
	}
	c.Partition, c.RowID = itemIdentity(out.Items[0])
	return &c, nil
}

// UpsertByEmail replaces the code bound to c.Email, keeping the existing identity.
func (r *AccessCodeRepo) UpsertByEmail(ctx context.Context, c *domain.AccessCode) (*domain.AccessCode, error) {
	existing, err := r.GetByEmail(ctx, c.Email)
	switch {
	case err == nil:
		c.Partition, c.RowID = existing.Partition, existing.RowID
	case domain.IsNotFound(err):
		c.Partition, c.RowID = domain.AccessCodePartition, id.New()
	default:
		return nil, err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      toItem(c),
	})
	if err != nil {
		return nil, storeErr("put", c, err)
	}
	return c, nil
}

func (r *AccessCodeRepo) Delete(ctx context.Context, c *domain.AccessCode) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       entityKey(c),
	})
	if err != nil {
		return storeErr("delete", c, err)
	}
	return nil
}
