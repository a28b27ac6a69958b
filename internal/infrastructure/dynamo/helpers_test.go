package dynamo

import (
	"testing"
	"time"

	"github.com/appointment-watch/internal/domain"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUpdateExpr_SingleField(t *testing.T) {
	ue, err := buildUpdateExpr(domain.Fields{"city_code": domain.StringValue("ZW")})
	require.NoError(t, err)
	assert.Equal(t, "SET #f0 = :v0", ue.Expr)
	assert.Equal(t, map[string]string{"#f0": "city_code"}, ue.Names)
	_, ok := ue.Values[":v0"]
	assert.True(t, ok)
}

func TestBuildUpdateExpr_MultipleFields_Deterministic(t *testing.T) {
	fields := domain.Fields{
		"product_key":       domain.StringValue("BIO"),
		"city_code":         domain.StringValue("ZW"),
		"notification_mail": domain.StringValue("a@b.com"),
	}
	ue1, err := buildUpdateExpr(fields)
	require.NoError(t, err)
	ue2, err := buildUpdateExpr(fields)
	require.NoError(t, err)

	assert.Equal(t, ue1.Expr, ue2.Expr)
	assert.Equal(t, "city_code", ue1.Names["#f0"])
	assert.Equal(t, "notification_mail", ue1.Names["#f1"])
	assert.Equal(t, "product_key", ue1.Names["#f2"])
	assert.Equal(t, "SET #f0 = :v0, #f1 = :v1, #f2 = :v2", ue1.Expr)
}

func TestBuildUpdateExpr_ValuesMarshalledCorrectly(t *testing.T) {
	ue, err := buildUpdateExpr(domain.Fields{"enabled": domain.BoolValue(true)})
	require.NoError(t, err)
	av, ok := ue.Values[":v0"]
	require.True(t, ok)
	boolVal, isBool := av.(*types.AttributeValueMemberBOOL)
	require.True(t, isBool)
	assert.True(t, boolVal.Value)
}

func TestBuildUpdateExpr_EmptyMap_ReturnsError(t *testing.T) {
	_, err := buildUpdateExpr(domain.Fields{})
	assert.ErrorContains(t, err, "no fields to update")
}

func TestToItem_RoundTripsThroughSchema(t *testing.T) {
	exp := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	sub := &domain.Subscription{
		Partition:           domain.SubscriptionPartition,
		RowID:               "01HZX",
		LocationCode:        "ZW",
		ProductKey:          "BIO",
		PartySize:           3,
		MaxDays:             60,
		NotificationAddress: "a@b.com",
		ExpiresAt:           exp,
		Quota:               7,
		Enabled:             true,
	}
	item := toItem(sub)

	assert.Equal(t, &types.AttributeValueMemberS{Value: domain.SubscriptionPartition}, item[fieldPartitionKey])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "01HZX"}, item[fieldRowKey])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "7"}, item[domain.AttrQuota])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "2026-05-01T09:30:00Z"}, item[domain.AttrExpiresAt])

	fields, err := fieldsFromItem(item, domain.SubscriptionSchema())
	require.NoError(t, err)
	var back domain.Subscription
	require.NoError(t, back.FromFields(fields))
	back.Partition, back.RowID = itemIdentity(item)

	assert.Equal(t, sub.RowID, back.RowID)
	assert.Equal(t, 3, back.PartySize)
	assert.Equal(t, 7, back.Quota)
	assert.True(t, exp.Equal(back.ExpiresAt))
}

func TestFieldsFromItem_TypeMismatch(t *testing.T) {
	item := map[string]types.AttributeValue{
		domain.AttrQuota: &types.AttributeValueMemberS{Value: "ten"},
	}
	_, err := fieldsFromItem(item, domain.SubscriptionSchema())
	assert.ErrorContains(t, err, domain.AttrQuota)
}

func TestFieldsFromItem_SkipsNullAndUnknown(t *testing.T) {
	item := map[string]types.AttributeValue{
		domain.AttrOwnerID: &types.AttributeValueMemberNULL{Value: true},
		"legacy_attr":      &types.AttributeValueMemberS{Value: "x"},
	}
	fields, err := fieldsFromItem(item, domain.SubscriptionSchema())
	require.NoError(t, err)
	assert.Empty(t, fields)
}
