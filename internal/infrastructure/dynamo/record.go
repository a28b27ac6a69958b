package dynamo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/appointment-watch/internal/domain"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// toItem renders an entity as a full DynamoDB item, identity included.
func toItem(e domain.Entity) map[string]types.AttributeValue {
	fields := e.ToFields()
	item := make(map[string]types.AttributeValue, len(fields)+2)
	for name, v := range fields {
		item[name] = toAttr(v)
	}
	pk, rk := e.Identity()
	item[fieldPartitionKey] = &types.AttributeValueMemberS{Value: pk}
	item[fieldRowKey] = &types.AttributeValueMemberS{Value: rk}
	return item
}

// fieldsFromItem decodes the attributes named in schema. Unknown attributes are
// ignored and missing ones are left out, so entity defaults survive.
func fieldsFromItem(item map[string]types.AttributeValue, schema map[string]domain.Kind) (domain.Fields, error) {
	out := make(domain.Fields, len(schema))
	for name, kind := range schema {
		av, ok := item[name]
		if !ok {
			continue
		}
		if _, isNull := av.(*types.AttributeValueMemberNULL); isNull {
			continue
		}
		v, err := fromAttr(av, kind)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// itemIdentity reads the composite key of a stored item.
func itemIdentity(item map[string]types.AttributeValue) (pk, rk string) {
	if v, ok := item[fieldPartitionKey].(*types.AttributeValueMemberS); ok {
		pk = v.Value
	}
	if v, ok := item[fieldRowKey].(*types.AttributeValueMemberS); ok {
		rk = v.Value
	}
	return pk, rk
}

func toAttr(v domain.Value) types.AttributeValue {
	switch v.Kind {
	case domain.KindInt:
		return &types.AttributeValueMemberN{Value: strconv.FormatInt(v.N, 10)}
	case domain.KindBool:
		return &types.AttributeValueMemberBOOL{Value: v.B}
	case domain.KindTime:
		return &types.AttributeValueMemberS{Value: v.T.UTC().Format(time.RFC3339Nano)}
	default:
		return &types.AttributeValueMemberS{Value: v.S}
	}
}

func fromAttr(av types.AttributeValue, kind domain.Kind) (domain.Value, error) {
	switch kind {
	case domain.KindString:
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return domain.Value{}, fmt.Errorf("want S, got %T", av)
		}
		return domain.StringValue(s.Value), nil
	case domain.KindInt:
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return domain.Value{}, fmt.Errorf("want N, got %T", av)
		}
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.Value{Kind: domain.KindInt, N: i}, nil
	case domain.KindBool:
		b, ok := av.(*types.AttributeValueMemberBOOL)
		if !ok {
			return domain.Value{}, fmt.Errorf("want BOOL, got %T", av)
		}
		return domain.BoolValue(b.Value), nil
	case domain.KindTime:
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return domain.Value{}, fmt.Errorf("want S, got %T", av)
		}
		t, err := time.Parse(time.RFC3339Nano, s.Value)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.TimeValue(t), nil
	default:
		return domain.Value{}, fmt.Errorf("unsupported kind %s", kind)
	}
}
