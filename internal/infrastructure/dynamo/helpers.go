package dynamo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/appointment-watch/internal/domain"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// compositeKey builds a DynamoDB primary key with two string attributes (PK + SK).
func compositeKey(pkName, pkValue, skName, skValue string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkName: &types.AttributeValueMemberS{Value: pkValue},
		skName: &types.AttributeValueMemberS{Value: skValue},
	}
}

// entityKey is the primary key of a partition/row entity.
func entityKey(e domain.Entity) map[string]types.AttributeValue {
	pk, rk := e.Identity()
	return compositeKey(fieldPartitionKey, pk, fieldRowKey, rk)
}

// updateExpr is a SET expression with its placeholder maps.
type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// buildUpdateExpr converts entity fields into a DynamoDB SET expression.
// Keys are sorted so the expression is deterministic.
func buildUpdateExpr(fields domain.Fields) (*updateExpr, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ue := &updateExpr{
		Names:  make(map[string]string, len(keys)),
		Values: make(map[string]types.AttributeValue, len(keys)),
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		nameKey := fmt.Sprintf("#f%d", i)
		valueKey := fmt.Sprintf(":v%d", i)
		ue.Names[nameKey] = k
		ue.Values[valueKey] = toAttr(fields[k])
		parts[i] = nameKey + " = " + valueKey
	}
	ue.Expr = "SET " + strings.Join(parts, ", ")
	return ue, nil
}

// isConditionFailed reports whether err is a failed ConditionExpression.
func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func storeErr(op string, e domain.Entity, err error) error {
	pk, rk := e.Identity()
	return &domain.StoreError{Op: op, Key: pk + "/" + rk, Err: err}
}
