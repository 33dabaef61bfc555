package adapter

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/compute/criteria"
)

// managedAttrs are written by the adapter and never taken from update values.
var managedAttrs = map[string]bool{
	AttrCollection: true,
	AttrCreatedAt:  true,
	AttrUpdatedAt:  true,
	AttrTTL:        true,
}

// filter is an equality filter built from one expanded where combination.
type filter struct {
	clauses []string
	names   map[string]string
	values  map[string]types.AttributeValue
}

// buildFilter turns a combination into "#f0 = :v0 AND ..." clauses.
// Attributes are visited in sorted order; skip is left out (it becomes the key condition).
// A nil value matches records lacking the attribute.
func buildFilter(combo map[string]any, skip string) (*filter, error) {
	f := &filter{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}

	i := 0
	for _, k := range criteria.SortedKeys(combo) {
		if k == skip {
			continue
		}
		nameKey := fmt.Sprintf("#f%d", i)
		f.names[nameKey] = k

		v := combo[k]
		if v == nil {
			f.clauses = append(f.clauses, fmt.Sprintf("attribute_not_exists(%s)", nameKey))
			i++
			continue
		}

		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal where %q: %w", k, err)
		}
		valueKey := fmt.Sprintf(":v%d", i)
		f.values[valueKey] = av
		f.clauses = append(f.clauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
		i++
	}
	return f, nil
}

// expr joins the clauses with the TTL filter.
func (f *filter) expr() string {
	if len(f.clauses) == 0 {
		return TTLFilterExpr()
	}
	return joinStrings(append(append([]string{}, f.clauses...), TTLFilterExpr()), " AND ")
}

// setExpression builds an UPDATE "SET ..." expression from values.
// The primary key and managed attributes are skipped; updated_at is always refreshed.
func setExpression(values map[string]any, pk, now string) (string, map[string]string, map[string]types.AttributeValue, error) {
	var setClauses []string
	exprNames := map[string]string{
		"#updated_at": AttrUpdatedAt,
	}
	exprValues := map[string]types.AttributeValue{
		":updated_at": &types.AttributeValueMemberS{Value: now},
	}

	i := 0
	for _, k := range criteria.SortedKeys(values) {
		if k == pk || managedAttrs[k] {
			continue
		}
		av, err := attributevalue.Marshal(values[k])
		if err != nil {
			return "", nil, nil, fmt.Errorf("marshal %q: %w", k, err)
		}
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = k
		exprValues[valueKey] = av
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
		i++
	}

	setClauses = append(setClauses, "#updated_at = :updated_at")
	return "SET " + joinStrings(setClauses, ", "), exprNames, exprValues, nil
}

// keyString renders a key attribute for de-duplication.
func keyString(av types.AttributeValue) (string, bool) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value, true
	case *types.AttributeValueMemberN:
		return "N:" + v.Value, true
	case *types.AttributeValueMemberB:
		return "B:" + string(v.Value), true
	default:
		return "", false
	}
}

// joinStrings joins strings with a separator (avoiding strings package import).
func joinStrings(strs []string, sep string) string {
	if len(strs) == 0 {
		return ""
	}
	result := strs[0]
	for _, s := range strs[1:] {
		result += sep + s
	}
	return result
}
