package adapter

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsDeleted reports whether item carries a ttl at or before the current time.
// Items without a numeric ttl are live.
func IsDeleted(item map[string]types.AttributeValue) bool {
	n, ok := item[AttrTTL].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	expires, err := strconv.ParseInt(n.Value, 10, 64)
	return err == nil && expires <= time.Now().Unix()
}

// TTLFilterExpr matches records that are not soft-deleted. It expects the
// #ttl name and :now value from TTLFilterNames and TTLFilterValues.
func TTLFilterExpr() string {
	return "(attribute_not_exists(#ttl) OR #ttl > :now)"
}

// TTLFilterNames binds #ttl for TTLFilterExpr.
func TTLFilterNames() map[string]string {
	return map[string]string{"#ttl": AttrTTL}
}

// TTLFilterValues binds :now for TTLFilterExpr to now in epoch seconds.
func TTLFilterValues(now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
	}
}

// mergeExpr combines placeholder maps. Later maps win on collision.
func mergeExpr[V any](maps ...map[string]V) map[string]V {
	out := make(map[string]V)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
