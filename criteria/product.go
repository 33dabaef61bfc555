package criteria

import (
	"math"
	"reflect"
	"sort"
)

// Product returns the cartesian product of sets.
// Position i of every combination is drawn from sets[i]. The first set varies
// slowest and the last set varies fastest. Duplicate candidates are kept.
func Product[T any](sets [][]T) [][]T {
	if len(sets) == 0 {
		return [][]T{{}}
	}

	tail := Product(sets[1:])
	result := make([][]T, 0, len(sets[0])*len(tail))
	for _, x := range sets[0] {
		for _, p := range tail {
			combo := make([]T, 0, len(p)+1)
			combo = append(combo, x)
			combo = append(combo, p...)
			result = append(result, combo)
		}
	}
	return result
}

// Candidates returns the candidate values of a where-clause value.
// Slices and arrays yield their elements. Byte slices and byte arrays, such
// as uuid.UUID or json.RawMessage, are a single candidate, as is every other
// value including nil.
func Candidates(v any) []any {
	if v == nil {
		return []any{nil}
	}
	switch vv := v.(type) {
	case []any:
		out := make([]any, len(vv))
		copy(out, vv)
		return out
	case []byte:
		return []any{vv}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return []any{v}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	default:
		return []any{v}
	}
}

// ObjectProduct expands m into every combination of its candidate values.
// Keys are enumerated in ascending order, so the first key varies slowest.
func ObjectProduct(m map[string]any) []map[string]any {
	return ObjectProductKeys(SortedKeys(m), m)
}

// ObjectProductKeys is ObjectProduct with a caller-supplied key order.
// A key missing from m expands as a nil scalar.
func ObjectProductKeys(keys []string, m map[string]any) []map[string]any {
	sets := make([][]any, len(keys))
	for i, k := range keys {
		sets[i] = Candidates(m[k])
	}

	combos := Product(sets)
	result := make([]map[string]any, len(combos))
	for n, combo := range combos {
		e := make(map[string]any, len(keys))
		for i, k := range keys {
			e[k] = combo[i]
		}
		result[n] = e
	}
	return result
}

// Count returns the number of combinations ObjectProduct(m) would produce.
// A count that does not fit in an int saturates at math.MaxInt.
func Count(m map[string]any) int {
	n := 1
	for _, v := range m {
		c := len(Candidates(v))
		if c == 0 {
			return 0
		}
		if n > math.MaxInt/c {
			n = math.MaxInt
			continue
		}
		n *= c
	}
	return n
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
