package adapter

import (
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// --- joinStrings Tests ---

func TestJoinStrings(t *testing.T) {
	tests := []struct {
		name     string
		strs     []string
		sep      string
		expected string
	}{
		{"empty", []string{}, ", ", ""},
		{"single", []string{"one"}, ", ", "one"},
		{"multiple", []string{"a", "b", "c"}, ", ", "a, b, c"},
		{"empty separator", []string{"a", "b", "c"}, "", "abc"},
		{"multi-char", []string{"a", "b"}, " AND ", "a AND b"},
		{"empty strings", []string{"", "", ""}, ", ", ", , "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := joinStrings(tt.strs, tt.sep)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

// --- buildFilter Tests ---

func TestBuildFilter_Empty(t *testing.T) {
	f, err := buildFilter(map[string]any{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.clauses) != 0 {
		t.Errorf("expected no clauses, got %v", f.clauses)
	}
	if f.expr() != TTLFilterExpr() {
		t.Errorf("expected bare TTL filter, got %q", f.expr())
	}
}

func TestBuildFilter_SortedClauses(t *testing.T) {
	f, err := buildFilter(map[string]any{"role": "admin", "age": 30, "id": "u1"}, "id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "#f0 = :v0 AND #f1 = :v1 AND " + TTLFilterExpr()
	if f.expr() != expected {
		t.Errorf("expected %q, got %q", expected, f.expr())
	}
	if f.names["#f0"] != "age" || f.names["#f1"] != "role" {
		t.Errorf("unexpected names: %v", f.names)
	}
	if _, ok := f.names["#f2"]; ok {
		t.Error("expected skipped key to be left out")
	}

	age, ok := f.values[":v0"].(*types.AttributeValueMemberN)
	if !ok || age.Value != "30" {
		t.Errorf("expected :v0 = N 30, got %#v", f.values[":v0"])
	}
	role, ok := f.values[":v1"].(*types.AttributeValueMemberS)
	if !ok || role.Value != "admin" {
		t.Errorf("expected :v1 = S admin, got %#v", f.values[":v1"])
	}
}

func TestBuildFilter_NilValue(t *testing.T) {
	f, err := buildFilter(map[string]any{"deleted_by": nil}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.clauses) != 1 || f.clauses[0] != "attribute_not_exists(#f0)" {
		t.Errorf("unexpected clauses: %v", f.clauses)
	}
	if len(f.values) != 0 {
		t.Errorf("expected no values, got %v", f.values)
	}
}

// --- setExpression Tests ---

func TestSetExpression(t *testing.T) {
	expr, names, values, err := setExpression(map[string]any{
		"name":         "x",
		"email":        "e",
		"id":           "ignored",
		AttrCreatedAt:  "ignored",
		AttrCollection: "ignored",
	}, "id", "2024-01-01T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "SET #attr0 = :val0, #attr1 = :val1, #updated_at = :updated_at"
	if expr != expected {
		t.Errorf("expected %q, got %q", expected, expr)
	}
	if names["#attr0"] != "email" || names["#attr1"] != "name" {
		t.Errorf("unexpected names: %v", names)
	}
	if len(names) != 3 || len(values) != 3 {
		t.Errorf("expected 3 names and values, got %d and %d", len(names), len(values))
	}
	ts, ok := values[":updated_at"].(*types.AttributeValueMemberS)
	if !ok || ts.Value != "2024-01-01T00:00:00Z" {
		t.Errorf("unexpected updated_at value: %#v", values[":updated_at"])
	}
}

func TestSetExpression_OnlyTimestamp(t *testing.T) {
	expr, _, _, err := setExpression(nil, "id", "now")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expr != "SET #updated_at = :updated_at" {
		t.Errorf("unexpected expression: %q", expr)
	}
}

// --- keyString Tests ---

func TestKeyString(t *testing.T) {
	tests := []struct {
		name     string
		av       types.AttributeValue
		expected string
		ok       bool
	}{
		{"string", &types.AttributeValueMemberS{Value: "a"}, "S:a", true},
		{"number", &types.AttributeValueMemberN{Value: "1"}, "N:1", true},
		{"binary", &types.AttributeValueMemberB{Value: []byte("b")}, "B:b", true},
		{"bool", &types.AttributeValueMemberBOOL{Value: true}, "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := keyString(tt.av)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("expected (%q, %v), got (%q, %v)", tt.expected, tt.ok, got, ok)
			}
		})
	}
}

// --- compareValues Tests ---

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name string
		x, y any
		want int
	}{
		{"nil equal", nil, nil, 0},
		{"nil first", nil, 1.0, -1},
		{"numbers", 1.0, 2.0, -1},
		{"numbers equal", 2.0, 2.0, 0},
		{"strings", "b", "a", 1},
		{"numbers before strings", 5.0, "a", -1},
		{"false before true", false, true, -1},
		{"bools equal", true, true, 0},
		{"strings before bools", "z", false, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.x, tt.y)
			switch {
			case tt.want < 0 && got >= 0, tt.want > 0 && got <= 0, tt.want == 0 && got != 0:
				t.Errorf("compareValues(%v, %v) = %d, want sign of %d", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

// --- window Tests ---

func TestWindow_NoOptions(t *testing.T) {
	records := []Record{{"id": "a"}, {"id": "b"}}
	got := window(records, Criteria{})
	if len(got) != 2 || got[0]["id"] != "a" {
		t.Errorf("expected records unchanged, got %v", got)
	}
}

func TestWindow_StableSort(t *testing.T) {
	records := []Record{
		{"id": "a", "n": 1.0},
		{"id": "b", "n": 0.0},
		{"id": "c", "n": 1.0},
	}
	got := window(records, Criteria{Sort: []Sort{{Attribute: "n"}}})
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if got[i]["id"] != id {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestWindow_MissingAttributeSortsFirst(t *testing.T) {
	records := []Record{{"id": "a", "n": 1.0}, {"id": "b"}}
	got := window(records, Criteria{Sort: []Sort{{Attribute: "n"}}})
	if got[0]["id"] != "b" {
		t.Errorf("expected record without n first, got %v", got)
	}
}

// --- decodeRecord Tests ---

func TestDecodeRecord_DropsInternalAttributes(t *testing.T) {
	rec, err := decodeRecord(map[string]types.AttributeValue{
		"id":           &types.AttributeValueMemberS{Value: "u1"},
		"count":        &types.AttributeValueMemberN{Value: "3"},
		AttrCollection: &types.AttributeValueMemberS{Value: "users"},
		AttrTTL:        &types.AttributeValueMemberN{Value: "1000000000"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec["id"] != "u1" || rec["count"] != float64(3) {
		t.Errorf("unexpected record: %v", rec)
	}
	if _, ok := rec[AttrCollection]; ok {
		t.Error("expected _collection to be dropped")
	}
	if _, ok := rec[AttrTTL]; ok {
		t.Error("expected ttl to be dropped")
	}
}

func TestItemKey(t *testing.T) {
	item := map[string]types.AttributeValue{
		"id":   &types.AttributeValueMemberS{Value: "u1"},
		"name": &types.AttributeValueMemberS{Value: "x"},
	}
	key, err := itemKey(item, "id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 1 {
		t.Errorf("expected key with one attribute, got %v", key)
	}

	if _, err := itemKey(item, "slug"); err == nil {
		t.Error("expected error for missing key attribute")
	}
}

// --- TTL Tests ---

func TestIsDeleted(t *testing.T) {
	tests := []struct {
		name     string
		item     map[string]types.AttributeValue
		expected bool
	}{
		{
			name:     "no TTL attribute",
			item:     map[string]types.AttributeValue{},
			expected: false,
		},
		{
			name: "TTL in past",
			item: map[string]types.AttributeValue{
				"ttl": &types.AttributeValueMemberN{Value: "1000000000"}, // 2001
			},
			expected: true,
		},
		{
			name: "TTL in future",
			item: map[string]types.AttributeValue{
				"ttl": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().Unix()+3600)},
			},
			expected: false,
		},
		{
			name: "TTL wrong type",
			item: map[string]types.AttributeValue{
				"ttl": &types.AttributeValueMemberS{Value: "1000000000"},
			},
			expected: false,
		},
		{
			name: "TTL unparseable",
			item: map[string]types.AttributeValue{
				"ttl": &types.AttributeValueMemberN{Value: "soon"},
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsDeleted(tt.item)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestMergeExprMaps(t *testing.T) {
	names := mergeExpr(map[string]string{"#a": "a"}, map[string]string(nil), map[string]string{"#b": "b", "#a": "z"})
	if len(names) != 2 || names["#a"] != "z" {
		t.Errorf("unexpected names: %v", names)
	}

	values := mergeExpr(TTLFilterValues(time.Unix(42, 0)), map[string]types.AttributeValue{
		":x": &types.AttributeValueMemberS{Value: "x"},
	})
	now, ok := values[":now"].(*types.AttributeValueMemberN)
	if !ok || now.Value != "42" || len(values) != 2 {
		t.Errorf("unexpected values: %v", values)
	}
}

// --- Definition Tests ---

func TestDefinition_PrimaryKey(t *testing.T) {
	tests := []struct {
		name     string
		def      Definition
		expected string
	}{
		{"nil", nil, "id"},
		{"unmarked", Definition{"email": {Type: "string"}}, "id"},
		{"marked", Definition{"slug": {Type: "string", PrimaryKey: true}}, "slug"},
		{"several marked", Definition{"z": {PrimaryKey: true}, "b": {PrimaryKey: true}}, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.def.PrimaryKey(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDefinition_KeyType(t *testing.T) {
	tests := []struct {
		attrType string
		expected types.ScalarAttributeType
	}{
		{"string", types.ScalarAttributeTypeS},
		{"integer", types.ScalarAttributeTypeN},
		{"float", types.ScalarAttributeTypeN},
		{"binary", types.ScalarAttributeTypeB},
		{"", types.ScalarAttributeTypeS},
	}

	for _, tt := range tests {
		def := Definition{"id": {Type: tt.attrType, PrimaryKey: true}}
		if got := def.KeyType(); got != tt.expected {
			t.Errorf("KeyType(%q) = %q, want %q", tt.attrType, got, tt.expected)
		}
	}
}

func TestDefinition_Clone(t *testing.T) {
	def := Definition{"id": {Type: "string"}}
	c := def.clone()
	c["name"] = Attribute{Type: "string"}
	if _, ok := def["name"]; ok {
		t.Error("expected clone to be independent")
	}
	if Definition(nil).clone() != nil {
		t.Error("expected nil clone of nil definition")
	}
}

// --- Config Tests ---

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.validate()
	if cfg != DefaultConfig() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestConfigValidate_AtMax(t *testing.T) {
	cfg := Config{Migrate: MigrateDrop, MaxCombinations: 10000, Concurrency: 64}
	cfg.validate()
	if cfg.MaxCombinations != 10000 || cfg.Concurrency != 64 || cfg.Migrate != MigrateDrop {
		t.Errorf("expected values at max to be kept, got %+v", cfg)
	}
}
