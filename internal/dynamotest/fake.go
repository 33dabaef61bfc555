// Package dynamotest provides an in-memory DynamoDB fake for tests.
//
// The fake understands the expression subset the adapter emits: clauses joined
// by AND, parenthesized OR groups, "=", ">", attribute_exists and
// attribute_not_exists conditions, and SET update expressions. Scan and Query
// page on Limit, or on the fake-wide page size set by SetPageSize, and resume
// from ExclusiveStartKey.
package dynamotest

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type table struct {
	key   string
	order []string
	items map[string]map[string]types.AttributeValue
}

// Fake is an in-memory DynamoDB. Safe for concurrent use.
type Fake struct {
	mu       sync.Mutex
	tables   map[string]*table
	calls    map[string]int
	errs     map[string]error
	pageSize int32
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		tables: make(map[string]*table),
		calls:  make(map[string]int),
		errs:   make(map[string]error),
	}
}

// AddTable creates a table keyed on the hash key attribute key.
func (f *Fake) AddTable(name, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{key: key, items: make(map[string]map[string]types.AttributeValue)}
}

// HasTable reports whether a table exists.
func (f *Fake) HasTable(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tables[name]
	return ok
}

// Seed stores an item without conditions.
func (f *Fake) Seed(name string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[name]
	t.put(item)
}

// Items returns the items of a table in insertion order.
func (f *Fake) Items(name string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[name]
	if !ok {
		return nil
	}
	out := make([]map[string]types.AttributeValue, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, copyItem(t.items[k]))
	}
	return out
}

// Calls returns how often an operation (e.g. "Scan") was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// FailOn makes every call of op return err. A nil err clears it.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// SetPageSize caps the items a Scan or Query evaluates per page when the
// request carries no Limit. Zero means unlimited.
func (f *Fake) SetPageSize(n int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSize = n
}

func (f *Fake) limit(l *int32) int32 {
	if l != nil && *l > 0 {
		return *l
	}
	return f.pageSize
}

// enter records a call and returns the injected error, if any. Callers hold f.mu.
func (f *Fake) enter(op string) error {
	f.calls[op]++
	return f.errs[op]
}

func (f *Fake) table(name *string) (*table, error) {
	t, ok := f.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + aws.ToString(name))}
	}
	return t, nil
}

func (f *Fake) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	current, _ := t.get(map[string]types.AttributeValue{t.key: in.Item[t.key]})
	if in.ConditionExpression != nil {
		ok, err := eval(aws.ToString(in.ConditionExpression), current, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	t.put(copyItem(in.Item))
	return &dynamodb.PutItemOutput{}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	current, ok := t.get(in.Key)
	if !ok {
		current = copyItem(in.Key)
	}
	if in.ConditionExpression != nil {
		ok, err := eval(aws.ToString(in.ConditionExpression), current, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	updated := copyItem(current)
	expr := strings.TrimPrefix(aws.ToString(in.UpdateExpression), "SET ")
	for _, assign := range strings.Split(expr, ", ") {
		parts := strings.SplitN(assign, " = ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("dynamotest: unsupported update clause %q", assign)
		}
		name := resolveName(parts[0], in.ExpressionAttributeNames)
		v, ok := in.ExpressionAttributeValues[parts[1]]
		if !ok {
			return nil, fmt.Errorf("dynamotest: missing value %s", parts[1])
		}
		updated[name] = v
	}
	t.put(updated)

	out := &dynamodb.UpdateItemOutput{}
	if in.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(updated)
	}
	return out, nil
}

func (f *Fake) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	t.delete(in.Key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *Fake) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	p, err := t.page(in.ExclusiveStartKey, f.limit(in.Limit), in.ExpressionAttributeNames, in.ExpressionAttributeValues,
		aws.ToString(in.KeyConditionExpression), aws.ToString(in.FilterExpression))
	if err != nil {
		return nil, err
	}
	return &dynamodb.QueryOutput{
		Items:            p.items,
		Count:            int32(len(p.items)),
		ScannedCount:     p.scanned,
		LastEvaluatedKey: p.last,
	}, nil
}

func (f *Fake) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	t, err := f.table(in.TableName)
	if err != nil {
		return nil, err
	}
	p, err := t.page(in.ExclusiveStartKey, f.limit(in.Limit), in.ExpressionAttributeNames, in.ExpressionAttributeValues,
		"", aws.ToString(in.FilterExpression))
	if err != nil {
		return nil, err
	}
	return &dynamodb.ScanOutput{
		Items:            p.items,
		Count:            int32(len(p.items)),
		ScannedCount:     p.scanned,
		LastEvaluatedKey: p.last,
	}, nil
}

func (f *Fake) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateTable"); err != nil {
		return nil, err
	}
	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("table exists: " + name)}
	}
	var key string
	for _, k := range in.KeySchema {
		if k.KeyType == types.KeyTypeHash {
			key = aws.ToString(k.AttributeName)
		}
	}
	f.tables[name] = &table{key: key, items: make(map[string]map[string]types.AttributeValue)}
	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{TableName: in.TableName, TableStatus: types.TableStatusActive},
	}, nil
}

func (f *Fake) DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteTable"); err != nil {
		return nil, err
	}
	if _, err := f.table(in.TableName); err != nil {
		return nil, err
	}
	delete(f.tables, aws.ToString(in.TableName))
	return &dynamodb.DeleteTableOutput{}, nil
}

func (f *Fake) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DescribeTable"); err != nil {
		return nil, err
	}
	if _, err := f.table(in.TableName); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableName: in.TableName, TableStatus: types.TableStatusActive},
	}, nil
}

func (t *table) get(key map[string]types.AttributeValue) (map[string]types.AttributeValue, bool) {
	k, ok := keyOf(key[t.key])
	if !ok {
		return nil, false
	}
	item, ok := t.items[k]
	return item, ok
}

func (t *table) put(item map[string]types.AttributeValue) {
	k, ok := keyOf(item[t.key])
	if !ok {
		return
	}
	if _, exists := t.items[k]; !exists {
		t.order = append(t.order, k)
	}
	t.items[k] = item
}

func (t *table) delete(key map[string]types.AttributeValue) {
	k, ok := keyOf(key[t.key])
	if !ok {
		return
	}
	if _, exists := t.items[k]; !exists {
		return
	}
	delete(t.items, k)
	for i, o := range t.order {
		if o == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

type page struct {
	items   []map[string]types.AttributeValue
	scanned int32
	last    map[string]types.AttributeValue
}

// page reads items in insertion order, starting after start. The key
// condition selects which items are read; at most limit of them are evaluated
// before the filter applies. last is set when readable items remain.
// A start key that no longer exists ends the read.
func (t *table) page(start map[string]types.AttributeValue, limit int32, names map[string]string, values map[string]types.AttributeValue, keyCond, filter string) (page, error) {
	order := t.order
	if len(start) > 0 {
		order = nil
		if k, ok := keyOf(start[t.key]); ok {
			for i, o := range t.order {
				if o == k {
					order = t.order[i+1:]
					break
				}
			}
		}
	}

	var p page
	var lastKey map[string]types.AttributeValue
	for _, k := range order {
		item := t.items[k]
		if keyCond != "" {
			ok, err := eval(keyCond, item, names, values)
			if err != nil {
				return page{}, err
			}
			if !ok {
				continue
			}
		}
		if limit > 0 && p.scanned == limit {
			p.last = lastKey
			break
		}
		p.scanned++
		lastKey = map[string]types.AttributeValue{t.key: item[t.key]}

		if filter != "" {
			ok, err := eval(filter, item, names, values)
			if err != nil {
				return page{}, err
			}
			if !ok {
				continue
			}
		}
		p.items = append(p.items, copyItem(item))
	}
	return p, nil
}

// eval evaluates a condition expression against an item.
func eval(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		var ok bool
		var err error
		if strings.HasPrefix(clause, "(") && strings.HasSuffix(clause, ")") && strings.Contains(clause, " OR ") {
			ok, err = evalOr(clause[1:len(clause)-1], item, names, values)
		} else {
			ok, err = evalAtom(clause, item, names, values)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evalOr(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, atom := range strings.Split(expr, " OR ") {
		ok, err := evalAtom(strings.TrimSpace(atom), item, names, values)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func evalAtom(atom string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(atom, "attribute_exists(") && strings.HasSuffix(atom, ")"):
		name := resolveName(atom[len("attribute_exists("):len(atom)-1], names)
		_, ok := item[name]
		return ok, nil
	case strings.HasPrefix(atom, "attribute_not_exists(") && strings.HasSuffix(atom, ")"):
		name := resolveName(atom[len("attribute_not_exists("):len(atom)-1], names)
		_, ok := item[name]
		return !ok, nil
	}

	for _, op := range []string{" = ", " > "} {
		parts := strings.SplitN(atom, op, 2)
		if len(parts) != 2 {
			continue
		}
		got, ok := item[resolveName(parts[0], names)]
		if !ok {
			return false, nil
		}
		want, ok := values[parts[1]]
		if !ok {
			return false, fmt.Errorf("dynamotest: missing value %s", parts[1])
		}
		if op == " = " {
			return equal(got, want), nil
		}
		return greater(got, want), nil
	}
	return false, fmt.Errorf("dynamotest: unsupported expression %q", atom)
}

func resolveName(placeholder string, names map[string]string) string {
	if strings.HasPrefix(placeholder, "#") {
		if n, ok := names[placeholder]; ok {
			return n
		}
	}
	return placeholder
}

func equal(a, b types.AttributeValue) bool {
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	if aok && bok {
		x, err1 := strconv.ParseFloat(an.Value, 64)
		y, err2 := strconv.ParseFloat(bn.Value, 64)
		return err1 == nil && err2 == nil && x == y
	}
	return reflect.DeepEqual(a, b)
}

func greater(a, b types.AttributeValue) bool {
	an, aok := a.(*types.AttributeValueMemberN)
	bn, bok := b.(*types.AttributeValueMemberN)
	if aok && bok {
		x, err1 := strconv.ParseFloat(an.Value, 64)
		y, err2 := strconv.ParseFloat(bn.Value, 64)
		return err1 == nil && err2 == nil && x > y
	}
	as, aok := a.(*types.AttributeValueMemberS)
	bs, bok := b.(*types.AttributeValueMemberS)
	return aok && bok && as.Value > bs.Value
}

func keyOf(av types.AttributeValue) (string, bool) {
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

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return map[string]types.AttributeValue{}
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}
