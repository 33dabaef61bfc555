package adapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/compute/criteria"
)

// Find returns the records matching c.
// Slice-valued where entries are expanded into one exact-match lookup per combination.
func (a *Adapter) Find(ctx context.Context, identity, collection string, c Criteria) ([]Record, error) {
	client, table, def, err := a.collection(identity, collection)
	if err != nil {
		return nil, err
	}

	items, err := a.find(ctx, client, table, def.PrimaryKey(), c.Where)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		rec, err := decodeRecord(item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return window(records, c), nil
}

// Create stores a new record and returns it as written.
func (a *Adapter) Create(ctx context.Context, identity, collection string, values map[string]any) (Record, error) {
	client, table, def, err := a.collection(identity, collection)
	if err != nil {
		return nil, err
	}

	rec := make(Record, len(values)+4)
	for k, v := range values {
		if !managedAttrs[k] {
			rec[k] = v
		}
	}

	pk := def.PrimaryKey()
	if isEmpty(rec[pk]) {
		if def.KeyType() != types.ScalarAttributeTypeS {
			return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, pk)
		}
		rec[pk] = uuid.NewString()
	}

	for _, name := range sortedAttrs(def) {
		if def[name].Required && isEmpty(rec[name]) {
			return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, name)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	rec[AttrCollection] = collection
	rec[AttrCreatedAt] = now
	rec[AttrUpdatedAt] = now

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": pk},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	a.logger.Debug("record created",
		"identity", identity,
		"collection", collection,
		"key", rec[pk],
	)
	return decodeRecord(item)
}

// Update applies values to every record matching c.Where and returns the updated records.
// The primary key and managed attributes cannot be changed.
func (a *Adapter) Update(ctx context.Context, identity, collection string, c Criteria, values map[string]any) ([]Record, error) {
	client, table, def, err := a.collection(identity, collection)
	if err != nil {
		return nil, err
	}

	pk := def.PrimaryKey()
	items, err := a.find(ctx, client, table, pk, c.Where)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updateExpr, exprNames, exprValues, err := setExpression(values, pk, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}

	var updated []Record
	for _, item := range items {
		key, err := itemKey(item, pk)
		if err != nil {
			return updated, err
		}

		out, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 aws.String(table),
			Key:                       key,
			UpdateExpression:          aws.String(updateExpr),
			ConditionExpression:       aws.String("attribute_exists(#pk) AND " + TTLFilterExpr()),
			ExpressionAttributeNames:  mergeExpr(exprNames, TTLFilterNames(), map[string]string{"#pk": pk}),
			ExpressionAttributeValues: mergeExpr(exprValues, TTLFilterValues(now)),
			ReturnValues:              types.ReturnValueAllNew,
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				// Deleted between find and update.
				continue
			}
			return updated, err
		}

		rec, err := decodeRecord(out.Attributes)
		if err != nil {
			return updated, err
		}
		updated = append(updated, rec)
	}

	a.logger.Debug("records updated",
		"identity", identity,
		"collection", collection,
		"count", len(updated),
	)
	return updated, nil
}

// Destroy deletes every record matching c.Where and returns the deleted records.
// With Config.SoftDelete the records get a ttl instead of being removed.
func (a *Adapter) Destroy(ctx context.Context, identity, collection string, c Criteria) ([]Record, error) {
	client, table, def, err := a.collection(identity, collection)
	if err != nil {
		return nil, err
	}

	pk := def.PrimaryKey()
	items, err := a.find(ctx, client, table, pk, c.Where)
	if err != nil {
		return nil, err
	}

	var destroyed []Record
	for _, item := range items {
		key, err := itemKey(item, pk)
		if err != nil {
			return destroyed, err
		}

		if a.config.SoftDelete {
			err = setTTL(ctx, client, table, key, time.Now())
		} else {
			_, err = client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(table),
				Key:       key,
			})
		}
		if err != nil {
			return destroyed, err
		}

		rec, err := decodeRecord(item)
		if err != nil {
			return destroyed, err
		}
		destroyed = append(destroyed, rec)
	}

	a.logger.Debug("records destroyed",
		"identity", identity,
		"collection", collection,
		"count", len(destroyed),
		"soft", a.config.SoftDelete,
	)
	return destroyed, nil
}

// collection resolves the client, table and definition of a collection.
// An undefined collection gets an empty definition (primary key "id").
func (a *Adapter) collection(identity, collection string) (Client, string, Definition, error) {
	client, table, err := a.resolve(identity, collection)
	if err != nil {
		return nil, "", nil, err
	}
	def, err := a.registry.Describe(identity, collection)
	if err != nil {
		return nil, "", nil, err
	}
	return client, table, def, nil
}

// find expands where and runs one lookup per combination, at most
// Config.Concurrency at a time. Results keep combination order and are
// de-duplicated by primary key.
func (a *Adapter) find(ctx context.Context, client Client, table, pk string, where map[string]any) ([]map[string]types.AttributeValue, error) {
	if n := criteria.Count(where); n > a.config.MaxCombinations {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyCombinations, n, a.config.MaxCombinations)
	}
	combos := criteria.ObjectProduct(where)

	results := make([][]map[string]types.AttributeValue, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Concurrency)

	for i, combo := range combos {
		i, combo := i, combo
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			items, err := lookup(gctx, client, table, pk, combo)
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var items []map[string]types.AttributeValue
	for _, batch := range results {
		for _, item := range batch {
			if k, ok := keyString(item[pk]); ok {
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			items = append(items, item)
		}
	}
	return items, nil
}

// lookup runs a single exact-match combination: a Query when the combination
// fixes the primary key, a Scan otherwise.
func lookup(ctx context.Context, client Client, table, pk string, combo map[string]any) ([]map[string]types.AttributeValue, error) {
	now := time.Now()

	if pkValue, ok := combo[pk]; ok && pkValue != nil {
		f, err := buildFilter(combo, pk)
		if err != nil {
			return nil, err
		}
		keyValue, err := attributevalue.Marshal(pkValue)
		if err != nil {
			return nil, fmt.Errorf("marshal where %q: %w", pk, err)
		}

		paginator := dynamodb.NewQueryPaginator(client, &dynamodb.QueryInput{
			TableName:                 aws.String(table),
			KeyConditionExpression:    aws.String("#pk = :pk"),
			FilterExpression:          aws.String(f.expr()),
			ExpressionAttributeNames:  mergeExpr(f.names, TTLFilterNames(), map[string]string{"#pk": pk}),
			ExpressionAttributeValues: mergeExpr(f.values, TTLFilterValues(now), map[string]types.AttributeValue{":pk": keyValue}),
		})

		var items []map[string]types.AttributeValue
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			items = append(items, page.Items...)
		}
		return items, nil
	}

	f, err := buildFilter(combo, "")
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewScanPaginator(client, &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          aws.String(f.expr()),
		ExpressionAttributeNames:  mergeExpr(f.names, TTLFilterNames()),
		ExpressionAttributeValues: mergeExpr(f.values, TTLFilterValues(now)),
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// setTTL soft-deletes an item by setting its ttl to now.
func setTTL(ctx context.Context, client Client, table string, key map[string]types.AttributeValue, now time.Time) error {
	_, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(table),
		Key:                 key,
		UpdateExpression:    aws.String("SET #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": AttrTTL,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{
				Value: strconv.FormatInt(now.Unix(), 10),
			},
		},
	})

	// Ignore condition failure - already has TTL
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// itemKey extracts the primary key of an item.
func itemKey(item map[string]types.AttributeValue, pk string) (map[string]types.AttributeValue, error) {
	v, ok := item[pk]
	if !ok {
		return nil, fmt.Errorf("%w: item has no primary key %q", ErrNotFound, pk)
	}
	return map[string]types.AttributeValue{pk: v}, nil
}

// decodeRecord converts an item to a Record, dropping internal attributes.
func decodeRecord(item map[string]types.AttributeValue) (Record, error) {
	rec := Record{}
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	delete(rec, AttrCollection)
	delete(rec, AttrTTL)
	return rec, nil
}

// window applies Sort, Skip and Limit.
func window(records []Record, c Criteria) []Record {
	if len(c.Sort) > 0 {
		sort.SliceStable(records, func(i, j int) bool {
			for _, s := range c.Sort {
				cmp := compareValues(records[i][s.Attribute], records[j][s.Attribute])
				if cmp == 0 {
					continue
				}
				if s.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	if c.Skip > 0 {
		if c.Skip >= len(records) {
			return []Record{}
		}
		records = records[c.Skip:]
	}
	if c.Limit > 0 && c.Limit < len(records) {
		records = records[:c.Limit]
	}
	return records
}

// compareValues orders decoded attribute values: nil first, then numbers,
// strings and booleans; other values compare by their printed form.
func compareValues(x, y any) int {
	rank := func(v any) int {
		switch v.(type) {
		case nil:
			return 0
		case float64:
			return 1
		case string:
			return 2
		case bool:
			return 3
		default:
			return 4
		}
	}
	if rx, ry := rank(x), rank(y); rx != ry {
		return rx - ry
	}

	switch xv := x.(type) {
	case nil:
		return 0
	case float64:
		yv := y.(float64)
		switch {
		case xv < yv:
			return -1
		case xv > yv:
			return 1
		}
		return 0
	case string:
		yv := y.(string)
		switch {
		case xv < yv:
			return -1
		case xv > yv:
			return 1
		}
		return 0
	case bool:
		yv := y.(bool)
		switch {
		case xv == yv:
			return 0
		case !xv:
			return -1
		}
		return 1
	default:
		xs, ys := fmt.Sprint(x), fmt.Sprint(y)
		switch {
		case xs < ys:
			return -1
		case xs > ys:
			return 1
		}
		return 0
	}
}

// isEmpty reports whether a value counts as absent.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// sortedAttrs returns the attribute names of def in sorted order.
func sortedAttrs(def Definition) []string {
	names := make([]string, 0, len(def))
	for name := range def {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
