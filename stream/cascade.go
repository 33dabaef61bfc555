// Package stream provides DynamoDB Streams handlers for cascade operations.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/compute/adapter"
)

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	adapter  *adapter.Adapter
	identity string
	logger   *slog.Logger
}

// NewHandler creates a new stream handler for the collections of one connection.
func NewHandler(a *adapter.Adapter, identity string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		adapter:  a,
		identity: identity,
		logger:   logger,
	}
}

// HandleCascadeDelete processes DynamoDB stream events to destroy the records
// referencing a soft-deleted record.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	// Only process MODIFY events where TTL was added
	if record.EventName != "MODIFY" {
		return nil
	}

	oldTTL := getNumberAttr(record.Change.OldImage, adapter.AttrTTL)
	newTTL := getNumberAttr(record.Change.NewImage, adapter.AttrTTL)
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	collection := getStringAttr(record.Change.NewImage, adapter.AttrCollection)
	if collection == "" {
		return nil
	}

	def, err := h.adapter.Describe(ctx, h.identity, collection)
	if err != nil {
		return fmt.Errorf("describe %s: %w", collection, err)
	}
	pk := def.PrimaryKey()

	av, ok := ConvertImage(record.Change.NewImage)[pk]
	if !ok {
		return fmt.Errorf("%s record has no primary key %q", collection, pk)
	}
	var key any
	if err := attributevalue.Unmarshal(av, &key); err != nil {
		return fmt.Errorf("decode primary key: %w", err)
	}

	relations, err := h.adapter.Registry().Relations(h.identity, collection)
	if err != nil {
		return err
	}

	h.logger.Info("processing cascade delete",
		"collection", collection,
		"key", key,
		"ttl", newTTL,
		"relations", len(relations),
	)

	// Destroying a referencing record soft-deletes it in turn, which
	// re-enters this handler and continues the cascade.
	var firstErr error
	destroyed := 0
	for _, rel := range relations {
		recs, err := h.adapter.Destroy(ctx, h.identity, rel.Collection, adapter.Criteria{
			Where: map[string]any{rel.Attribute: key},
		})
		destroyed += len(recs)
		if err != nil {
			h.logger.Warn("failed to cascade to relation",
				"collection", rel.Collection,
				"attribute", rel.Attribute,
				"error", err,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("cascade to %s.%s: %w", rel.Collection, rel.Attribute, err)
			}
		}
	}

	h.logger.Info("cascade delete completed",
		"collection", collection,
		"key", key,
		"destroyed", destroyed,
	)
	return firstErr
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok {
		if v.DataType() == events.DataTypeNumber {
			n, _ := strconv.ParseInt(v.Number(), 10, 64)
			return n
		}
	}
	return 0
}

// ConvertImage converts a DynamoDB stream image to SDK attribute values,
// so it can be decoded with attributevalue.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

// convertValue converts one stream attribute value. Unknown types yield nil.
func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := make([]types.AttributeValue, 0, len(v.List()))
		for _, item := range v.List() {
			if av := convertValue(item); av != nil {
				list = append(list, av)
			}
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	default:
		return nil
	}
}
