package adapter

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DefaultPrimaryKey is the primary key attribute used when a definition names none.
const DefaultPrimaryKey = "id"

// Managed attribute names written by the adapter.
const (
	AttrCollection = "_collection"
	AttrCreatedAt  = "created_at"
	AttrUpdatedAt  = "updated_at"
	AttrTTL        = "ttl"
)

// Connection identifies a configured DynamoDB endpoint.
type Connection struct {
	// Identity is the unique connection name. Required.
	Identity string `mapstructure:"identity"`

	// Region is the AWS region. Empty uses the default credential chain's region.
	Region string `mapstructure:"region"`

	// Endpoint overrides the DynamoDB endpoint (e.g. DynamoDB Local).
	Endpoint string `mapstructure:"endpoint"`

	// Profile is the shared config profile to load credentials from.
	Profile string `mapstructure:"profile"`

	// TablePrefix is prepended to collection names to form table names.
	TablePrefix string `mapstructure:"table_prefix"`
}

// Collection describes a collection belonging to a connection.
type Collection struct {
	// Name is the collection name used by the ORM.
	Name string `mapstructure:"name"`

	// TableName overrides the DynamoDB table name (default: TablePrefix + Name).
	TableName string `mapstructure:"table_name"`

	// Definition is the optional schema, defined on registration when set.
	Definition Definition `mapstructure:"definition"`
}

// Attribute describes one attribute of a collection schema.
type Attribute struct {
	// Type is one of "string", "integer", "float", "number", "boolean", "binary", "json".
	Type string `mapstructure:"type" json:"type"`

	// PrimaryKey marks the hash key attribute.
	PrimaryKey bool `mapstructure:"primary_key" json:"primaryKey,omitempty"`

	// Required rejects creates that omit the attribute.
	Required bool `mapstructure:"required" json:"required,omitempty"`

	// Unique is informational; DynamoDB only enforces uniqueness of the primary key.
	Unique bool `mapstructure:"unique" json:"unique,omitempty"`

	// Model names the collection this attribute references (a foreign key).
	Model string `mapstructure:"model" json:"model,omitempty"`
}

// Definition maps attribute names to their schema.
type Definition map[string]Attribute

// PrimaryKey returns the primary key attribute name.
// If several attributes are marked, the first in sorted order wins.
func (d Definition) PrimaryKey() string {
	pk := ""
	for name, attr := range d {
		if attr.PrimaryKey && (pk == "" || name < pk) {
			pk = name
		}
	}
	if pk == "" {
		return DefaultPrimaryKey
	}
	return pk
}

// KeyType returns the DynamoDB scalar type of the primary key.
func (d Definition) KeyType() types.ScalarAttributeType {
	return scalarType(d[d.PrimaryKey()].Type)
}

// clone returns a copy of d so callers can't mutate stored definitions.
func (d Definition) clone() Definition {
	if d == nil {
		return nil
	}
	out := make(Definition, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// scalarType maps an attribute type to a DynamoDB key type. Unknown types are strings.
func scalarType(t string) types.ScalarAttributeType {
	switch t {
	case "integer", "float", "number":
		return types.ScalarAttributeTypeN
	case "binary":
		return types.ScalarAttributeTypeB
	default:
		return types.ScalarAttributeTypeS
	}
}

// Record is a stored item decoded into Go values.
type Record map[string]any

// Sort orders Find results by an attribute.
type Sort struct {
	Attribute string
	Desc      bool
}

// Criteria selects records.
type Criteria struct {
	// Where maps attribute names to a value or a slice of candidate values.
	// A nil or empty Where matches every record.
	Where map[string]any

	// Limit is the maximum number of records to return (0 = no limit).
	Limit int

	// Skip drops this many records from the start of the sorted result.
	Skip int

	// Sort orders the result. Records are compared on each entry in turn.
	Sort []Sort
}

// Relation is a reference from an attribute of one collection to another collection.
type Relation struct {
	// Collection is the referencing collection.
	Collection string

	// Attribute is the referencing attribute in Collection.
	Attribute string
}
