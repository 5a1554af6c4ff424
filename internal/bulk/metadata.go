// Package bulk writes whole slices of one struct type into a PostgreSQL
// table through the binary COPY protocol.
//
// A [Helper] resolves the column mapping of its entity type once, in [New],
// and reuses it for every call:
//
//	helper, err := bulk.New[Customer](bulk.StructTagProvider{})
//	if err != nil {
//	    return err
//	}
//	n, err := helper.Insert(ctx, pool, customers, nil)
//
// Insert streams rows straight into the target table. Update streams them
// into a transaction-scoped temp table shaped like the target and merges
// them with a single UPDATE ... FROM joined on the primary key columns.
//
// # Transactions
//
// When the caller passes a pgx.Tx the helper works inside a savepoint and
// never commits or rolls back the caller's transaction. Without one, the
// helper opens and commits its own transaction unless auto transactions
// are disabled with [WithAutoTransactions].
//
// # Metadata
//
// Column names, storage types and key flags come from a [MetadataProvider].
// [StructTagProvider] reads `bulk` struct tags; [YAMLProvider] reads a
// mapping file.
package bulk

import "reflect"

// EnumKind selects how an enum-like field is written.
type EnumKind int

const (
	// EnumAuto detects enum-like fields from their Go type.
	EnumAuto EnumKind = iota
	// EnumNone writes the value as-is.
	EnumNone
	// EnumInteger writes the ordinal value.
	EnumInteger
	// EnumText writes the name returned by String().
	EnumText
)

func (k EnumKind) String() string {
	switch k {
	case EnumAuto:
		return "auto"
	case EnumNone:
		return "none"
	case EnumInteger:
		return "int"
	case EnumText:
		return "text"
	default:
		return "unknown"
	}
}

// ParseEnumKind parses the tag and mapping-file spelling of an EnumKind.
func ParseEnumKind(s string) (EnumKind, bool) {
	switch s {
	case "", "auto":
		return EnumAuto, true
	case "none":
		return EnumNone, true
	case "int", "integer":
		return EnumInteger, true
	case "text", "string":
		return EnumText, true
	}
	return EnumAuto, false
}

// FieldMetadata describes one persisted struct field.
type FieldMetadata struct {
	Field       string // Go struct field name
	Column      string // Unquoted column name
	StorageType string // Column type as declared, e.g. "character varying(40)"
	PrimaryKey  bool
	Generated   bool // Assigned by the database; skipped on insert
	Enum        EnumKind
}

// EntityMetadata describes the table an entity type is stored in.
type EntityMetadata struct {
	Schema string
	Table  string
	Fields []FieldMetadata
}

// MetadataProvider supplies entity metadata. It is called once per helper.
type MetadataProvider interface {
	EntityMetadata(entity reflect.Type) (EntityMetadata, error)
}

// MetadataFunc adapts a function to MetadataProvider.
type MetadataFunc func(entity reflect.Type) (EntityMetadata, error)

// EntityMetadata implements MetadataProvider.
func (f MetadataFunc) EntityMetadata(entity reflect.Type) (EntityMetadata, error) {
	return f(entity)
}
