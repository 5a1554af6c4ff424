package bulk

import (
	"encoding/json"
	"fmt"
	"net"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// TagName is the struct tag read by StructTagProvider.
const TagName = "bulk"

// StructTagProvider derives entity metadata from `bulk` struct tags:
//
//	type Customer struct {
//	    ID      int64        `bulk:"id,pk,generated"`
//	    Code    string       `bulk:"customer_code,type=varchar(40),pk"`
//	    Kind    AccountKind  `bulk:"kind,type=integer,enum=int"`
//	    Notes   string       `bulk:"-"`
//	    Created time.Time    // created, timestamp with time zone
//	}
//
// Untagged exported fields are included with a snake_case column and a
// storage type inferred from the Go type. Embedded structs are flattened.
// The table name comes from a TableName() string method, or the snake_case
// type name; the schema from SchemaName() string or DefaultSchema.
type StructTagProvider struct {
	DefaultSchema string
}

type tableNamer interface{ TableName() string }
type schemaNamer interface{ SchemaName() string }

// EntityMetadata implements MetadataProvider.
func (p StructTagProvider) EntityMetadata(entity reflect.Type) (EntityMetadata, error) {
	for entity.Kind() == reflect.Pointer {
		entity = entity.Elem()
	}
	if entity.Kind() != reflect.Struct {
		return EntityMetadata{}, fmt.Errorf("%w: %s is not a struct", ErrUnresolvedType, entity)
	}

	meta := EntityMetadata{
		Schema: p.DefaultSchema,
		Table:  toSnakeCase(entity.Name()),
	}

	zero := reflect.New(entity).Interface()
	if n, ok := zero.(tableNamer); ok {
		meta.Table = n.TableName()
	}
	if n, ok := zero.(schemaNamer); ok {
		meta.Schema = n.SchemaName()
	}

	fields, err := tagFields(entity, map[reflect.Type]bool{entity: true})
	if err != nil {
		return EntityMetadata{}, err
	}
	meta.Fields = fields
	return meta, nil
}

func tagFields(t reflect.Type, visiting map[reflect.Type]bool) ([]FieldMetadata, error) {
	var out []FieldMetadata

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, tagged := sf.Tag.Lookup(TagName)
		if tag == "-" {
			continue
		}

		if sf.Anonymous && !tagged {
			et := sf.Type
			if et.Kind() == reflect.Pointer {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct && inferStorageType(et) == "" {
				if visiting[et] {
					return nil, fmt.Errorf("%w: %s embeds itself", ErrUnresolvedType, et)
				}
				visiting[et] = true
				nested, err := tagFields(et, visiting)
				delete(visiting, et)
				if err != nil {
					return nil, err
				}
				out = append(out, nested...)
				continue
			}
		}

		if !sf.IsExported() {
			continue
		}

		fm, err := parseFieldTag(sf, tag)
		if err != nil {
			return nil, err
		}
		out = append(out, fm)
	}
	return out, nil
}

// parseFieldTag reads `column,type=...,pk,generated,enum=...`. Options
// may appear in any order after the column name. Commas inside a type
// modifier, as in numeric(12,2), do not separate options.
func parseFieldTag(sf reflect.StructField, tag string) (FieldMetadata, error) {
	fm := FieldMetadata{Field: sf.Name}

	parts := splitTagOptions(tag)
	fm.Column = strings.TrimSpace(parts[0])
	if fm.Column == "" {
		fm.Column = toSnakeCase(sf.Name)
	}

	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		key, val, _ := strings.Cut(opt, "=")
		switch key {
		case "":
		case "pk":
			fm.PrimaryKey = true
		case "generated":
			fm.Generated = true
		case "type":
			fm.StorageType = val
		case "enum":
			kind, ok := ParseEnumKind(val)
			if !ok {
				return FieldMetadata{}, fmt.Errorf("%w: field %s: enum=%q", ErrEnumKind, sf.Name, val)
			}
			fm.Enum = kind
		default:
			return FieldMetadata{}, fmt.Errorf("field %s: unknown tag option %q", sf.Name, key)
		}
	}

	if fm.StorageType == "" {
		fm.StorageType = inferStorageType(sf.Type)
	}
	return fm, nil
}

// splitTagOptions splits tag on commas outside parentheses.
func splitTagOptions(tag string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range tag {
		switch r {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, tag[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, tag[start:])
}

var (
	timeType       = reflect.TypeOf(time.Time{})
	bytesType      = reflect.TypeOf([]byte(nil))
	uuidType       = reflect.TypeOf(uuid.UUID{})
	rawMessageType = reflect.TypeOf(json.RawMessage(nil))
	ipType         = reflect.TypeOf(net.IP(nil))
)

// knownStorageTypes maps concrete Go types to column types. Checked before
// kinds so named library types win over their underlying kind.
var knownStorageTypes = map[reflect.Type]string{
	timeType:       "timestamp with time zone",
	durationType:   "interval",
	bytesType:      "bytea",
	uuidType:       "uuid",
	rawMessageType: "jsonb",
	ipType:         "inet",

	reflect.TypeOf(pgtype.Text{}):        "text",
	reflect.TypeOf(pgtype.Bool{}):        "boolean",
	reflect.TypeOf(pgtype.Int2{}):        "smallint",
	reflect.TypeOf(pgtype.Int4{}):        "integer",
	reflect.TypeOf(pgtype.Int8{}):        "bigint",
	reflect.TypeOf(pgtype.Float4{}):      "real",
	reflect.TypeOf(pgtype.Float8{}):      "double precision",
	reflect.TypeOf(pgtype.Numeric{}):     "numeric",
	reflect.TypeOf(pgtype.Date{}):        "date",
	reflect.TypeOf(pgtype.Timestamp{}):   "timestamp",
	reflect.TypeOf(pgtype.Timestamptz{}): "timestamp with time zone",
	reflect.TypeOf(pgtype.Interval{}):    "interval",
	reflect.TypeOf(pgtype.UUID{}):        "uuid",
}

// inferStorageType returns the column type for a Go type, or "" when the
// type has no obvious column type. Enum-like named types infer from their
// underlying kind.
func inferStorageType(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if s, ok := knownStorageTypes[t]; ok {
		return s
	}

	switch t.Kind() {
	case reflect.Bool:
		return "boolean"
	case reflect.Int8, reflect.Int16, reflect.Uint8:
		return "smallint"
	case reflect.Int32, reflect.Uint16:
		return "integer"
	case reflect.Int, reflect.Int64, reflect.Uint32, reflect.Uint, reflect.Uint64:
		return "bigint"
	case reflect.Float32:
		return "real"
	case reflect.Float64:
		return "double precision"
	case reflect.String:
		return "text"
	case reflect.Slice:
		if elem := inferStorageType(t.Elem()); elem != "" {
			return elem + "[]"
		}
	case reflect.Map:
		if t.Key().Kind() == reflect.String {
			return "jsonb"
		}
	}
	return ""
}

// toSnakeCase converts a Go identifier to snake_case, keeping acronyms
// together: "CustomerID" -> "customer_id", "HTTPStatus" -> "http_status".
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
