package bulk

// wiretypes.go normalizes declared column types into pgtype type names.
//
// Declared types arrive in whatever spelling the metadata source uses:
// "timestamp(3) with time zone", "character varying(40)", "INTEGER",
// "numeric(12,2)[]". The binary encoder only knows the short pgtype names,
// so every declared type goes through NormalizeWireType:
//
//  1. lowercase, trim, collapse whitespace
//  2. strip type modifiers ("(40)", "(12,2)")
//  3. peel a trailing "[]" and remember it
//  4. look the base up in wireAliases
//  5. re-apply the array marker as pgtype's "_" prefix
//
// Types not in the table pass through unchanged; they are usually
// user-defined (enums, domains) and are encoded by whatever pgx knows about
// the server-side type.

import (
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

var (
	typeModifierRegex = regexp.MustCompile(`\(\s*\d+\s*(,\s*\d+\s*)?\)`)
	whitespaceRegex   = regexp.MustCompile(`\s+`)
)

// wireAliases maps declared type spellings to pgtype names.
// Add new spellings here; nothing else needs to change.
var wireAliases = map[string]string{
	// Integers
	"smallint":    "int2",
	"int2":        "int2",
	"smallserial": "int2",
	"serial2":     "int2",
	"integer":     "int4",
	"int":         "int4",
	"int4":        "int4",
	"serial":      "int4",
	"serial4":     "int4",
	"bigint":      "int8",
	"int8":        "int8",
	"bigserial":   "int8",
	"serial8":     "int8",

	// Floating point and exact numerics
	"real":             "float4",
	"float4":           "float4",
	"double precision": "float8",
	"float8":           "float8",
	"float":            "float8",
	"numeric":          "numeric",
	"decimal":          "numeric",

	// Text
	"text":              "text",
	"character varying": "varchar",
	"varchar":           "varchar",
	"character":         "bpchar",
	"char":              "bpchar",
	"bpchar":            "bpchar",
	"name":              "name",

	// Boolean
	"boolean": "bool",
	"bool":    "bool",

	// Date and time
	"date":                        "date",
	"timestamp":                   "timestamp",
	"timestamp without time zone": "timestamp",
	"timestamptz":                 "timestamptz",
	"timestamp with time zone":    "timestamptz",
	"time":                        "time",
	"time without time zone":      "time",
	"interval":                    "interval",

	// Other builtins
	"uuid":  "uuid",
	"json":  "json",
	"jsonb": "jsonb",
	"bytea": "bytea",
	"inet":  "inet",
	"cidr":  "cidr",
	"xml":   "xml",
}

// integerWireTypes is the integer family used for enum detection.
var integerWireTypes = map[string]bool{
	"int2": true,
	"int4": true,
	"int8": true,
}

// NormalizeWireType converts a declared column type into the pgtype name
// used to pick a binary encoding. It returns "" for an empty declaration.
func NormalizeWireType(declared string) string {
	s := strings.ToLower(strings.TrimSpace(declared))
	if s == "" {
		return ""
	}

	s = typeModifierRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))

	array := false
	if strings.HasSuffix(s, "[]") {
		array = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "[]"))
	}

	if alias, ok := wireAliases[s]; ok {
		s = alias
	}

	if array {
		return "_" + s
	}
	return s
}

// IsIntegerWireType reports whether a normalized wire type belongs to the
// integer family. Enum fields mapped to such columns are written as their
// ordinal value.
func IsIntegerWireType(wire string) bool {
	return integerWireTypes[wire]
}

// wireTypeOID returns the OID pgx registers for a wire type name, or 0 for
// types pgx does not know without a server round trip.
func wireTypeOID(typeMap *pgtype.Map, wire string) uint32 {
	if t, ok := typeMap.TypeForName(wire); ok {
		return t.OID
	}
	return 0
}
