package bulk

import (
	"fmt"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var (
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	durationType = reflect.TypeOf(time.Duration(0))
)

// ColumnMapping binds one struct field to one table column.
type ColumnMapping struct {
	Field        string   // Go struct field name
	Column       string   // Unquoted column name
	QuotedColumn string   // Quoted once at resolution
	StorageType  string   // As declared by the metadata provider
	WireType     string   // Normalized pgtype name
	PrimaryKey   bool
	Generated    bool
	Enum         EnumKind // EnumNone, EnumInteger or EnumText after resolution

	index []int
	oid   uint32
}

// IsEnum reports whether the field is written through enum coercion.
func (c ColumnMapping) IsEnum() bool {
	return c.Enum == EnumInteger || c.Enum == EnumText
}

// value reads the field from a struct value using the bound index path.
func (c ColumnMapping) value(row reflect.Value) (reflect.Value, error) {
	return row.FieldByIndexErr(c.index)
}

// Mapping is the resolved, immutable column mapping of an entity type.
// It is safe to share between goroutines.
type Mapping struct {
	entity  reflect.Type
	schema  string
	table   string
	columns []ColumnMapping
}

// Entity returns the struct type the mapping was resolved for.
func (m *Mapping) Entity() reflect.Type { return m.entity }

// Schema returns the target schema, or "" for the search path default.
func (m *Mapping) Schema() string { return m.schema }

// Table returns the unquoted target table name.
func (m *Mapping) Table() string { return m.table }

// Target returns the target table identifier.
func (m *Mapping) Target() pgx.Identifier {
	if m.schema == "" {
		return pgx.Identifier{m.table}
	}
	return pgx.Identifier{m.schema, m.table}
}

// Columns returns a copy of all column mappings in wire order.
func (m *Mapping) Columns() []ColumnMapping {
	out := make([]ColumnMapping, len(m.columns))
	copy(out, m.columns)
	return out
}

// Insertable returns the mappings written by Insert: everything the
// database does not generate.
func (m *Mapping) Insertable() []ColumnMapping {
	out := make([]ColumnMapping, 0, len(m.columns))
	for _, c := range m.columns {
		if !c.Generated {
			out = append(out, c)
		}
	}
	return out
}

// PrimaryKeys returns the primary key mappings in wire order.
func (m *Mapping) PrimaryKeys() []ColumnMapping {
	var out []ColumnMapping
	for _, c := range m.columns {
		if c.PrimaryKey {
			out = append(out, c)
		}
	}
	return out
}

// ForUpdate returns the mappings written by Update. With no fields every
// mapping is used; otherwise primary keys plus the named fields.
func (m *Mapping) ForUpdate(fields []string) ([]ColumnMapping, error) {
	if len(fields) == 0 {
		return m.Columns(), nil
	}

	wanted := make(map[string]bool, len(fields))
	for _, f := range fields {
		wanted[f] = true
	}

	out := make([]ColumnMapping, 0, len(fields)+1)
	for _, c := range m.columns {
		if c.PrimaryKey || wanted[c.Field] {
			out = append(out, c)
		}
		delete(wanted, c.Field)
	}

	for _, f := range fields {
		if wanted[f] {
			return nil, &ValidationError{Op: "update", Err: fmt.Errorf("%w: %s", ErrUnknownField, f)}
		}
	}

	return out, nil
}

// ForStaging returns the mappings copied into an update's staging table:
// every insertable mapping plus those in update. The staging table keeps
// the target's NOT NULL constraints, so columns outside a field filter
// still need values.
func (m *Mapping) ForStaging(update []ColumnMapping) []ColumnMapping {
	inUpdate := make(map[string]bool, len(update))
	for _, c := range update {
		inUpdate[c.Column] = true
	}

	out := make([]ColumnMapping, 0, len(m.columns))
	for _, c := range m.columns {
		if !c.Generated || inUpdate[c.Column] {
			out = append(out, c)
		}
	}
	return out
}

// Resolve builds the column mapping of an entity type from provider
// metadata. The entity must be a struct or a pointer to a struct.
// Resolve never touches the database.
func Resolve(entity reflect.Type, provider MetadataProvider) (*Mapping, error) {
	structType := entity
	for structType != nil && structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType == nil || structType.Kind() != reflect.Struct {
		return nil, &MappingError{Entity: fmt.Sprint(entity), Err: fmt.Errorf("%w: entity must be a struct", ErrUnresolvedType)}
	}
	name := structType.Name()

	meta, err := provider.EntityMetadata(structType)
	if err != nil {
		return nil, &MappingError{Entity: name, Err: err}
	}
	if meta.Table == "" {
		return nil, &MappingError{Entity: name, Err: fmt.Errorf("%w: no table name", ErrUnresolvedType)}
	}

	typeMap := pgtype.NewMap()
	seen := make(map[string]bool, len(meta.Fields))
	columns := make([]ColumnMapping, 0, len(meta.Fields))
	hasKey := false

	for _, fm := range meta.Fields {
		col, err := resolveField(structType, typeMap, fm)
		if err != nil {
			return nil, &MappingError{Entity: name, Field: fm.Field, Err: err}
		}
		if seen[col.Column] {
			return nil, &MappingError{Entity: name, Field: fm.Field, Err: fmt.Errorf("%w: %s", ErrDuplicateColumn, col.Column)}
		}
		seen[col.Column] = true
		hasKey = hasKey || col.PrimaryKey
		columns = append(columns, col)
	}

	if !hasKey {
		return nil, &MappingError{Entity: name, Err: ErrNoPrimaryKey}
	}

	return &Mapping{
		entity:  structType,
		schema:  meta.Schema,
		table:   meta.Table,
		columns: columns,
	}, nil
}

func resolveField(structType reflect.Type, typeMap *pgtype.Map, fm FieldMetadata) (ColumnMapping, error) {
	sf, ok := structType.FieldByName(fm.Field)
	if !ok {
		return ColumnMapping{}, ErrUnknownField
	}
	if fm.Column == "" {
		return ColumnMapping{}, fmt.Errorf("%w: empty column name", ErrUnknownField)
	}

	wire := NormalizeWireType(fm.StorageType)
	if wire == "" {
		return ColumnMapping{}, ErrUnresolvedType
	}

	enum, err := resolveEnumKind(sf.Type, wire, fm.Enum)
	if err != nil {
		return ColumnMapping{}, err
	}

	return ColumnMapping{
		Field:        sf.Name,
		Column:       fm.Column,
		QuotedColumn: quoteIdent(fm.Column),
		StorageType:  fm.StorageType,
		WireType:     wire,
		PrimaryKey:   fm.PrimaryKey,
		Generated:    fm.Generated,
		Enum:         enum,
		index:        sf.Index,
		oid:          wireTypeOID(typeMap, wire),
	}, nil
}

// resolveEnumKind decides how a field is written. Explicit kinds win over
// detection; detection picks EnumInteger for integer wire types and
// EnumText otherwise.
func resolveEnumKind(fieldType reflect.Type, wire string, declared EnumKind) (EnumKind, error) {
	t := fieldType
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	kind := declared
	if kind == EnumAuto {
		if !isEnumLike(t) {
			return EnumNone, nil
		}
		kind = EnumText
		if IsIntegerWireType(wire) {
			kind = EnumInteger
		}
	}

	switch kind {
	case EnumInteger:
		if !isIntegerKind(t.Kind()) {
			return 0, fmt.Errorf("%w: %s has no ordinal value", ErrEnumKind, t)
		}
	case EnumText:
		if t.Kind() != reflect.String && !t.Implements(stringerType) {
			return 0, fmt.Errorf("%w: %s has no String method", ErrEnumKind, t)
		}
	}
	return kind, nil
}

// isEnumLike reports whether t is a named constant type: a defined integer
// type with a String method, or a defined string type.
func isEnumLike(t reflect.Type) bool {
	if t.PkgPath() == "" || t.Name() == "" || t == durationType {
		return false
	}
	switch {
	case isIntegerKind(t.Kind()):
		return t.Implements(stringerType)
	case t.Kind() == reflect.String:
		return true
	}
	return false
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}
