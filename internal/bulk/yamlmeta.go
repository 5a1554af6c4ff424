package bulk

import (
	"fmt"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"
)

// YAMLProvider serves entity metadata from a mapping file:
//
//	entities:
//	  Customer:
//	    schema: public
//	    table: customers
//	    fields:
//	      - field: Code
//	        column: customer_code
//	        type: character varying(40)
//	        primary_key: true
//	      - field: Kind
//	        column: kind
//	        type: integer
//	        enum: int
//
// Entities are keyed by Go type name ("Customer") or by the qualified
// name reflect reports ("tables.Customer"); the qualified key wins.
type YAMLProvider struct {
	entities map[string]yamlEntity
}

type yamlFile struct {
	Entities map[string]yamlEntity `yaml:"entities"`
}

type yamlEntity struct {
	Schema string      `yaml:"schema"`
	Table  string      `yaml:"table"`
	Fields []yamlField `yaml:"fields"`
}

type yamlField struct {
	Field      string `yaml:"field"`
	Column     string `yaml:"column"`
	Type       string `yaml:"type"`
	PrimaryKey bool   `yaml:"primary_key"`
	Generated  bool   `yaml:"generated"`
	Enum       string `yaml:"enum"`
}

// LoadYAMLProvider reads a mapping file from disk.
func LoadYAMLProvider(path string) (*YAMLProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	p, err := ParseYAMLProvider(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseYAMLProvider parses mapping file contents.
func ParseYAMLProvider(data []byte) (*YAMLProvider, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse mapping file: %w", err)
	}

	for name, e := range f.Entities {
		for i, fd := range e.Fields {
			if fd.Field == "" {
				return nil, fmt.Errorf("entity %s: field %d has no name", name, i)
			}
			if _, ok := ParseEnumKind(fd.Enum); !ok {
				return nil, fmt.Errorf("entity %s: field %s: %w: enum=%q", name, fd.Field, ErrEnumKind, fd.Enum)
			}
		}
	}

	if f.Entities == nil {
		f.Entities = map[string]yamlEntity{}
	}
	return &YAMLProvider{entities: f.Entities}, nil
}

// Has reports whether the file describes the entity type.
func (p *YAMLProvider) Has(entity reflect.Type) bool {
	_, ok := p.lookup(entity)
	return ok
}

// EntityMetadata implements MetadataProvider.
func (p *YAMLProvider) EntityMetadata(entity reflect.Type) (EntityMetadata, error) {
	e, ok := p.lookup(entity)
	if !ok {
		return EntityMetadata{}, fmt.Errorf("no mapping for entity %s", entity)
	}

	meta := EntityMetadata{
		Schema: e.Schema,
		Table:  e.Table,
		Fields: make([]FieldMetadata, 0, len(e.Fields)),
	}
	for _, fd := range e.Fields {
		kind, _ := ParseEnumKind(fd.Enum)
		column := fd.Column
		if column == "" {
			column = toSnakeCase(fd.Field)
		}
		meta.Fields = append(meta.Fields, FieldMetadata{
			Field:       fd.Field,
			Column:      column,
			StorageType: fd.Type,
			PrimaryKey:  fd.PrimaryKey,
			Generated:   fd.Generated,
			Enum:        kind,
		})
	}
	return meta, nil
}

func (p *YAMLProvider) lookup(entity reflect.Type) (yamlEntity, bool) {
	for entity.Kind() == reflect.Pointer {
		entity = entity.Elem()
	}
	if e, ok := p.entities[entity.String()]; ok {
		return e, true
	}
	e, ok := p.entities[entity.Name()]
	return e, ok
}
