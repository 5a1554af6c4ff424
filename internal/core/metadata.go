package core

import (
	"fmt"
	"reflect"

	"github.com/JonMunkholm/pgbulk/internal/bulk"
)

// MetadataSource resolves entity metadata from an optional YAML mapping
// file, falling back to struct tags for entities the file does not name.
type MetadataSource struct {
	mapping *bulk.YAMLProvider
	tags    bulk.StructTagProvider
}

// NewMetadataSource builds a source. An empty mappingFile uses struct tags
// only.
func NewMetadataSource(mappingFile, defaultSchema string) (*MetadataSource, error) {
	src := &MetadataSource{tags: bulk.StructTagProvider{DefaultSchema: defaultSchema}}
	if mappingFile == "" {
		return src, nil
	}

	mapping, err := bulk.LoadYAMLProvider(mappingFile)
	if err != nil {
		return nil, fmt.Errorf("load mapping file: %w", err)
	}
	src.mapping = mapping
	return src, nil
}

// EntityMetadata implements bulk.MetadataProvider.
func (m *MetadataSource) EntityMetadata(entity reflect.Type) (bulk.EntityMetadata, error) {
	if m.mapping != nil && m.mapping.Has(entity) {
		return m.mapping.EntityMetadata(entity)
	}
	return m.tags.EntityMetadata(entity)
}
