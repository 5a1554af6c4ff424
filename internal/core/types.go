package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/pgbulk/internal/bulk"
)

// FieldType represents the expected data type for a CSV field.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
	FieldInt
)

// FieldSpec defines validation rules for a single CSV column.
type FieldSpec struct {
	Name       string              // Column header name (matched case-insensitively)
	Field      string              // Entity struct field the column fills
	Type       FieldType           // Expected data type
	Required   bool                // Column must exist in CSV header
	AllowEmpty bool                // If true, empty values are allowed even when Required
	EnumValues []string            // Valid values for FieldEnum type
	Normalizer func(string) string // Optional transformation function
}

// TableInfo contains display information about a table.
type TableInfo struct {
	Key     string      `json:"key"`     // Unique identifier: "sfdc_customers"
	Group   string      `json:"group"`   // Data source: "SFDC", "Anrok"
	Label   string      `json:"label"`   // Display name: "Customers"
	Columns []string    `json:"columns"` // Header column names
	Keys    []string    `json:"keys"`    // Header names of the primary key columns
	Fields  []FieldInfo `json:"fields"`  // Derived from FieldSpecs on Register
}

// FieldInfo describes one CSV column to API clients.
type FieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// LoadMode selects how a CSV file is written.
type LoadMode string

const (
	ModeInsert LoadMode = "insert"
	ModeUpdate LoadMode = "update"
)

// Valid reports whether m is a known mode.
func (m LoadMode) Valid() bool {
	return m == ModeInsert || m == ModeUpdate
}

// SessionConfig is handed to a Loader when a load starts.
type SessionConfig struct {
	LoadID   uuid.UUID
	Provider bulk.MetadataProvider
	Options  []bulk.Option
}

// Loader turns CSV rows of one table into entities and writes them.
type Loader interface {
	Session(cfg SessionConfig) (LoadSession, error)
}

// LoadSession buffers parsed rows of one load until they are flushed.
type LoadSession interface {
	// Add parses a data row. A returned error rejects the row only.
	Add(row []string, idx HeaderIndex) error

	// Pending returns the number of buffered rows.
	Pending() int

	// Discard drops the buffered row at position i.
	Discard(i int)

	// Flush writes the buffered rows in tx and clears the buffer. On error
	// the rows stay buffered.
	Flush(ctx context.Context, conn bulk.Conn, tx pgx.Tx, mode LoadMode, fields []string) (int64, error)
}

// TableDefinition contains everything needed to process a table.
type TableDefinition struct {
	Info       TableInfo
	FieldSpecs []FieldSpec
	Loader     Loader
}

// UpdateFields translates header names into entity field names for a
// filtered update. Names that already are entity fields pass through, as
// do unknown names so the bulk helper can reject them.
func (t TableDefinition) UpdateFields(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		field := name
		for _, spec := range t.FieldSpecs {
			if spec.Field != "" && strings.EqualFold(spec.Name, name) {
				field = spec.Field
				break
			}
		}
		out = append(out, field)
	}
	return out
}

// LoadRequest describes one CSV file to write into a table.
type LoadRequest struct {
	TableKey string
	FileName string
	Mode     LoadMode
	Fields   []string // Update only: header or field names to write
	Size     int64    // Body size if known, 0 otherwise
}

// FailedRow contains information about a row that was rejected.
type FailedRow struct {
	LineNumber int      `json:"line"`
	Reason     string   `json:"reason"`
	Data       []string `json:"data,omitempty"`
}

// LoadResult contains the final result of a load.
type LoadResult struct {
	LoadID     string        `json:"load_id"`
	TableKey   string        `json:"table"`
	FileName   string        `json:"file_name,omitempty"`
	Mode       LoadMode      `json:"mode"`
	TotalRows  int           `json:"total_rows"`
	Written    int64         `json:"written"`
	Skipped    int           `json:"skipped"`
	Batches    int           `json:"batches"`
	BytesRead  int64         `json:"bytes_read"`
	FailedRows []FailedRow   `json:"failed_rows,omitempty"`
	Duration   time.Duration `json:"duration"`
}
