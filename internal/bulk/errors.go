package bulk

import (
	"errors"
	"fmt"
)

// Mapping errors. Returned wrapped in *MappingError by Resolve and New.
var (
	ErrNoPrimaryKey    = errors.New("no primary key")
	ErrUnresolvedType  = errors.New("storage type cannot be resolved")
	ErrUnknownField    = errors.New("unknown field")
	ErrEnumKind        = errors.New("enum cannot be written with this wire kind")
	ErrDuplicateColumn = errors.New("duplicate column")
)

// Transfer faults. Returned wrapped in *TransferFault while streaming rows.
var (
	ErrTypeMismatch = errors.New("value does not match wire type")
	ErrNilRow       = errors.New("nil row")
	ErrRowCount     = errors.New("copied row count does not match input")
)

// Validation errors. Returned wrapped in *ValidationError before any I/O.
var (
	ErrNoUpdateColumns     = errors.New("no non-key columns to update")
	ErrNoInsertColumns     = errors.New("no insertable columns")
	ErrTransactionRequired = errors.New("update requires a transaction")
	ErrNoConnection        = errors.New("no connection or transaction")
)

// ErrStagingConflict is wrapped in *ConflictError when the staging table
// name is already taken in the session.
var ErrStagingConflict = errors.New("staging table already exists")

// MappingError reports an entity whose metadata cannot be turned into
// column mappings. It is fatal at construction time.
type MappingError struct {
	Entity string
	Field  string
	Err    error
}

func (e *MappingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("bulk mapping %s.%s: %v", e.Entity, e.Field, e.Err)
	}
	return fmt.Sprintf("bulk mapping %s: %v", e.Entity, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// TransferFault reports a value that could not be streamed. Row is the
// zero-based index into the input slice.
type TransferFault struct {
	Row      int
	Field    string
	Column   string
	WireType string
	Err      error
}

func (e *TransferFault) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("bulk transfer row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("bulk transfer row %d column %s (%s): %v", e.Row, e.Column, e.WireType, e.Err)
}

func (e *TransferFault) Unwrap() error { return e.Err }

// ValidationError reports a call that cannot be executed as requested.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bulk %s: %v", e.Op, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConflictError reports a staging table name collision. The caller may
// retry the whole operation.
type ConflictError struct {
	Staging string
	Err     error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("bulk staging %s: %v", e.Staging, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the operation can succeed.
func (e *ConflictError) Retryable() bool { return true }
