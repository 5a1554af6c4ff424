package core

// error_messages.go maps technical errors to user-facing messages with a
// code support staff can look up.
//
// Codes by category:
//
//	MAP001-MAP099   entity mapping (bulk.MappingError)
//	XFER001-XFER099 rows rejected while streaming COPY (bulk.TransferFault)
//	TX001-TX099     transaction scope and staging tables
//	DB001-DB099     database constraints and connectivity
//	VAL001-VAL099   CSV and request validation
//	FILE001-FILE099 file handling
//	LOAD001-LOAD099 load lifecycle (limits, cancellation, timeouts)
//	TBL001-TBL099   table registry
//	ERR000          fallback; check the logs for the technical error
//
// Typed errors from the bulk package and PostgreSQL SQLSTATE codes are
// resolved first with errors.As/errors.Is. Everything else falls through
// to case-insensitive substring patterns where the first match wins, so
// specific patterns come before general ones.

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/pgbulk/internal/bulk"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// sentinelMessages maps bulk sentinels to messages. Order matters: the
// first sentinel found in the chain wins.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{bulk.ErrNoPrimaryKey, UserMessage{"Table has no primary key mapped", "Mark the key columns in the entity mapping", "MAP001"}},
	{bulk.ErrUnresolvedType, UserMessage{"A column has no known PostgreSQL type", "Set an explicit type in the entity mapping", "MAP002"}},
	{bulk.ErrEnumKind, UserMessage{"An enum column does not match its storage type", "Map enums to int2/int4/int8 or a text column", "MAP003"}},
	{bulk.ErrDuplicateColumn, UserMessage{"Two fields map to the same column", "Fix the duplicate column in the entity mapping", "MAP004"}},

	{bulk.ErrTypeMismatch, UserMessage{"A value does not match its column type", "Check the failing row against the column type", "XFER001"}},
	{bulk.ErrNilRow, UserMessage{"An empty row reached the database", "Remove blank records and try again", "XFER002"}},
	{bulk.ErrRowCount, UserMessage{"The database stored a different number of rows than sent", "Please try again or contact support", "XFER003"}},

	{bulk.ErrUnknownField, UserMessage{"Update names a column this table does not have", "Check the fields parameter against the table columns", "VAL007"}},
	{bulk.ErrNoUpdateColumns, UserMessage{"Update has no columns to write", "Name at least one non-key column", "VAL008"}},
	{bulk.ErrNoInsertColumns, UserMessage{"Table has no insertable columns", "Check the entity mapping", "VAL009"}},

	{bulk.ErrTransactionRequired, UserMessage{"Update needs a transaction", "Enable BULK_AUTO_TRANSACTIONS or pass a transaction", "TX001"}},
	{bulk.ErrStagingConflict, UserMessage{"A staging table name was already taken", "Please try again", "TX002"}},
	{bulk.ErrNoConnection, UserMessage{"No database connection available", "Please try again in a few moments", "TX003"}},

	{ErrTooManyLoads, UserMessage{"System is busy processing other loads", "Please wait a moment and try again", "LOAD002"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "LOAD004"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Try loading a smaller file or check your connection", "LOAD005"}},
}

// sqlStateMessages maps PostgreSQL error codes to messages.
var sqlStateMessages = map[string]UserMessage{
	"23505": {"A record with this ID already exists", "Download failed rows to review duplicates", "DB001"},
	"23503": {"Referenced record does not exist", "Ensure parent records are loaded first", "DB003"},
	"23502": {"A required column was left empty", "Fill the column or give it a default", "DB008"},
	"22P02": {"A value has the wrong format for its column", "Check the column types of the target table", "DB009"},
	"40P01": {"Database was busy with conflicting operations", "Please try again", "DB007"},
	"42P01": {"Target table does not exist", "Create the table or fix the mapping", "TBL001"},
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
var errorPatterns = []errorPattern{
	// Database
	{"duplicate key", UserMessage{"A record with this ID already exists", "Download failed rows to review duplicates", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your CSV", "DB002"}},
	{"violates unique", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your CSV", "DB002"}},
	{"foreign key constraint", UserMessage{"Referenced record does not exist", "Ensure parent records are loaded first", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try loading a smaller file or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// Validation
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Remove currency symbols and use standard decimal format", "VAL002"}},
	{"required field", UserMessage{"Required field is empty", "Ensure all required columns have values", "VAL003"}},
	{"missing required column", UserMessage{"Required column is missing from CSV", "Check that all required columns are present in your file", "VAL004"}},
	{"header not found", UserMessage{"Expected header row not found in CSV", "Verify column headers match the table columns", "VAL005"}},
	{"invalid mode", UserMessage{"Unknown load mode", "Use insert or update", "VAL006"}},

	// File
	{"file too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{"parse csv", UserMessage{"File is not a valid CSV", "Ensure file is comma-separated with consistent columns", "FILE002"}},
	{"no file provided", UserMessage{"No file was provided", "Send a CSV body or a multipart file field", "FILE004"}},
	{"empty file", UserMessage{"The file is empty", "Send a CSV file with data rows", "FILE005"}},

	// Load lifecycle
	{"load cancelled", UserMessage{"Load was cancelled", "Start a new load when ready", "LOAD001"}},

	// Tables
	{"unknown table", UserMessage{"Unknown table type", "This table type is not configured", "TBL002"}},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
//	_, err := helper.Update(ctx, pool, rows, nil, "Name")
//	msg := MapError(err)
//	// msg.Code == "VAL007" when "Name" is not a mapped field
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := sqlStateMessages[pgErr.Code]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
