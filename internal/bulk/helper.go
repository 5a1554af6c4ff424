package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// duplicateTable is SQLSTATE 42P07.
const duplicateTable = "42P07"

// Helper writes slices of T into the table T is mapped to. The mapping is
// resolved once in New; a Helper is safe for concurrent use.
type Helper[T any] struct {
	mapping       *Mapping
	autoTx        bool
	stagingPrefix string
	logger        *slog.Logger
}

type options struct {
	autoTx        bool
	stagingPrefix string
	logger        *slog.Logger
}

// Option configures a Helper.
type Option func(*options)

// WithAutoTransactions controls whether calls without a caller transaction
// open their own. Enabled by default.
func WithAutoTransactions(enabled bool) Option {
	return func(o *options) { o.autoTx = enabled }
}

// WithLogger sets the logger used for per-call debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStagingPrefix sets the first segment of staging table names.
func WithStagingPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.stagingPrefix = prefix
		}
	}
}

// New resolves the mapping of T through provider. Mapping problems are
// returned as *MappingError.
func New[T any](provider MetadataProvider, opts ...Option) (*Helper[T], error) {
	o := options{
		autoTx:        true,
		stagingPrefix: DefaultStagingPrefix,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	mapping, err := Resolve(reflect.TypeFor[T](), provider)
	if err != nil {
		return nil, err
	}

	return &Helper[T]{
		mapping:       mapping,
		autoTx:        o.autoTx,
		stagingPrefix: o.stagingPrefix,
		logger:        o.logger,
	}, nil
}

// With returns a copy of h with opts applied on top of its current
// options. The copy shares the resolved mapping.
func (h *Helper[T]) With(opts ...Option) *Helper[T] {
	o := options{
		autoTx:        h.autoTx,
		stagingPrefix: h.stagingPrefix,
		logger:        h.logger,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Helper[T]{
		mapping:       h.mapping,
		autoTx:        o.autoTx,
		stagingPrefix: o.stagingPrefix,
		logger:        o.logger,
	}
}

// Mapping returns the resolved mapping.
func (h *Helper[T]) Mapping() *Mapping {
	return h.mapping
}

// Insert copies rows into the target table and returns the number of rows
// written. Generated columns are left to the database.
//
// A time.Time outside UTC is written as its wall clock reading in UTC,
// for timestamptz columns too: a time.Local value from time.Now() is
// stored shifted by the local offset. Pass UTC times to keep the instant.
//
// With a non-nil tx the copy runs in a savepoint of tx. Otherwise it runs
// in a transaction opened on conn, or directly on conn when auto
// transactions are disabled.
func (h *Helper[T]) Insert(ctx context.Context, conn Conn, rows []T, tx pgx.Tx) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	cols := h.mapping.Insertable()
	if len(cols) == 0 {
		return 0, &ValidationError{Op: "insert", Err: ErrNoInsertColumns}
	}
	if conn == nil && tx == nil {
		return 0, &ValidationError{Op: "insert", Err: ErrNoConnection}
	}

	target := h.mapping.Target()
	start := time.Now()

	var n int64
	run := func(q Querier) error {
		var err error
		n, err = copyRows(ctx, q, rows, cols, target)
		return err
	}

	var err error
	if tx == nil && !h.autoTx {
		err = run(conn)
	} else {
		err = h.inScope(ctx, "insert", conn, tx, func(scope pgx.Tx) error { return run(scope) })
	}
	if err != nil {
		return 0, err
	}

	h.logger.Debug("bulk insert",
		"table", target.Sanitize(),
		"rows", n,
		"columns", len(cols),
		"duration", time.Since(start),
	)
	return n, nil
}

// Update merges rows into the target table by primary key and returns the
// number of target rows updated. With no fields every mapped column is
// written; otherwise only the named fields, joined on the primary keys.
//
// Rows are copied into a temp staging table shaped like the target and
// merged with one UPDATE ... FROM. Staging receives every insertable
// column, so NOT NULL columns outside the filter must still hold values. Rows whose keys match nothing are
// ignored. Update needs a transaction: tx, or one opened on conn.
// Times are written as described on Insert.
func (h *Helper[T]) Update(ctx context.Context, conn Conn, rows []T, tx pgx.Tx, fields ...string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	cols, err := h.mapping.ForUpdate(fields)
	if err != nil {
		return 0, err
	}

	target := h.mapping.Target()
	staging := stagingName(h.stagingPrefix, h.mapping.Table(), time.Now())

	merge, err := mergeSQL(target, staging, cols)
	if err != nil {
		return 0, &ValidationError{Op: "update", Err: err}
	}
	if tx == nil && !h.autoTx {
		return 0, &ValidationError{Op: "update", Err: ErrTransactionRequired}
	}
	if conn == nil && tx == nil {
		return 0, &ValidationError{Op: "update", Err: ErrNoConnection}
	}

	start := time.Now()
	var affected int64

	err = h.inScope(ctx, "update", conn, tx, func(scope pgx.Tx) error {
		if _, err := scope.Exec(ctx, stagingDDL(staging, target)); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == duplicateTable {
				return &ConflictError{Staging: staging, Err: fmt.Errorf("%w: %w", ErrStagingConflict, err)}
			}
			return fmt.Errorf("create staging table %s: %w", staging, err)
		}

		copied, err := copyRows(ctx, scope, rows, h.mapping.ForStaging(cols), pgx.Identifier{staging})
		if err != nil {
			return err
		}

		tag, err := scope.Exec(ctx, merge)
		if err != nil {
			return fmt.Errorf("merge %s into %s: %w", staging, target.Sanitize(), err)
		}
		affected = tag.RowsAffected()

		h.logger.Debug("bulk update",
			"table", target.Sanitize(),
			"staging", staging,
			"copied", copied,
			"updated", affected,
			"columns", len(cols),
			"duration", time.Since(start),
		)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// inScope runs fn in a transaction owned by the helper: a savepoint of the
// caller's tx, or a new transaction on conn. The owned scope is committed
// when fn succeeds and rolled back on error or panic. The caller's tx is
// never committed or rolled back here.
func (h *Helper[T]) inScope(ctx context.Context, op string, conn Conn, tx pgx.Tx, fn func(pgx.Tx) error) error {
	var (
		scope pgx.Tx
		err   error
	)
	if tx != nil {
		scope, err = tx.Begin(ctx)
	} else {
		scope, err = conn.Begin(ctx)
	}
	if err != nil {
		return fmt.Errorf("bulk %s: begin: %w", op, err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		if rbErr := scope.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			h.logger.Warn("bulk rollback failed",
				"op", op,
				"table", h.mapping.Table(),
				"error", rbErr,
			)
		}
	}()

	if err := fn(scope); err != nil {
		return err
	}

	if err := scope.Commit(ctx); err != nil {
		return fmt.Errorf("bulk %s: commit: %w", op, err)
	}
	done = true
	return nil
}
