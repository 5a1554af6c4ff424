package bulk

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is the part of a connection or transaction the transfer engine
// uses. *pgx.Conn, *pgxpool.Pool, *pgxpool.Conn and pgx.Tx all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Conn is a Querier that can open a transaction.
type Conn interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// copyRows streams rows into table with a single binary COPY. The column
// order of cols is the wire order. A value fault stops the stream, pgx
// aborts the COPY and the fault is returned as is.
func copyRows[T any](ctx context.Context, q Querier, rows []T, cols []ColumnMapping, table pgx.Identifier) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	src := &rowSource[T]{
		ctx:     ctx,
		rows:    rows,
		cols:    cols,
		typeMap: pgtype.NewMap(),
		row:     -1,
	}

	n, err := q.CopyFrom(ctx, table, columnNames(cols), src)
	if src.fault != nil {
		return 0, src.fault
	}
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table.Sanitize(), err)
	}
	if n != int64(len(rows)) {
		return n, &TransferFault{Row: int(n), Err: fmt.Errorf("%w: copied %d of %d", ErrRowCount, n, len(rows))}
	}
	return n, nil
}

// rowSource adapts a slice of entities to pgx.CopyFromSource.
type rowSource[T any] struct {
	ctx     context.Context
	rows    []T
	cols    []ColumnMapping
	typeMap *pgtype.Map

	row   int
	fault *TransferFault
	err   error
	buf   []byte
}

func (s *rowSource[T]) Next() bool {
	if s.fault != nil || s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	s.row++
	return s.row < len(s.rows)
}

func (s *rowSource[T]) Values() ([]any, error) {
	values, fault := s.rowValues(s.row)
	if fault != nil {
		s.fault = fault
		return nil, fault
	}
	return values, nil
}

func (s *rowSource[T]) Err() error {
	if s.fault != nil {
		return s.fault
	}
	return s.err
}

func (s *rowSource[T]) rowValues(i int) ([]any, *TransferFault) {
	rv := reflect.ValueOf(&s.rows[i]).Elem()
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, &TransferFault{Row: i, Err: ErrNilRow}
		}
		rv = rv.Elem()
	}

	values := make([]any, len(s.cols))
	for j, col := range s.cols {
		fv, err := col.value(rv)
		if err != nil {
			// A nil embedded pointer on the path reads as NULL.
			values[j] = nil
			continue
		}

		v, err := wireValue(col, fv)
		if err == nil && v != nil && col.oid != 0 {
			// Encode here so range and format failures name the row.
			if s.buf, err = s.typeMap.Encode(col.oid, pgtype.BinaryFormatCode, v, s.buf[:0]); err != nil {
				err = fmt.Errorf("%w: %w", ErrTypeMismatch, err)
			}
		}
		if err != nil {
			return nil, &TransferFault{
				Row:      i,
				Field:    col.Field,
				Column:   col.Column,
				WireType: col.WireType,
				Err:      err,
			}
		}
		values[j] = v
	}
	return values, nil
}

// wireValue converts one field value into what the encoder receives:
// nil for NULL, the ordinal or name for enums, UTC wall clock for times
// carrying another offset, the value itself otherwise.
func wireValue(col ColumnMapping, fv reflect.Value) (any, error) {
	for fv.Kind() == reflect.Pointer || fv.Kind() == reflect.Interface {
		if fv.IsNil() {
			return nil, nil
		}
		fv = fv.Elem()
	}
	switch fv.Kind() {
	case reflect.Slice, reflect.Map:
		if fv.IsNil() {
			return nil, nil
		}
	}

	switch col.Enum {
	case EnumInteger:
		return enumOrdinal(fv)
	case EnumText:
		return enumName(fv), nil
	}

	v := fv.Interface()
	if t, ok := v.(time.Time); ok {
		return utcWallClock(t), nil
	}
	return v, nil
}

func enumOrdinal(fv reflect.Value) (any, error) {
	switch fv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := fv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%w: ordinal %d overflows int8", ErrTypeMismatch, u)
		}
		return int64(u), nil
	}
	return nil, fmt.Errorf("%w: %s has no ordinal value", ErrEnumKind, fv.Type())
}

func enumName(fv reflect.Value) string {
	if fv.CanInterface() {
		if s, ok := fv.Interface().(fmt.Stringer); ok {
			return s.String()
		}
	}
	return fv.String()
}

// utcWallClock keeps the wall clock reading of t and drops its offset.
// 10:00+02:00 becomes 10:00Z.
func utcWallClock(t time.Time) time.Time {
	if t.Location() == time.UTC {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
