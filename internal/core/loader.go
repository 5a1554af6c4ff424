package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/pgbulk/internal/bulk"
)

// BuildFunc builds one entity from a validated CSV row.
type BuildFunc[T any] func(row []string, idx HeaderIndex, loadID uuid.UUID) (T, error)

// CSVLoader loads CSV rows into entities of type T through a bulk helper.
// The mapping of T is resolved once per metadata provider.
type CSVLoader[T any] struct {
	specs []FieldSpec
	build BuildFunc[T]

	mu      sync.Mutex
	helpers map[bulk.MetadataProvider]*bulk.Helper[T]
}

// NewCSVLoader returns a loader validating rows against specs before
// handing them to build.
func NewCSVLoader[T any](specs []FieldSpec, build BuildFunc[T]) *CSVLoader[T] {
	return &CSVLoader[T]{specs: specs, build: build}
}

// Session starts a load with cfg.Options applied to the helper of
// cfg.Provider.
func (l *CSVLoader[T]) Session(cfg SessionConfig) (LoadSession, error) {
	helper, err := l.helper(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return &csvSession[T]{
		helper: helper.With(cfg.Options...),
		specs:  l.specs,
		build:  l.build,
		loadID: cfg.LoadID,
	}, nil
}

// helper returns the cached helper of provider, resolving it on first
// use. Providers of non-comparable types are resolved every time.
func (l *CSVLoader[T]) helper(provider bulk.MetadataProvider) (*bulk.Helper[T], error) {
	if provider == nil || !reflect.TypeOf(provider).Comparable() {
		return bulk.New[T](provider)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.helpers[provider]; ok {
		return h, nil
	}
	h, err := bulk.New[T](provider)
	if err != nil {
		return nil, err
	}
	if l.helpers == nil {
		l.helpers = make(map[bulk.MetadataProvider]*bulk.Helper[T])
	}
	l.helpers[provider] = h
	return h, nil
}

type csvSession[T any] struct {
	helper *bulk.Helper[T]
	specs  []FieldSpec
	build  BuildFunc[T]
	loadID uuid.UUID

	validator *RowValidator
	rows      []T
}

func (s *csvSession[T]) Add(row []string, idx HeaderIndex) error {
	if s.validator == nil {
		s.validator = NewRowValidator(s.specs, idx)
	}
	if err := s.validator.ValidateRow(row).Err(); err != nil {
		return err
	}

	entity, err := s.build(row, idx, s.loadID)
	if err != nil {
		return err
	}
	s.rows = append(s.rows, entity)
	return nil
}

func (s *csvSession[T]) Pending() int {
	return len(s.rows)
}

// Discard drops the buffered row at position i.
func (s *csvSession[T]) Discard(i int) {
	if i < 0 || i >= len(s.rows) {
		return
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
}

func (s *csvSession[T]) Flush(ctx context.Context, conn bulk.Conn, tx pgx.Tx, mode LoadMode, fields []string) (int64, error) {
	if len(s.rows) == 0 {
		return 0, nil
	}

	var (
		n   int64
		err error
	)
	switch mode {
	case ModeInsert:
		n, err = s.helper.Insert(ctx, conn, s.rows, tx)
	case ModeUpdate:
		n, err = s.helper.Update(ctx, conn, s.rows, tx, fields...)
	default:
		return 0, fmt.Errorf("invalid mode %q", mode)
	}
	if err != nil {
		return 0, err
	}

	clear(s.rows)
	s.rows = s.rows[:0]
	return n, nil
}

// Cell returns the cleaned value of the named column, or "" if the row has
// no such column.
func Cell(row []string, idx HeaderIndex, name string) string {
	pos, ok := idx[strings.ToLower(name)]
	if !ok || pos >= len(row) {
		return ""
	}
	return CleanCell(row[pos])
}
