package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/pgbulk/internal/bulk"
	"github.com/JonMunkholm/pgbulk/internal/config"
)

// widget is the entity behind the test table "widgets".
type widget struct {
	Code   string `bulk:"code,pk"`
	Name   pgtype.Text
	Price  pgtype.Numeric
	LoadID uuid.UUID
}

func (widget) TableName() string { return "widgets" }

var widgetFields = []FieldSpec{
	{Name: "Code", Field: "Code", Type: FieldText, Required: true},
	{Name: "Name", Field: "Name", Type: FieldText, AllowEmpty: true},
	{Name: "Price", Field: "Price", Type: FieldNumeric, AllowEmpty: true},
}

func buildWidget(row []string, idx HeaderIndex, loadID uuid.UUID) (widget, error) {
	return widget{
		Code:   Cell(row, idx, "Code"),
		Name:   ToPgText(Cell(row, idx, "Name")),
		Price:  ToPgNumeric(Cell(row, idx, "Price")),
		LoadID: loadID,
	}, nil
}

// registerWidgets swaps the registry for one holding the widgets table
// served by loader, or by a CSVLoader when loader is nil.
func registerWidgets(t interface{ Cleanup(func()) }, loader Loader) {
	Clear()
	t.Cleanup(Clear)
	if loader == nil {
		loader = NewCSVLoader(widgetFields, buildWidget)
	}
	Register(TableDefinition{
		Info:       TableInfo{Key: "widgets", Group: "Test", Label: "Widgets", Keys: []string{"Code"}},
		FieldSpecs: widgetFields,
		Loader:     loader,
	})
}

func testConfig(batchSize int) *config.Config {
	return &config.Config{
		Bulk:   config.BulkConfig{AutoTransactions: true, StagingPrefix: "tmp"},
		Upload: config.UploadConfig{MaxFileSize: 1 << 20, MaxConcurrent: 2, MaxWaitTime: 50 * time.Millisecond, BatchSize: batchSize},
	}
}

func newTestService(db *fakeDB, batchSize int) *Service {
	return NewService(&fakeConn{db: db}, bulk.StructTagProvider{}, testConfig(batchSize))
}

// fakeDB records what reaches the database: "begin", "savepoint",
// "commit", "release", "rollback", "rollback to savepoint", "exec <sql>"
// and "copy <table>".
type fakeDB struct {
	mu     sync.Mutex
	calls  []string
	copied [][]any
	lastN  int

	execErr error
}

func (db *fakeDB) record(format string, args ...any) {
	db.mu.Lock()
	db.calls = append(db.calls, fmt.Sprintf(format, args...))
	db.mu.Unlock()
}

func (db *fakeDB) Calls() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]string(nil), db.calls...)
}

// Ops returns the calls with SQL reduced to its first word.
func (db *fakeDB) Ops() []string {
	var ops []string
	for _, c := range db.Calls() {
		if rest, ok := strings.CutPrefix(c, "exec "); ok {
			ops = append(ops, "exec "+strings.Fields(rest)[0])
			continue
		}
		if strings.HasPrefix(c, "copy ") {
			ops = append(ops, "copy")
			continue
		}
		ops = append(ops, c)
	}
	return ops
}

func (db *fakeDB) exec(sql string) (pgconn.CommandTag, error) {
	db.record("exec %s", sql)
	if db.execErr != nil && strings.HasPrefix(sql, "UPDATE") {
		return pgconn.CommandTag{}, db.execErr
	}
	if strings.HasPrefix(sql, "UPDATE") {
		db.mu.Lock()
		n := db.lastN
		db.mu.Unlock()
		return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", n)), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (db *fakeDB) copyFrom(table pgx.Identifier, src pgx.CopyFromSource) (int64, error) {
	db.record("copy %s", table.Sanitize())
	var n int
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		db.mu.Lock()
		db.copied = append(db.copied, values)
		db.mu.Unlock()
		n++
	}
	if err := src.Err(); err != nil {
		return 0, err
	}
	db.mu.Lock()
	db.lastN = n
	db.mu.Unlock()
	return int64(n), nil
}

type fakeConn struct {
	db *fakeDB
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	return c.db.exec(sql)
}

func (c *fakeConn) CopyFrom(_ context.Context, table pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	return c.db.copyFrom(table, src)
}

func (c *fakeConn) Begin(context.Context) (pgx.Tx, error) {
	c.db.record("begin")
	return &fakeTx{db: c.db, depth: 1}, nil
}

// fakeTx covers the pgx.Tx methods used by the service and the bulk
// helper; the embedded interface panics on anything else.
type fakeTx struct {
	pgx.Tx
	db     *fakeDB
	depth  int
	closed bool
}

func (tx *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	tx.db.record("savepoint")
	return &fakeTx{db: tx.db, depth: tx.depth + 1}, nil
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	if tx.depth == 1 {
		tx.db.record("commit")
	} else {
		tx.db.record("release")
	}
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if tx.closed {
		return pgx.ErrTxClosed
	}
	tx.closed = true
	if tx.depth == 1 {
		tx.db.record("rollback")
	} else {
		tx.db.record("rollback to savepoint")
	}
	return nil
}

func (tx *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	return tx.db.exec(sql)
}

func (tx *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	return tx.db.copyFrom(table, src)
}

// scriptedLoader hands out a session whose Flush results are scripted.
type scriptedLoader struct {
	session *scriptedSession
}

func (l *scriptedLoader) Session(SessionConfig) (LoadSession, error) {
	return l.session, nil
}

type scriptedSession struct {
	rows      [][]string
	flushErrs []error // consumed one per Flush; nil entries succeed
	discarded []string
	flushed   [][]string
}

func (s *scriptedSession) Add(row []string, _ HeaderIndex) error {
	s.rows = append(s.rows, row)
	return nil
}

func (s *scriptedSession) Pending() int { return len(s.rows) }

func (s *scriptedSession) Discard(i int) {
	s.discarded = append(s.discarded, s.rows[i][0])
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
}

func (s *scriptedSession) Flush(context.Context, bulk.Conn, pgx.Tx, LoadMode, []string) (int64, error) {
	if len(s.flushErrs) > 0 {
		err := s.flushErrs[0]
		s.flushErrs = s.flushErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	n := int64(len(s.rows))
	s.flushed = append(s.flushed, nil)
	for _, r := range s.rows {
		s.flushed[len(s.flushed)-1] = append(s.flushed[len(s.flushed)-1], r[0])
	}
	s.rows = nil
	return n, nil
}
