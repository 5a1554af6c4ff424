package bulk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type accountKind int

const (
	kindCustomer accountKind = iota
	kindPartner
	kindReseller
)

func (k accountKind) String() string {
	switch k {
	case kindCustomer:
		return "customer"
	case kindPartner:
		return "partner"
	case kindReseller:
		return "reseller"
	}
	return fmt.Sprintf("accountKind(%d)", int(k))
}

type vatStatus string

const (
	vatExempt  vatStatus = "exempt"
	vatTaxable vatStatus = "taxable"
)

type customer struct {
	ID      int64       `bulk:"id,pk,generated"`
	Code    string      `bulk:"code,type=varchar(40)"`
	Name    string      `bulk:"name"`
	Kind    accountKind `bulk:"kind,type=integer"`
	Status  vatStatus   `bulk:"status,type=text"`
	Balance *float64    `bulk:"balance,type=double precision"`
	Tags    []string    `bulk:"tags"`
	SeenAt  time.Time   `bulk:"seen_at,type=timestamp(3)"`
	Ignored string      `bulk:"-"`
}

func (customer) TableName() string { return "customers" }

// fakeDB records every call made through fakeConn and the fake
// transactions it hands out.
type fakeDB struct {
	mu    sync.Mutex
	calls []string

	copies  []fakeCopy
	execFn  func(sql string) (pgconn.CommandTag, error)
	copyErr error
	// short makes CopyFrom report fewer rows than it received.
	short int64
}

type fakeCopy struct {
	table   pgx.Identifier
	columns []string
	rows    [][]any
}

func (db *fakeDB) record(format string, args ...any) {
	db.mu.Lock()
	db.calls = append(db.calls, fmt.Sprintf(format, args...))
	db.mu.Unlock()
}

func (db *fakeDB) Calls() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]string, len(db.calls))
	copy(out, db.calls)
	return out
}

func (db *fakeDB) Reset() {
	db.mu.Lock()
	db.calls = nil
	db.copies = nil
	db.mu.Unlock()
}

// Ops returns the calls with exec SQL reduced to its first word.
func (db *fakeDB) Ops() []string {
	var ops []string
	for _, c := range db.Calls() {
		if rest, ok := strings.CutPrefix(c, "exec "); ok {
			ops = append(ops, "exec "+strings.Fields(rest)[0])
			continue
		}
		ops = append(ops, c)
	}
	return ops
}

func (db *fakeDB) Execs() []string {
	var out []string
	for _, c := range db.Calls() {
		if rest, ok := strings.CutPrefix(c, "exec "); ok {
			out = append(out, rest)
		}
	}
	return out
}

func (db *fakeDB) exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	db.record("exec %s", sql)
	if db.execFn != nil {
		return db.execFn(sql)
	}
	if strings.HasPrefix(sql, "UPDATE") {
		db.mu.Lock()
		n := 0
		if len(db.copies) > 0 {
			n = len(db.copies[len(db.copies)-1].rows)
		}
		db.mu.Unlock()
		return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", n)), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (db *fakeDB) copyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	db.record("copy %s", table.Sanitize())
	if db.copyErr != nil {
		return 0, db.copyErr
	}

	c := fakeCopy{table: table, columns: columns}
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		c.rows = append(c.rows, values)
	}
	if err := src.Err(); err != nil {
		return 0, err
	}

	db.mu.Lock()
	db.copies = append(db.copies, c)
	db.mu.Unlock()
	return int64(len(c.rows)) - db.short, nil
}

func (db *fakeDB) LastCopy() fakeCopy {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.copies) == 0 {
		return fakeCopy{}
	}
	return db.copies[len(db.copies)-1]
}

type fakeConn struct {
	db *fakeDB
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.db.exec(ctx, sql, args...)
}

func (c *fakeConn) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	return c.db.copyFrom(ctx, table, columns, src)
}

func (c *fakeConn) Begin(context.Context) (pgx.Tx, error) {
	c.db.record("begin")
	return &fakeTx{db: c.db, depth: 1}, nil
}

// fakeTx covers the pgx.Tx methods the helper uses; the embedded
// interface panics on anything else.
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

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.db.exec(ctx, sql, args...)
}

func (tx *fakeTx) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	return tx.db.copyFrom(ctx, table, columns, src)
}
