package bulk

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Result is delivered by the async variants.
type Result struct {
	Rows int64
	Err  error
}

// InsertAsync runs Insert in a goroutine. The returned channel receives
// exactly one Result and is then closed.
func (h *Helper[T]) InsertAsync(ctx context.Context, conn Conn, rows []T, tx pgx.Tx) <-chan Result {
	return runAsync(func() (int64, error) {
		return h.Insert(ctx, conn, rows, tx)
	})
}

// UpdateAsync runs Update in a goroutine. The returned channel receives
// exactly one Result and is then closed.
func (h *Helper[T]) UpdateAsync(ctx context.Context, conn Conn, rows []T, tx pgx.Tx, fields ...string) <-chan Result {
	return runAsync(func() (int64, error) {
		return h.Update(ctx, conn, rows, tx, fields...)
	})
}

func runAsync(fn func() (int64, error)) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		n, err := fn()
		ch <- Result{Rows: n, Err: err}
	}()
	return ch
}
