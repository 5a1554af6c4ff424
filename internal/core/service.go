package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/pgbulk/internal/bulk"
	"github.com/JonMunkholm/pgbulk/internal/config"
	"github.com/JonMunkholm/pgbulk/internal/logging"
)

// MaxHeaderSearchRows bounds how many leading records may precede the header.
const MaxHeaderSearchRows = 10

// ContextCheckInterval is how many rows are read between cancellation checks.
const ContextCheckInterval = 1000

// Service runs CSV loads against the registered tables.
type Service struct {
	conn     bulk.Conn
	provider bulk.MetadataProvider
	limiter  *LoadLimiter

	bulkOpts    []bulk.Option
	batchSize   int
	timeout     time.Duration
	maxFileSize int64
}

// NewService creates a new Service instance. conn is usually a
// *pgxpool.Pool.
func NewService(conn bulk.Conn, provider bulk.MetadataProvider, cfg *config.Config) *Service {
	return &Service{
		conn:     conn,
		provider: provider,
		limiter:  NewLoadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		bulkOpts: []bulk.Option{
			bulk.WithAutoTransactions(cfg.Bulk.AutoTransactions),
			bulk.WithStagingPrefix(cfg.Bulk.StagingPrefix),
		},
		batchSize:   cfg.Upload.BatchSize,
		timeout:     cfg.Upload.Timeout,
		maxFileSize: cfg.Upload.MaxFileSize,
	}
}

// Limiter exposes the load limiter for status reporting and shutdown.
func (s *Service) Limiter() *LoadLimiter {
	return s.limiter
}

// MaxFileSize returns the largest accepted CSV body in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.maxFileSize
}

// Ping checks that the database answers.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, "SELECT 1")
	return err
}

// ListTables returns information about all registered tables.
func (s *Service) ListTables() []TableInfo {
	defs := All()
	infos := make([]TableInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// Load reads a CSV file from body and writes it into the requested table.
//
// The whole file runs in one transaction. Rows are buffered and flushed in
// batches of the configured size; each batch runs in a savepoint, so a row
// the bulk helper rejects undoes only its batch, which is retried without
// that row. Rows failing validation never reach the database. Any other
// error rolls the whole load back.
func (s *Service) Load(ctx context.Context, req LoadRequest, body io.Reader) (*LoadResult, error) {
	def, ok := Get(req.TableKey)
	if !ok {
		return nil, fmt.Errorf("unknown table: %s", req.TableKey)
	}
	if !req.Mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", req.Mode)
	}
	if body == nil {
		return nil, errors.New("no file provided")
	}
	if s.maxFileSize > 0 && req.Size > s.maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", req.Size, s.maxFileSize)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	loadID := uuid.New()
	logger := logging.WithFields(ctx,
		"load_id", loadID,
		"table", def.Info.Key,
		"mode", req.Mode,
	)
	start := time.Now()

	stream := NewCSVStream(body)
	reader := csv.NewReader(stream)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := findHeader(reader, def)
	if err != nil {
		return nil, err
	}
	idx := MakeHeaderIndex(header)

	opts := append(slices.Clone(s.bulkOpts), bulk.WithLogger(logger))
	session, err := def.Loader.Session(SessionConfig{
		LoadID:   loadID,
		Provider: s.provider,
		Options:  opts,
	})
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", def.Info.Key, err)
	}

	var fields []string
	if req.Mode == ModeUpdate {
		fields = def.UpdateFields(req.Fields)
	}

	logger.Info("load started", "file", req.FileName, "fields", fields)

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	result := &LoadResult{
		LoadID:   loadID.String(),
		TableKey: def.Info.Key,
		FileName: req.FileName,
		Mode:     req.Mode,
	}
	b := &batch{session: session, mode: req.Mode, fields: fields}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if isEmptyRow(row) {
			continue
		}

		line, _ := reader.FieldPos(0)
		result.TotalRows++

		if result.TotalRows%ContextCheckInterval == 0 && ctx.Err() != nil {
			return nil, fmt.Errorf("load cancelled: %w", ctx.Err())
		}

		if len(row) < len(header) {
			result.reject(line, fmt.Sprintf("expected %d columns, got %d", len(header), len(row)), row)
			continue
		}
		if err := session.Add(row, idx); err != nil {
			result.reject(line, err.Error(), row)
			continue
		}
		b.lines = append(b.lines, pendingRow{line: line, data: row})

		if session.Pending() >= s.batchSize {
			if err := b.flush(ctx, s.conn, tx, result); err != nil {
				return nil, err
			}
		}
	}

	if err := b.flush(ctx, s.conn, tx, result); err != nil {
		return nil, err
	}
	if result.TotalRows == 0 {
		return nil, errors.New("empty file: no data rows after header")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	result.Skipped = len(result.FailedRows)
	result.BytesRead = stream.BytesRead()
	result.Duration = time.Since(start)

	logger.Info("load completed",
		"rows", result.TotalRows,
		"written", result.Written,
		"skipped", result.Skipped,
		"batches", result.Batches,
		"duration", result.Duration,
	)
	return result, nil
}

type pendingRow struct {
	line int
	data []string
}

// batch tracks the source lines of the rows buffered in a session.
type batch struct {
	session LoadSession
	mode    LoadMode
	fields  []string
	lines   []pendingRow
}

// flush writes the buffered rows. When the helper rejects a row, the
// batch's savepoint has undone the partial copy; the row is recorded as
// failed and the rest of the batch is written again.
func (b *batch) flush(ctx context.Context, conn bulk.Conn, tx pgx.Tx, result *LoadResult) error {
	for b.session.Pending() > 0 {
		n, err := b.session.Flush(ctx, conn, tx, b.mode, b.fields)
		if err == nil {
			result.Written += n
			result.Batches++
			break
		}

		var fault *bulk.TransferFault
		if !errors.As(err, &fault) || errors.Is(err, bulk.ErrRowCount) ||
			fault.Row < 0 || fault.Row >= len(b.lines) {
			return err
		}

		p := b.lines[fault.Row]
		result.reject(p.line, fault.Error(), p.data)
		b.session.Discard(fault.Row)
		b.lines = slices.Delete(b.lines, fault.Row, fault.Row+1)
	}

	b.lines = b.lines[:0]
	return nil
}

func (r *LoadResult) reject(line int, reason string, data []string) {
	r.FailedRows = append(r.FailedRows, FailedRow{
		LineNumber: line,
		Reason:     strings.ReplaceAll(reason, "\n", "; "),
		Data:       data,
	})
}

// findHeader reads records until one holds every required column of def.
func findHeader(r *csv.Reader, def TableDefinition) ([]string, error) {
	for i := 0; i < MaxHeaderSearchRows; i++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			if i == 0 {
				return nil, errors.New("empty file")
			}
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if isHeaderRow(rec, def) {
			return slices.Clone(rec), nil
		}
	}
	return nil, fmt.Errorf("header not found (expected: %s)", strings.Join(def.Info.Columns, ", "))
}

// isHeaderRow reports whether row names every required column and at
// least one column of def.
func isHeaderRow(row []string, def TableDefinition) bool {
	idx, err := ValidateHeaders(row, def.FieldSpecs)
	if err != nil {
		return false
	}
	for _, col := range def.Info.Columns {
		if _, ok := idx[strings.ToLower(col)]; ok {
			return true
		}
	}
	return false
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
