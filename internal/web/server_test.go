package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/pgbulk/internal/bulk"
	"github.com/JonMunkholm/pgbulk/internal/config"
	"github.com/JonMunkholm/pgbulk/internal/core"
)

type part struct {
	SKU    string `bulk:"sku,pk"`
	Name   pgtype.Text
	Stock  pgtype.Int8
	LoadID uuid.UUID
}

func (part) TableName() string { return "parts" }

var partFields = []core.FieldSpec{
	{Name: "SKU", Field: "SKU", Type: core.FieldText, Required: true},
	{Name: "Name", Field: "Name", Type: core.FieldText, AllowEmpty: true},
	{Name: "Stock", Field: "Stock", Type: core.FieldInt, AllowEmpty: true},
}

func buildPart(row []string, idx core.HeaderIndex, loadID uuid.UUID) (part, error) {
	return part{
		SKU:    core.Cell(row, idx, "SKU"),
		Name:   core.ToPgText(core.Cell(row, idx, "Name")),
		Stock:  core.ToPgInt8(core.Cell(row, idx, "Stock")),
		LoadID: loadID,
	}, nil
}

// stubDB answers every statement and counts copied rows.
type stubDB struct {
	mu      sync.Mutex
	sql     []string
	copied  int
	pingErr error
	copyErr error
}

func (db *stubDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.sql = append(db.sql, sql)
	if sql == "SELECT 1" && db.pingErr != nil {
		return pgconn.CommandTag{}, db.pingErr
	}
	if strings.HasPrefix(sql, "UPDATE") {
		return pgconn.NewCommandTag("UPDATE " + strconv.Itoa(db.copied)), nil
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (db *stubDB) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	if db.copyErr != nil {
		return 0, db.copyErr
	}
	var n int
	for src.Next() {
		if _, err := src.Values(); err != nil {
			return 0, err
		}
		n++
	}
	if err := src.Err(); err != nil {
		return 0, err
	}
	db.mu.Lock()
	db.copied = n
	db.mu.Unlock()
	return int64(n), nil
}

func (db *stubDB) Begin(context.Context) (pgx.Tx, error) {
	return &stubTx{db: db}, nil
}

type stubTx struct {
	pgx.Tx
	db *stubDB
}

func (tx *stubTx) Begin(context.Context) (pgx.Tx, error) { return &stubTx{db: tx.db}, nil }
func (tx *stubTx) Commit(context.Context) error          { return nil }
func (tx *stubTx) Rollback(context.Context) error        { return nil }

func (tx *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.db.Exec(ctx, sql, args...)
}

func (tx *stubTx) CopyFrom(ctx context.Context, t pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	return tx.db.CopyFrom(ctx, t, cols, src)
}

func newTestServer(t *testing.T, db *stubDB, mutate func(*config.Config)) *Server {
	t.Helper()

	core.Clear()
	t.Cleanup(core.Clear)
	core.Register(core.TableDefinition{
		Info:       core.TableInfo{Key: "parts", Group: "Test", Label: "Parts", Keys: []string{"SKU"}},
		FieldSpecs: partFields,
		Loader:     core.NewCSVLoader(partFields, buildPart),
	})

	cfg := &config.Config{
		Bulk:    config.BulkConfig{AutoTransactions: true, StagingPrefix: "tmp"},
		Upload:  config.UploadConfig{MaxFileSize: 1 << 16, MaxConcurrent: 1, MaxWaitTime: 20 * time.Millisecond, BatchSize: 100, Timeout: time.Minute},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
	}
	if mutate != nil {
		mutate(cfg)
	}
	return NewServer(core.NewService(db, bulk.StructTagProvider{}, cfg), cfg)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	db := &stubDB{}
	s := newTestServer(t, db, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	db.pingErr = errors.New("dial tcp: connection refused")
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DB004", decodeError(t, rec).Code)
}

func TestUnmappedErrorIsGeneric(t *testing.T) {
	db := &stubDB{pingErr: errors.New("flux capacitor offline")}
	s := newTestServer(t, db, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, "ERR000", resp.Code)
	assert.Equal(t, "An unexpected error occurred", resp.Error)
	assert.NotContains(t, rec.Body.String(), "flux capacitor")
}

func TestListTables(t *testing.T) {
	s := newTestServer(t, &stubDB{}, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TablesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Tables, 1)
	assert.Equal(t, "parts", resp.Tables[0].Key)
	assert.Equal(t, []string{"SKU", "Name", "Stock"}, resp.Tables[0].Columns)
	assert.Equal(t, []string{"Test"}, resp.Groups)
	assert.Equal(t, core.LimiterStatus{Active: 0, Available: 1, MaxConcurrent: 1}, resp.Loads)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestInsert_RawBody(t *testing.T) {
	db := &stubDB{}
	s := newTestServer(t, db, nil)

	body := "SKU,Name,Stock\nP-1,Bolt,10\nP-2,Nut,lots\nP-3,Washer,\n"
	req := httptest.NewRequest(http.MethodPost, "/api/tables/parts/insert?name=parts.csv", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res core.LoadResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "parts", res.TableKey)
	assert.Equal(t, "parts.csv", res.FileName)
	assert.Equal(t, core.ModeInsert, res.Mode)
	assert.Equal(t, 3, res.TotalRows)
	assert.EqualValues(t, 2, res.Written)
	require.Len(t, res.FailedRows, 1)
	assert.Equal(t, 3, res.FailedRows[0].LineNumber)
	assert.Contains(t, res.FailedRows[0].Reason, "Stock")
}

func TestUpdate_MultipartWithFields(t *testing.T) {
	db := &stubDB{}
	s := newTestServer(t, db, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("file", "stock.csv")
	require.NoError(t, err)
	fw.Write([]byte("SKU,Stock\nP-1,4\nP-2,9\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/tables/parts/update?fields=Stock", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res core.LoadResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "stock.csv", res.FileName)
	assert.Equal(t, core.ModeUpdate, res.Mode)
	assert.EqualValues(t, 2, res.Written)

	var update string
	for _, sql := range db.sql {
		if strings.HasPrefix(sql, "UPDATE") {
			update = sql
		}
	}
	assert.Contains(t, update, `"stock"`)
	assert.NotContains(t, update, `"name"`)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		wantStatus  int
		wantCode    string
	}{
		{"unknown table", "/api/tables/gizmos/insert", "text/csv", "SKU\nA\n", http.StatusNotFound, "TBL002"},
		{"no body", "/api/tables/parts/insert", "text/csv", "", http.StatusBadRequest, "FILE004"},
		{"header missing", "/api/tables/parts/insert", "text/csv", "Name\nBolt\n", http.StatusBadRequest, "VAL005"},
		{"header only", "/api/tables/parts/insert", "text/csv", "SKU,Name\n", http.StatusBadRequest, "FILE005"},
		{"unknown update field", "/api/tables/parts/update?fields=Colour", "text/csv", "SKU,Name\nA,B\n", http.StatusBadRequest, "VAL007"},
		{"too large", "/api/tables/parts/insert", "text/csv", "SKU\n" + strings.Repeat("A\n", 1<<16), http.StatusRequestEntityTooLarge, "FILE001"},
		{"multipart without file", "/api/tables/parts/insert", "multipart/form-data; boundary=x", "--x--\r\n", http.StatusBadRequest, "FILE004"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &stubDB{}, nil)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := serve(s, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestInsert_DuplicateKeyIsConflict(t *testing.T) {
	db := &stubDB{copyErr: &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}}
	s := newTestServer(t, db, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tables/parts/insert", strings.NewReader("SKU\nP-1\n"))
	rec := serve(s, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DB001", decodeError(t, rec).Code)
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, &stubDB{}, func(cfg *config.Config) {
		cfg.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}
	})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	req.Header.Set("X-API-Key", "k1")
	assert.Equal(t, http.StatusOK, serve(s, req).Code)

	// Health checks stay open.
	assert.Equal(t, http.StatusOK, serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestStatusForCode(t *testing.T) {
	tests := map[string]int{
		"TBL002":  http.StatusNotFound,
		"FILE001": http.StatusRequestEntityTooLarge,
		"FILE002": http.StatusBadRequest,
		"VAL008":  http.StatusBadRequest,
		"DB001":   http.StatusConflict,
		"LOAD002": http.StatusServiceUnavailable,
		"LOAD005": http.StatusGatewayTimeout,
		"XFER001": http.StatusUnprocessableEntity,
		"XFER003": http.StatusInternalServerError,
		"MAP001":  http.StatusInternalServerError,
		"ERR000":  http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusForCode(code), code)
	}
}

func TestSplitFields(t *testing.T) {
	assert.Equal(t, []string{"Name", "Stock", "SKU"}, splitFields([]string{"Name, Stock", "", "SKU,"}))
	assert.Nil(t, splitFields(nil))
}
