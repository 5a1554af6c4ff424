package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/pgbulk/internal/core"
)

// TablesResponse is the body of GET /api/tables.
type TablesResponse struct {
	Tables []core.TableInfo   `json:"tables"`
	Groups []string           `json:"groups"`
	Loads  core.LimiterStatus `json:"loads"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TablesResponse{
		Tables: s.service.ListTables(),
		Groups: core.Groups(),
		Loads:  s.service.Limiter().Status(),
	})
}

// handleLoad streams a CSV body into the table named by the route.
// The body is either the raw CSV or a multipart form with a "file" field.
// Update loads accept ?fields=A,B to limit the written columns.
func (s *Server) handleLoad(mode core.LoadMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.service.MaxFileSize())

		body, fileName, size, err := csvBody(r)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		req := core.LoadRequest{
			TableKey: chi.URLParam(r, "tableKey"),
			FileName: fileName,
			Mode:     mode,
			Fields:   splitFields(r.URL.Query()["fields"]),
			Size:     size,
		}

		result, err := s.service.Load(r.Context(), req, body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				err = fmt.Errorf("file too large: %w", err)
			}
			s.respondError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// csvBody returns the CSV stream of r, its file name and its size when
// known. A nil reader means the request carried no file.
func csvBody(r *http.Request) (io.Reader, string, int64, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.ContentLength == 0 {
			return nil, "", 0, nil
		}
		return r.Body, r.URL.Query().Get("name"), max(r.ContentLength, 0), nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", 0, fmt.Errorf("parse csv: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, "", 0, nil
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, "", 0, fmt.Errorf("file too large: %w", err)
			}
			return nil, "", 0, fmt.Errorf("parse csv: %w", err)
		}
		if part.FormName() == "file" {
			return part, part.FileName(), 0, nil
		}
		part.Close()
	}
}

// splitFields flattens repeated and comma-separated field parameters.
func splitFields(values []string) []string {
	var fields []string
	for _, v := range values {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}
	return fields
}
