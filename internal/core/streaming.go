package core

// streaming.go prepares an uploaded body for the CSV reader without
// buffering it: a leading byte order mark is dropped, UTF-16 files with a
// BOM are transcoded, and invalid UTF-8 is replaced with U+FFFD.

import (
	"io"
	"sync/atomic"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSVStream is a decoded view of a CSV body.
type CSVStream struct {
	io.Reader
	raw *countingReader
}

// NewCSVStream wraps r for reading by encoding/csv.
func NewCSVStream(r io.Reader) *CSVStream {
	raw := &countingReader{reader: r}
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	return &CSVStream{
		Reader: transform.NewReader(raw, decoder),
		raw:    raw,
	}
}

// BytesRead returns the number of raw body bytes consumed so far.
func (s *CSVStream) BytesRead() int64 {
	return s.raw.n.Load()
}

type countingReader struct {
	reader io.Reader
	n      atomic.Int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.n.Add(int64(n))
	return n, err
}
