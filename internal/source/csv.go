// Package source streams raw records out of CSV files held locally, in Cloud
// Storage or in an S3-compatible bucket.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
)

// Column names expected in the header row. Order is free and extra columns
// are ignored.
const (
	ColumnIndex = "index"
	ColumnID    = "id"
	ColumnURL   = "url"
)

// ErrHeader means the source has no usable header row.
var ErrHeader = errors.New("invalid CSV header")

// CSVReader yields one RawRow per data line of a CSV stream. Rows are read
// lazily, so memory use does not depend on the size of the source.
type CSVReader struct {
	r      *csv.Reader
	closer io.Closer

	index, id, url int
}

// NewCSVReader reads the header of r and maps the index, id and url columns.
// If r is an io.Closer, Close closes it.
func NewCSVReader(r io.Reader) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: source is empty", ErrHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	var missing []string
	for _, name := range []string{ColumnIndex, ColumnID, ColumnURL} {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing column(s) %s", ErrHeader, strings.Join(missing, ", "))
	}

	reader := &CSVReader{
		r:     cr,
		index: cols[ColumnIndex],
		id:    cols[ColumnID],
		url:   cols[ColumnURL],
	}
	if c, ok := r.(io.Closer); ok {
		reader.closer = c
	}
	return reader, nil
}

// Read returns the next row, or io.EOF at the end of the stream. Short rows
// yield empty fields and are left to validation; a malformed stream is an
// error.
func (c *CSVReader) Read() (models.RawRow, error) {
	rec, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return models.RawRow{}, io.EOF
		}
		return models.RawRow{}, fmt.Errorf("failed to read CSV record: %w", err)
	}
	line, _ := c.r.FieldPos(0)
	return models.RawRow{
		Line:  line,
		Index: field(rec, c.index),
		ID:    field(rec, c.id),
		URL:   field(rec, c.url),
	}, nil
}

// Close releases the underlying stream, if any.
func (c *CSVReader) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
