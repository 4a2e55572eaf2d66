package services

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
)

// ValidateRecord checks a raw row against the expected shape and returns the
// typed record. It performs no I/O. Errors wrap ErrInvalidRecord and name the
// offending field.
func ValidateRecord(row models.RawRow) (models.RawRecord, error) {
	rawIndex := strings.TrimSpace(row.Index)
	index, err := strconv.ParseInt(rawIndex, 10, 64)
	if err != nil {
		return models.RawRecord{}, fmt.Errorf("%w: index %q is not an integer", ErrInvalidRecord, rawIndex)
	}
	if index < 0 {
		return models.RawRecord{}, fmt.Errorf("%w: index %d is negative", ErrInvalidRecord, index)
	}

	id := strings.TrimSpace(row.ID)
	if id == "" {
		return models.RawRecord{}, fmt.Errorf("%w: id is empty", ErrInvalidRecord)
	}
	// Stores reject such keys for the whole request, not just the one record.
	if !utf8.ValidString(id) {
		return models.RawRecord{}, fmt.Errorf("%w: id %q is not valid UTF-8", ErrInvalidRecord, id)
	}
	if strings.ContainsFunc(id, unicode.IsControl) {
		return models.RawRecord{}, fmt.Errorf("%w: id %q contains control characters", ErrInvalidRecord, id)
	}

	rawURL := strings.TrimSpace(row.URL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.RawRecord{}, fmt.Errorf("%w: url %q: %v", ErrInvalidRecord, rawURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return models.RawRecord{}, fmt.Errorf("%w: url %q is not absolute", ErrInvalidRecord, rawURL)
	}

	return models.RawRecord{
		SequenceIndex: index,
		Identifier:    id,
		SourceURL:     rawURL,
	}, nil
}

// IsValid reports whether the row would be admitted into a batch.
func IsValid(row models.RawRow) bool {
	_, err := ValidateRecord(row)
	return err == nil
}
