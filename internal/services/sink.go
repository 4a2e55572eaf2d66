package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
)

// Store is the keyed persistence the sink writes through.
type Store interface {
	// Existing reports which of ids are already stored.
	Existing(ctx context.Context, ids []string) (map[string]bool, error)
	// UpsertAll writes every image keyed by identifier (replace if present,
	// insert if absent) as one unordered submission. errs[i] reports
	// images[i]; a non-nil err means the submission as a whole failed.
	UpsertAll(ctx context.Context, images []models.ProcessedImage) (errs []error, err error)
}

// Sink translates processed images into idempotent upserts and reports how
// many records were inserted or updated.
type Sink struct {
	store  Store
	logger *slog.Logger
}

// NewSink creates a Sink over store. A nil logger uses slog.Default.
func NewSink(store Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, logger: logger}
}

// Write submits the images as one batch. A failed record write does not stop
// the others and is counted in Failed. If the submission itself fails, or no
// write at all succeeds, the summary is zero and the error wraps ErrBatchWrite.
func (s *Sink) Write(ctx context.Context, images []models.ProcessedImage) (models.WriteSummary, error) {
	if len(images) == 0 {
		return models.WriteSummary{}, nil
	}

	// Repeated identifiers collapse to their last occurrence: the store sees one
	// write per key and the outcome is the same as applying them in order.
	lastPos := make(map[string]int, len(images))
	for i, img := range images {
		lastPos[img.Identifier] = i
	}
	ids := make([]string, 0, len(lastPos))
	for i, img := range images {
		if lastPos[img.Identifier] == i {
			ids = append(ids, img.Identifier)
		}
	}

	existing, err := s.store.Existing(ctx, ids)
	var lookupErrs map[string]error
	if err != nil {
		// One unacceptable key can fail the whole lookup. Isolate it so the
		// rest of the batch is still written.
		s.logger.Warn("Batch lookup failed, checking records individually.", "batchSize", len(ids), "error", err)
		existing, lookupErrs = s.lookupEach(ctx, ids)
		if len(lookupErrs) == len(ids) {
			return models.WriteSummary{}, fmt.Errorf("%w: looking up existing records: %w", ErrBatchWrite, err)
		}
	}

	submit := make([]models.ProcessedImage, 0, len(ids))
	slot := make(map[string]int, len(ids))
	for _, id := range ids {
		if lookupErrs[id] != nil {
			continue
		}
		slot[id] = len(submit)
		submit = append(submit, images[lastPos[id]])
	}

	errs, err := s.store.UpsertAll(ctx, submit)
	if err != nil {
		return models.WriteSummary{}, fmt.Errorf("%w: %w", ErrBatchWrite, err)
	}
	if len(errs) != len(submit) {
		return models.WriteSummary{}, fmt.Errorf("%w: store reported %d results for %d writes", ErrBatchWrite, len(errs), len(submit))
	}

	var summary models.WriteSummary
	seen := make(map[string]bool, len(ids))
	var firstErr error
	for _, img := range images {
		werr := lookupErrs[img.Identifier]
		if werr == nil {
			werr = errs[slot[img.Identifier]]
		}
		switch {
		case werr != nil:
			summary.Failed++
			if firstErr == nil {
				firstErr = werr
			}
			if !seen[img.Identifier] {
				s.logger.Warn("Record write failed.", "id", img.Identifier, "index", img.SequenceIndex, "error", werr)
			}
		case seen[img.Identifier] || existing[img.Identifier]:
			summary.Updated++
		default:
			summary.Inserted++
		}
		seen[img.Identifier] = true
	}

	if summary.Written() == 0 {
		return models.WriteSummary{}, fmt.Errorf("%w: all %d writes failed: %w", ErrBatchWrite, len(images), firstErr)
	}
	return summary, nil
}

// lookupEach checks ids one at a time and reports which lookups failed.
func (s *Sink) lookupEach(ctx context.Context, ids []string) (map[string]bool, map[string]error) {
	found := make(map[string]bool, len(ids))
	failed := make(map[string]error)
	for _, id := range ids {
		one, err := s.store.Existing(ctx, []string{id})
		if err != nil {
			failed[id] = fmt.Errorf("looking up %q: %w", id, err)
			continue
		}
		if one[id] {
			found[id] = true
		}
	}
	return found, failed
}
