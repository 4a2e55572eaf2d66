package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
)

// State is a phase of an ingestion pass.
type State int

const (
	StateReady State = iota
	StateStreaming
	StateAccumulating
	StateFlushing
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateStreaming:
		return "STREAMING"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateFlushing:
		return "FLUSHING"
	case StateDraining:
		return "DRAINING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RecordReader yields raw rows one at a time and returns io.EOF once the
// source is exhausted. Any other error means the source is unreadable.
type RecordReader interface {
	Read() (models.RawRow, error)
}

// RecordReadCloser is a RecordReader owning an underlying stream.
type RecordReadCloser interface {
	RecordReader
	io.Closer
}

// SourceOpener opens a record source by location.
type SourceOpener func(ctx context.Context, location string) (RecordReadCloser, error)

// ChunkProcessor turns a batch of records into one ProcessedImage each.
type ChunkProcessor interface {
	ProcessChunk(ctx context.Context, batch []models.RawRecord) []models.ProcessedImage
}

// ImageWriter persists processed images.
type ImageWriter interface {
	Write(ctx context.Context, images []models.ProcessedImage) (models.WriteSummary, error)
}

// IngesterConfig configures an Ingester.
type IngesterConfig struct {
	BatchSize int
	// Open resolves locations for RunLocation.
	Open   SourceOpener
	Logger *slog.Logger
}

// Ingester drives one pass over a record source: validate, batch, process,
// write, and keep the running totals. An Ingester runs one pass at a time.
type Ingester struct {
	processor ChunkProcessor
	writer    ImageWriter
	batchSize int
	open      SourceOpener
	logger    *slog.Logger

	state State
}

// NewIngester returns an Ingester in the READY state.
func NewIngester(processor ChunkProcessor, writer ImageWriter, cfg IngesterConfig) (*Ingester, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		processor: processor,
		writer:    writer,
		batchSize: cfg.BatchSize,
		open:      cfg.Open,
		logger:    logger,
		state:     StateReady,
	}, nil
}

// State reports the phase of the current or last pass.
func (in *Ingester) State() State { return in.state }

// RunLocation opens location and runs a pass over it. Failing to open the
// source is fatal and wraps ErrFatalSource.
func (in *Ingester) RunLocation(ctx context.Context, location string) (models.RunSummary, error) {
	in.setState(StateReady)
	if in.open == nil {
		return models.RunSummary{}, fmt.Errorf("%w: no source opener configured", ErrFatalSource)
	}
	src, err := in.open(ctx, location)
	if err != nil {
		return models.RunSummary{}, fmt.Errorf("%w: opening %s: %w", ErrFatalSource, location, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			in.logger.Warn("Failed to close source.", "source", location, "error", cerr)
		}
	}()

	in.logger.Info("Starting ingestion.", "source", location, "batchSize", in.batchSize)
	return in.Run(ctx, src)
}

// Run consumes r to exhaustion. Invalid rows are logged and skipped, batch
// write failures are logged and the pass goes on. Only an unreadable source
// (wrapping ErrFatalSource) or a cancelled ctx ends the pass early; the
// totals gathered so far are returned either way.
func (in *Ingester) Run(ctx context.Context, r RecordReader) (models.RunSummary, error) {
	var summary models.RunSummary
	batch := make([]models.RawRecord, 0, in.batchSize)

	in.setState(StateStreaming)
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			in.logger.Error("Source read failed, aborting run.", "error", err, "totalProcessed", summary.Processed)
			return summary, fmt.Errorf("%w: %w", ErrFatalSource, err)
		}

		rec, err := ValidateRecord(row)
		if err != nil {
			summary.Skipped++
			in.logger.Warn("Skipping invalid record.", "line", row.Line, "id", row.ID, "error", err)
			continue
		}

		in.setState(StateAccumulating)
		batch = append(batch, rec)
		if len(batch) < in.batchSize {
			continue
		}

		in.setState(StateFlushing)
		in.flush(ctx, batch, &summary)
		batch = make([]models.RawRecord, 0, in.batchSize)
		in.setState(StateAccumulating)
	}

	if len(batch) > 0 {
		in.setState(StateDraining)
		in.flush(ctx, batch, &summary)
	}

	in.setState(StateDone)
	in.logger.Info(
		"Ingestion complete.",
		"totalProcessed", summary.Processed,
		"totalErrors", summary.Errors,
		"skipped", summary.Skipped,
		"batches", summary.Batches,
		"failedBatches", summary.FailedBatches,
	)
	return summary, nil
}

// flush processes and writes one batch and folds the outcome into summary.
// A failed write contributes nothing but the failed-batch count.
func (in *Ingester) flush(ctx context.Context, batch []models.RawRecord, summary *models.RunSummary) {
	first, last := batch[0], batch[len(batch)-1]
	result := models.BatchResult{
		Attempted:  len(batch),
		FirstID:    first.Identifier,
		LastID:     last.Identifier,
		FirstIndex: first.SequenceIndex,
		LastIndex:  last.SequenceIndex,
	}

	images := in.processor.ProcessChunk(ctx, batch)
	for _, img := range images {
		if img.Status == models.StatusError {
			result.Errors++
		}
	}

	summary.Batches++
	written, err := in.writer.Write(ctx, images)
	if err != nil {
		summary.FailedBatches++
		in.logger.Error(
			"Batch processing failed.",
			"batchSize", result.Attempted,
			"firstId", result.FirstID,
			"lastId", result.LastID,
			"firstIndex", result.FirstIndex,
			"lastIndex", result.LastIndex,
			"error", err,
		)
		return
	}

	result.Inserted = written.Inserted
	result.Updated = written.Updated
	result.Failed = written.Failed
	result.Written = written.Written()

	summary.Processed += result.Written
	summary.Errors += result.Errors

	in.logger.Info(
		"Batch processed.",
		"batchSize", result.Attempted,
		"successful", result.Written,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"writeFailures", result.Failed,
		"thumbnailErrors", result.Errors,
		"lastProcessedIndex", result.LastIndex,
		"lastProcessedId", result.LastID,
		"totalProcessed", summary.Processed,
		"totalErrors", summary.Errors,
	)
}

func (in *Ingester) setState(s State) {
	if in.state == s {
		return
	}
	in.logger.Debug("Ingester state changed.", "from", in.state.String(), "to", s.String())
	in.state = s
}
