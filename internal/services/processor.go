package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
)

// ImageFetcher retrieves the raw bytes behind a URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageTransformer turns raw image bytes into a thumbnail.
type ImageTransformer interface {
	Transform(src []byte) ([]byte, error)
}

// ThumbnailCache stores finished thumbnails by key. Implementations must be
// safe for concurrent use; a miss is (nil, false, nil).
type ThumbnailCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, thumbnail []byte) error
}

// ProcessorConfig configures a BatchProcessor.
type ProcessorConfig struct {
	// Retries is the number of extra attempts after the first failure.
	Retries int
	Delay   time.Duration
	// MaxConcurrency caps in-flight records per batch. Zero runs one task per record.
	MaxConcurrency int
	// CacheNamespace is folded into cache keys so thumbnails of different
	// geometry never collide.
	CacheNamespace string
	Sleep          SleepFunc
	Cache          ThumbnailCache
	Logger         *slog.Logger
	Now            func() time.Time
}

// BatchProcessor fans a batch out to fetch+transform and gathers one
// ProcessedImage per record, in input order.
type BatchProcessor struct {
	fetcher     ImageFetcher
	transformer ImageTransformer
	cfg         ProcessorConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewBatchProcessor wires a processor. Nil Logger and Now fall back to
// slog.Default and time.Now.
func NewBatchProcessor(fetcher ImageFetcher, transformer ImageTransformer, cfg ProcessorConfig) *BatchProcessor {
	p := &BatchProcessor{
		fetcher:     fetcher,
		transformer: transformer,
		cfg:         cfg,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// ProcessChunk processes every record concurrently and returns exactly
// len(batch) results where out[i] belongs to batch[i]. Per-record failures are
// reported as StatusError entries, never as an error.
func (p *BatchProcessor) ProcessChunk(ctx context.Context, batch []models.RawRecord) []models.ProcessedImage {
	out := make([]models.ProcessedImage, len(batch))

	// No WithContext: one record's failure must not cancel its siblings.
	var g errgroup.Group
	if p.cfg.MaxConcurrency > 0 {
		g.SetLimit(p.cfg.MaxConcurrency)
	}
	for i, rec := range batch {
		g.Go(func() error {
			out[i] = p.createThumbnail(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (p *BatchProcessor) createThumbnail(ctx context.Context, rec models.RawRecord) models.ProcessedImage {
	logCtx := p.logger.With("id", rec.Identifier, "index", rec.SequenceIndex)

	key := p.cacheKey(rec.SourceURL)
	if p.cfg.Cache != nil {
		thumb, ok, err := p.cfg.Cache.Get(ctx, key)
		if err != nil {
			logCtx.Warn("Thumbnail cache lookup failed, fetching instead.", "error", err)
		} else if ok {
			logCtx.Debug("Thumbnail served from cache.")
			return p.success(rec, thumb)
		}
	}

	retrier := Retrier{
		Retries: p.cfg.Retries,
		Delay:   p.cfg.Delay,
		Sleep:   p.cfg.Sleep,
		OnRetry: func(attempt int, err error) {
			logCtx.Warn(
				"Retrying thumbnail creation.",
				"attempt", attempt,
				"retriesLeft", p.cfg.Retries-attempt,
				"error", err,
			)
		},
	}

	var thumb []byte
	err := retrier.Do(ctx, func(ctx context.Context, _ int) error {
		t, err := p.fetchAndTransform(ctx, rec.SourceURL)
		if err != nil {
			return err
		}
		thumb = t
		return nil
	})
	if err != nil {
		logCtx.Error("Error creating thumbnail.", "url", rec.SourceURL, "error", err)
		return models.ProcessedImage{
			Identifier:    rec.Identifier,
			SequenceIndex: rec.SequenceIndex,
			Thumbnail:     []byte{},
			Status:        models.StatusError,
			ProcessedAt:   p.now(),
			ErrorMessage:  err.Error(),
		}
	}

	if p.cfg.Cache != nil {
		if err := p.cfg.Cache.Set(ctx, key, thumb); err != nil {
			logCtx.Warn("Failed to cache thumbnail.", "error", err)
		}
	}
	return p.success(rec, thumb)
}

// fetchAndTransform is the retryable unit. A panic inside a decoder is turned
// into a transform error so it stays local to the record.
func (p *BatchProcessor) fetchAndTransform(ctx context.Context, url string) (thumb []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			thumb, err = nil, fmt.Errorf("%w: panic: %v", ErrTransform, r)
		}
	}()

	raw, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return p.transformer.Transform(raw)
}

func (p *BatchProcessor) success(rec models.RawRecord, thumb []byte) models.ProcessedImage {
	return models.ProcessedImage{
		Identifier:    rec.Identifier,
		SequenceIndex: rec.SequenceIndex,
		Thumbnail:     thumb,
		Status:        models.StatusSuccess,
		ProcessedAt:   p.now(),
	}
}

func (p *BatchProcessor) cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "thumb:" + p.cfg.CacheNamespace + ":" + hex.EncodeToString(sum[:])
}
