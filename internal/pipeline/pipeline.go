// Package pipeline assembles the ingestion components from a Config and owns
// the clients they share.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/thumbnailflow/internal/cache"
	"github.com/Lllllllleong/thumbnailflow/internal/config"
	"github.com/Lllllllleong/thumbnailflow/internal/gcp"
	"github.com/Lllllllleong/thumbnailflow/internal/models"
	"github.com/Lllllllleong/thumbnailflow/internal/services"
	"github.com/Lllllllleong/thumbnailflow/internal/source"
	"github.com/Lllllllleong/thumbnailflow/internal/store"
)

// CompletionNotifier is told about every pass that reaches DONE.
type CompletionNotifier interface {
	RunCompleted(ctx context.Context, source string, summary models.RunSummary) error
}

// Pipeline is a ready-to-run ingester with its store, cache and notifier.
type Pipeline struct {
	ingester *services.Ingester
	notifier CompletionNotifier
	logger   *slog.Logger
	closers  []func() error
}

// New connects every collaborator named by cfg. The returned Pipeline must be
// closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := store.Open(ctx, cfg.StoreURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	p := &Pipeline{logger: logger, closers: []func() error{backend.Close}}

	var thumbCache services.ThumbnailCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.CacheTTL)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.closers = append(p.closers, rc.Close)
		thumbCache = rc
	}

	if cfg.WorkflowID != "" {
		n, err := gcp.NewWorkflowNotifier(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.closers = append(p.closers, n.Close)
		p.notifier = n
	}

	if err := p.assemble(cfg, backend, thumbCache); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// NewWithStore builds a pipeline over an already opened store and optional
// cache. It does not take ownership of either.
func NewWithStore(cfg *config.Config, st services.Store, thumbCache services.ThumbnailCache, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{logger: logger}
	if err := p.assemble(cfg, st, thumbCache); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) assemble(cfg *config.Config, st services.Store, thumbCache services.ThumbnailCache) error {
	fetcher := services.NewFetcher(services.FetcherConfig{
		Timeout:     cfg.HTTPTimeout,
		MaxFileSize: cfg.MaxFileSize,
	})
	transformer := services.NewTransformer(services.TransformerConfig{
		Width:       cfg.Width,
		Height:      cfg.Height,
		JPEGQuality: cfg.JPEGQuality,
		MaxPixels:   cfg.MaxPixels,
	})
	processor := services.NewBatchProcessor(fetcher, transformer, services.ProcessorConfig{
		Retries:        cfg.RetryAttempts,
		Delay:          cfg.RetryDelay,
		MaxConcurrency: cfg.MaxConcurrency,
		CacheNamespace: fmt.Sprintf("%dx%dq%d", cfg.Width, cfg.Height, cfg.JPEGQuality),
		Cache:          thumbCache,
		Logger:         p.logger,
	})
	sink := services.NewSink(st, p.logger)

	opener := source.Opener{S3: source.S3Options{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}}
	ingester, err := services.NewIngester(processor, sink, services.IngesterConfig{
		BatchSize: cfg.BatchSize,
		Open: func(ctx context.Context, location string) (services.RecordReadCloser, error) {
			r, err := opener.Open(ctx, location)
			if err != nil {
				return nil, err
			}
			return r, nil
		},
		Logger: p.logger,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	p.ingester = ingester
	return nil
}

// Run ingests location and, once the pass is done, notifies the completion
// workflow if one is configured. A failed notification is logged only.
func (p *Pipeline) Run(ctx context.Context, location string) (models.RunSummary, error) {
	summary, err := p.ingester.RunLocation(ctx, location)
	if err != nil {
		return summary, err
	}
	if p.notifier != nil {
		if nerr := p.notifier.RunCompleted(ctx, location, summary); nerr != nil {
			p.logger.Warn("Failed to trigger completion workflow.", "source", location, "error", nerr)
		}
	}
	return summary, nil
}

// Close releases every client the pipeline opened, in reverse order.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	p.closers = nil
	return errors.Join(errs...)
}
