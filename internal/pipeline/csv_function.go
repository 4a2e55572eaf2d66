package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/thumbnailflow/internal/config"
	"github.com/Lllllllleong/thumbnailflow/internal/gcp"
	"github.com/Lllllllleong/thumbnailflow/internal/models"
)

// CSVIngesterFunction runs an ingestion pass for every CSV finalized in a
// bucket and optionally leaves a JSON run report behind.
type CSVIngesterFunction struct {
	pipeline      *Pipeline
	storageClient *storage.Client
	reportBucket  string

	// An Ingester runs one pass at a time.
	mu sync.Mutex
}

// NewCSVIngester loads the configuration from the environment and connects
// the pipeline.
func NewCSVIngester(ctx context.Context) (*CSVIngesterFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	p, err := New(ctx, cfg, slog.Default())
	if err != nil {
		return nil, err
	}
	f := &CSVIngesterFunction{pipeline: p, reportBucket: cfg.ReportBucket}

	if cfg.ReportBucket != "" {
		f.storageClient, err = storage.NewClient(ctx)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
	}
	return f, nil
}

// Process handles one object-finalized event. Objects that are not CSV files
// are ignored. Only a fatal source error is returned, so the platform may
// redeliver the event.
func (f *CSVIngesterFunction) Process(ctx context.Context, event models.GCSEvent) error {
	logCtx := slog.With("bucket", event.Bucket, "object", event.Name, "generation", event.Generation)

	if !strings.EqualFold(path.Ext(event.Name), ".csv") {
		logCtx.Info("Skipping non-CSV object.")
		return nil
	}

	location := fmt.Sprintf("gs://%s/%s", event.Bucket, event.Name)
	logCtx.Info("Processing uploaded CSV.", "source", location)

	f.mu.Lock()
	summary, runErr := f.pipeline.Run(ctx, location)
	f.mu.Unlock()

	if f.storageClient != nil {
		report := models.RunReport{Source: location, Generation: event.Generation, Summary: summary}
		if runErr != nil {
			report.Error = runErr.Error()
		}
		if err := f.saveReport(ctx, event, report); err != nil {
			logCtx.Error("Failed to save run report.", "error", err)
		}
	}

	if runErr != nil {
		logCtx.Error("Ingestion aborted.", "error", runErr)
		return runErr
	}
	return nil
}

// saveReport writes reports/<object>.<generation>.json once. A redelivered
// event finds the report already present and leaves it alone.
func (f *CSVIngesterFunction) saveReport(ctx context.Context, event models.GCSEvent, report models.RunReport) error {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}
	name := reportObjectName(event)
	return gcp.SaveToGCSAtomically(ctx, f.storageClient.Bucket(f.reportBucket), name, "application/json", body)
}

func reportObjectName(event models.GCSEvent) string {
	gen := event.Generation
	if gen == "" {
		gen = "0"
	}
	return fmt.Sprintf("reports/%s.%s.json", strings.TrimSuffix(event.Name, path.Ext(event.Name)), gen)
}

// Close releases the pipeline and storage clients.
func (f *CSVIngesterFunction) Close() error {
	err := f.pipeline.Close()
	if f.storageClient != nil {
		if cerr := f.storageClient.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
