// Package config loads the ingester, viewer and cloud-function settings from
// the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/thumbnailflow/internal/gcp"
)

// ErrConfig marks a missing or malformed setting. It is fatal at startup.
var ErrConfig = errors.New("invalid configuration")

const (
	DefaultSource          = "data/data.csv"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultMaxFileSize     = 120 * 1024 * 1024
	DefaultMaxPixels       = 4096 * 4096
	DefaultThumbnailWidth  = 100
	DefaultThumbnailHeight = 100
	DefaultJPEGQuality     = 85
	DefaultRetryAttempts   = 3
	DefaultRetryDelay      = time.Second
	DefaultCacheTTL        = 24 * time.Hour
	DefaultViewerPort      = "8080"
)

// Config holds every setting of an ingestion run.
type Config struct {
	StoreURI  string
	BatchSize int
	Source    string

	HTTPTimeout    time.Duration
	MaxFileSize    int64
	MaxPixels      int64
	Width          int
	Height         int
	JPEGQuality    int
	RetryAttempts  int
	RetryDelay     time.Duration
	MaxConcurrency int

	RedisAddr string
	CacheTTL  time.Duration

	S3 S3Config

	ProjectID        string
	WorkflowID       string
	WorkflowLocation string
	ReportBucket     string

	LogLevel slog.Level
}

// S3Config points s3:// sources at an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Load reads the ingestion configuration. STORE_URI and DEFAULT_BATCH_SIZE
// are required; everything else has a default.
func Load() (*Config, error) {
	cfg := &Config{
		StoreURI:         strings.TrimSpace(gcp.GetEnv("STORE_URI", "")),
		Source:           gcp.GetEnv("SOURCE", DefaultSource),
		RedisAddr:        gcp.GetEnv("REDIS_ADDR", ""),
		ProjectID:        gcp.GetEnv("PROJECT_ID", ""),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", ""),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		ReportBucket:     gcp.GetEnv("REPORT_BUCKET", ""),
		S3: S3Config{
			Endpoint:  gcp.GetEnv("S3_ENDPOINT", ""),
			AccessKey: gcp.GetEnv("S3_ACCESS_KEY", ""),
			SecretKey: gcp.GetEnv("S3_SECRET_KEY", ""),
		},
	}
	if cfg.StoreURI == "" {
		return nil, fmt.Errorf("%w: STORE_URI environment variable must be set", ErrConfig)
	}

	rawBatch := strings.TrimSpace(gcp.GetEnv("DEFAULT_BATCH_SIZE", ""))
	if rawBatch == "" {
		return nil, fmt.Errorf("%w: DEFAULT_BATCH_SIZE environment variable must be set", ErrConfig)
	}
	batchSize, err := strconv.Atoi(rawBatch)
	if err != nil || batchSize <= 0 {
		return nil, fmt.Errorf("%w: DEFAULT_BATCH_SIZE must be a positive integer, got %q", ErrConfig, rawBatch)
	}
	cfg.BatchSize = batchSize

	var errs []error
	cfg.HTTPTimeout = envDuration("HTTP_TIMEOUT", DefaultHTTPTimeout, &errs)
	cfg.MaxFileSize = int64(envInt("MAX_FILE_SIZE", DefaultMaxFileSize, &errs))
	cfg.MaxPixels = int64(envInt("MAX_SOURCE_PIXELS", DefaultMaxPixels, &errs))
	cfg.Width = envInt("THUMBNAIL_WIDTH", DefaultThumbnailWidth, &errs)
	cfg.Height = envInt("THUMBNAIL_HEIGHT", DefaultThumbnailHeight, &errs)
	cfg.JPEGQuality = envInt("JPEG_QUALITY", DefaultJPEGQuality, &errs)
	cfg.RetryAttempts = envInt("RETRY_ATTEMPTS", DefaultRetryAttempts, &errs)
	cfg.RetryDelay = envDuration("RETRY_DELAY", DefaultRetryDelay, &errs)
	cfg.MaxConcurrency = envInt("MAX_CONCURRENCY", 0, &errs)
	cfg.CacheTTL = envDuration("REDIS_TTL", DefaultCacheTTL, &errs)
	cfg.S3.UseSSL = envBool("S3_USE_SSL", false, &errs)
	cfg.LogLevel = envLevel("LOG_LEVEL", slog.LevelInfo, &errs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges. It is also called after CLI flags override values.
func (c *Config) Validate() error {
	switch {
	case c.StoreURI == "":
		return fmt.Errorf("%w: store URI cannot be empty", ErrConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrConfig, c.BatchSize)
	case c.Source == "":
		return fmt.Errorf("%w: source cannot be empty", ErrConfig)
	case c.HTTPTimeout <= 0:
		return fmt.Errorf("%w: HTTP_TIMEOUT must be positive", ErrConfig)
	case c.MaxFileSize <= 0:
		return fmt.Errorf("%w: MAX_FILE_SIZE must be positive", ErrConfig)
	case c.MaxPixels <= 0:
		return fmt.Errorf("%w: MAX_SOURCE_PIXELS must be positive", ErrConfig)
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: thumbnail dimensions must be positive, got %dx%d", ErrConfig, c.Width, c.Height)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("%w: JPEG_QUALITY must be between 1 and 100", ErrConfig)
	case c.RetryAttempts < 0:
		return fmt.Errorf("%w: RETRY_ATTEMPTS cannot be negative", ErrConfig)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: RETRY_DELAY cannot be negative", ErrConfig)
	case c.MaxConcurrency < 0:
		return fmt.Errorf("%w: MAX_CONCURRENCY cannot be negative", ErrConfig)
	}
	return nil
}

// ViewerConfig holds the read-side settings.
type ViewerConfig struct {
	StoreURI string
	Port     string
	LogLevel slog.Level
	// Width and Height are the thumbnail size the page advertises. They
	// should match what the ingester was run with.
	Width  int
	Height int
}

// LoadViewer reads the viewer configuration. Only STORE_URI is required.
func LoadViewer() (*ViewerConfig, error) {
	cfg := &ViewerConfig{
		StoreURI: strings.TrimSpace(gcp.GetEnv("STORE_URI", "")),
		Port:     gcp.GetEnv("PORT", DefaultViewerPort),
	}
	if cfg.StoreURI == "" {
		return nil, fmt.Errorf("%w: STORE_URI environment variable must be set", ErrConfig)
	}
	var errs []error
	cfg.LogLevel = envLevel("LOG_LEVEL", slog.LevelInfo, &errs)
	cfg.Width = envInt("THUMBNAIL_WIDTH", DefaultThumbnailWidth, &errs)
	cfg.Height = envInt("THUMBNAIL_HEIGHT", DefaultThumbnailHeight, &errs)
	if cfg.Width <= 0 || cfg.Height <= 0 {
		errs = append(errs, fmt.Errorf("thumbnail size must be positive, got %dx%d", cfg.Width, cfg.Height))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return cfg, nil
}

func envInt(key string, fallback int, errs *[]error) int {
	raw := strings.TrimSpace(gcp.GetEnv(key, ""))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, raw))
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := strings.TrimSpace(gcp.GetEnv(key, ""))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a duration such as 30s, got %q", key, raw))
		return fallback
	}
	return v
}

func envBool(key string, fallback bool, errs *[]error) bool {
	raw := strings.TrimSpace(gcp.GetEnv(key, ""))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be a boolean, got %q", key, raw))
		return fallback
	}
	return v
}

func envLevel(key string, fallback slog.Level, errs *[]error) slog.Level {
	raw := strings.TrimSpace(gcp.GetEnv(key, ""))
	if raw == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be one of debug, info, warn, error, got %q", key, raw))
		return fallback
	}
	return lvl
}
