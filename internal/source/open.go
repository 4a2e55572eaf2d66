package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Lllllllleong/thumbnailflow/internal/gcp"
)

// S3Options locates an S3-compatible endpoint for s3:// sources.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Opener opens CSV sources by location: a local path, gs://bucket/object or
// s3://bucket/key.
type Opener struct {
	S3 S3Options
}

// Open streams the CSV at location. The returned reader owns every client
// created for it and releases them on Close.
func (o Opener) Open(ctx context.Context, location string) (*CSVReader, error) {
	var (
		body io.ReadCloser
		err  error
	)
	switch {
	case strings.HasPrefix(location, "gs://"):
		body, err = openGCS(ctx, location)
	case strings.HasPrefix(location, "s3://"):
		body, err = o.openS3(ctx, location)
	default:
		body, err = os.Open(location)
	}
	if err != nil {
		return nil, err
	}

	r, err := NewCSVReader(body)
	if err != nil {
		_ = body.Close()
		return nil, err
	}
	return r, nil
}

// splitBucketURI turns scheme://bucket/key into its bucket and key.
func splitBucketURI(location, scheme string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(location, scheme+"://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed %s location %q, want %s://bucket/key", scheme, location, scheme)
	}
	return bucket, key, nil
}

func openGCS(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, object, err := splitBucketURI(location, "gs")
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	r, err := gcp.OpenObject(ctx, client, bucket, object)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &ownedReader{ReadCloser: r, owner: client}, nil
}

func (o Opener) openS3(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := splitBucketURI(location, "s3")
	if err != nil {
		return nil, err
	}
	if o.S3.Endpoint == "" {
		return nil, errors.New("S3_ENDPOINT must be set to read s3:// sources")
	}
	client, err := minio.New(o.S3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.S3.AccessKey, o.S3.SecretKey, ""),
		Secure: o.S3.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init error: %w", err)
	}

	obj, err := client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open s3://%s/%s: %w", bucket, key, err)
	}
	// GetObject is lazy; Stat surfaces a missing object here rather than on
	// the first Read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, fmt.Errorf("failed to stat s3://%s/%s: %w", bucket, key, err)
	}
	return obj, nil
}

// ownedReader closes the client that produced the stream along with it.
type ownedReader struct {
	io.ReadCloser
	owner io.Closer
}

func (r *ownedReader) Close() error {
	return errors.Join(r.ReadCloser.Close(), r.owner.Close())
}
