package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FetcherConfig bounds a single image download.
type FetcherConfig struct {
	Timeout     time.Duration
	MaxFileSize int64
}

// Fetcher downloads raw image bytes over HTTP(S). It performs one attempt per
// call; retries are applied by the caller around fetch and transform together.
// It is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// NewFetcher builds a Fetcher with its own timeout-bounded http.Client.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	return NewFetcherWithClient(&http.Client{Timeout: cfg.Timeout}, cfg.MaxFileSize)
}

// NewFetcherWithClient wraps an existing client. The client's Timeout bounds each request.
func NewFetcherWithClient(client *http.Client, maxSize int64) *Fetcher {
	return &Fetcher{client: client, maxSize: maxSize}
}

// Fetch performs a GET and returns the body. Any failure wraps ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFetch, resp.Status)
	}
	if resp.ContentLength > f.maxSize {
		return nil, fmt.Errorf("%w: content length %d exceeds limit of %d bytes", ErrFetch, resp.ContentLength, f.maxSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetch, err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("%w: body exceeds limit of %d bytes", ErrFetch, f.maxSize)
	}
	return body, nil
}
