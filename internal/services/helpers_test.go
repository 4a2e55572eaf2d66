package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pngBytes encodes a w×h gradient as PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// stubFetcher serves canned bytes per URL. failures[url] fetches fail before
// the URL starts succeeding; a URL missing from bodies always fails.
type stubFetcher struct {
	mu       sync.Mutex
	bodies   map[string][]byte
	failures map[string]int
	calls    map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{bodies: map[string][]byte{}, failures: map[string]int{}, calls: map[string]int{}}
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.calls[url] <= f.failures[url] {
		return nil, errors.Join(ErrFetch, errors.New("connection reset"))
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, errors.Join(ErrFetch, errors.New("unexpected status 404 Not Found"))
	}
	return body, nil
}

func (f *stubFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// sleepRecorder is a SleepFunc that returns immediately and remembers each wait.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

// mapStore is an in-test Store. lookupDown fails every Existing call and
// failUpsert fails the given UpsertAll calls (1-based) at submission level.
// A lookup that names one of badIDs fails as a whole, the way a key the store
// cannot encode fails a multi-get; upserts reject badIDs and rejectIDs per
// record.
type mapStore struct {
	mu         sync.Mutex
	data       map[string]models.ProcessedImage
	calls      int
	upserts    int
	lookupDown bool
	failUpsert map[int]bool
	badIDs     map[string]bool
	rejectIDs  map[string]bool
}

func newMapStore() *mapStore {
	return &mapStore{
		data:       map[string]models.ProcessedImage{},
		failUpsert: map[int]bool{},
		badIDs:     map[string]bool{},
		rejectIDs:  map[string]bool{},
	}
}

func (s *mapStore) Existing(_ context.Context, ids []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.lookupDown {
		return nil, errors.New("connection refused")
	}
	out := map[string]bool{}
	for _, id := range ids {
		if s.badIDs[id] {
			return nil, fmt.Errorf("invalid key %q", id)
		}
		if _, ok := s.data[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (s *mapStore) UpsertAll(_ context.Context, images []models.ProcessedImage) ([]error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.failUpsert[s.upserts] {
		return nil, errors.New("connection reset by peer")
	}
	errs := make([]error, len(images))
	for i, img := range images {
		switch {
		case s.badIDs[img.Identifier]:
			errs[i] = fmt.Errorf("invalid key %q", img.Identifier)
		case s.rejectIDs[img.Identifier]:
			errs[i] = errors.New("document too large")
		default:
			s.data[img.Identifier] = img
		}
	}
	return errs, nil
}

func (s *mapStore) snapshot() map[string]models.ProcessedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.ProcessedImage, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
