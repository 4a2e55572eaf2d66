package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/thumbnailflow/internal/config"
	"github.com/Lllllllleong/thumbnailflow/internal/models"
	"github.com/Lllllllleong/thumbnailflow/internal/services"
	"github.com/Lllllllleong/thumbnailflow/internal/store"
)

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(source string) *config.Config {
	return &config.Config{
		StoreURI:       "memory://",
		BatchSize:      3,
		Source:         source,
		HTTPTimeout:    5 * time.Second,
		MaxFileSize:    config.DefaultMaxFileSize,
		MaxPixels:      config.DefaultMaxPixels,
		Width:          100,
		Height:         100,
		JPEGQuality:    85,
		RetryAttempts:  1,
		RetryDelay:     time.Millisecond,
		MaxConcurrency: 4,
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	srv := imageServer(t)

	var csv strings.Builder
	csv.WriteString("index,id,url\n")
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&csv, "%d,img-%d,%s/%d.png\n", i, i, srv.URL, i)
	}
	csv.WriteString("5,bad-url,::not a url::\n")
	fmt.Fprintf(&csv, "6,gone,%s/missing.png\n", srv.URL)
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv.String()), 0o600))

	mem := store.NewMemory()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p, err := NewWithStore(testConfig(path), mem, nil, logger)
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, models.RunSummary{Processed: 6, Errors: 1, Skipped: 1, Batches: 2}, summary)

	ok, found := mem.Get("img-3")
	require.True(t, found)
	assert.Equal(t, models.StatusSuccess, ok.Status)
	thumb, _, err := image.Decode(bytes.NewReader(ok.Thumbnail))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), thumb.Bounds())

	gone, found := mem.Get("gone")
	require.True(t, found)
	assert.Equal(t, models.StatusError, gone.Status)
	assert.Contains(t, gone.ErrorMessage, "404")

	_, found = mem.Get("bad-url")
	assert.False(t, found)

	// A second pass converges on the same records.
	again, err := p.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, summary, again)
	n, err := mem.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestPipeline_MissingSourceIsFatal(t *testing.T) {
	p, err := NewWithStore(testConfig("x"), store.NewMemory(), nil, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.ErrorIs(t, err, services.ErrFatalSource)
}

func TestPipeline_MalformedHeaderIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\n1,2,3\n"), 0o600))
	p, err := NewWithStore(testConfig(path), store.NewMemory(), nil, nil)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), path)
	assert.ErrorIs(t, err, services.ErrFatalSource)
}

type recordingNotifier struct {
	source  string
	summary models.RunSummary
	calls   int
}

func (n *recordingNotifier) RunCompleted(_ context.Context, source string, summary models.RunSummary) error {
	n.calls++
	n.source, n.summary = source, summary
	return nil
}

func TestPipeline_NotifiesOnCompletion(t *testing.T) {
	srv := imageServer(t)
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("index,id,url\n0,a,"+srv.URL+"/a.png\n"), 0o600))

	p, err := NewWithStore(testConfig(path), store.NewMemory(), nil, nil)
	require.NoError(t, err)
	n := &recordingNotifier{}
	p.notifier = n

	_, err = p.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, n.calls)
	assert.Equal(t, path, n.source)
	assert.Equal(t, 1, n.summary.Processed)

	_, _ = p.Run(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	assert.Equal(t, 1, n.calls)
}

func TestNew_UnsupportedStore(t *testing.T) {
	cfg := testConfig("x")
	cfg.StoreURI = "mongodb://localhost/images"
	_, err := New(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, store.ErrUnsupportedScheme)
}

func TestNew_MemoryStore(t *testing.T) {
	p, err := New(context.Background(), testConfig("x"), nil)
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
