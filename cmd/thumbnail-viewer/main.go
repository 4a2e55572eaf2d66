package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/thumbnailflow/internal/config"
	"github.com/Lllllllleong/thumbnailflow/internal/services"
	"github.com/Lllllllleong/thumbnailflow/internal/store"
)

var (
	viewerHandler http.Handler
	once          sync.Once
	initErr       error
	logLevel      = new(slog.LevelVar)
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	functions.HTTP("ViewThumbnails", viewThumbnails)
}

// main serves the function locally. Deployed, the platform calls
// viewThumbnails directly.
func main() {
	port := config.DefaultViewerPort
	if cfg, err := config.LoadViewer(); err == nil {
		port = cfg.Port
	}
	if os.Getenv("FUNCTION_TARGET") == "" {
		_ = os.Setenv("FUNCTION_TARGET", "ViewThumbnails")
	}
	slog.Info("Viewer available.", "url", "http://localhost:"+port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("Viewer stopped.", "error", err)
		os.Exit(1)
	}
}

func viewThumbnails(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		viewerHandler, initErr = newViewer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	viewerHandler.ServeHTTP(w, r)
}

func newViewer(ctx context.Context) (http.Handler, error) {
	cfg, err := config.LoadViewer()
	if err != nil {
		return nil, err
	}
	logLevel.Set(cfg.LogLevel)

	backend, err := store.Open(ctx, cfg.StoreURI)
	if err != nil {
		return nil, err
	}
	// The backend lives as long as the function instance.
	viewer := services.NewViewer(backend, cfg.Width, cfg.Height, slog.Default())
	return viewer.Handler(), nil
}
