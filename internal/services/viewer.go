package services

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
)

const (
	defaultViewerPage  = 1
	defaultViewerLimit = 50
	maxViewerLimit     = 500
)

// Catalog is the read side of the store.
type Catalog interface {
	Count(ctx context.Context) (int64, error)
	// List returns up to limit summaries ordered by sequence index, skipping offset.
	List(ctx context.Context, offset, limit int) ([]models.ImageSummary, error)
	// Thumbnail returns the stored thumbnail or an error wrapping ErrNotFound.
	Thumbnail(ctx context.Context, id string) ([]byte, error)
}

var listingPage = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Saved images</title>
<style>
.grid { display: grid; grid-template-columns: repeat(auto-fill, minmax(150px, 1fr)); gap: 10px; }
.image-container { text-align: center; border: 1px solid #ddd; padding: 10px; }
.error { color: #b00; }
</style>
</head>
<body>
<h1>Saved images ({{.Total}} total)</h1>
<div>
Page {{.Page}} / {{.Pages}}
{{if .HasPrev}}<a href="/?page={{.PrevPage}}&limit={{.Limit}}">Previous</a>{{end}}
{{if .HasNext}}<a href="/?page={{.NextPage}}&limit={{.Limit}}">Next</a>{{end}}
</div>
<div class="grid">
{{range .Images}}<div class="image-container">
<img src="/image/{{.PathID}}" width="{{$.Width}}" height="{{$.Height}}" alt="{{.Identifier}}"/>
<div>ID: {{.Identifier}}</div>
<div>Index: {{.SequenceIndex}}</div>
{{if eq .Status "error"}}<div class="error">failed</div>{{end}}
</div>
{{end}}</div>
</body>
</html>
`))

type listingData struct {
	Total    int64
	Page     int
	Pages    int64
	Limit    int
	PrevPage int
	NextPage int
	HasPrev  bool
	HasNext  bool
	Width    int
	Height   int
	Images   []imageCard
}

type imageCard struct {
	models.ImageSummary
	PathID string
}

// Viewer serves a paginated listing of stored thumbnails and the thumbnails
// themselves.
type Viewer struct {
	catalog       Catalog
	logger        *slog.Logger
	width, height int
}

// NewViewer creates a Viewer. width and height are only used as display hints.
func NewViewer(catalog Catalog, width, height int, logger *slog.Logger) *Viewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Viewer{catalog: catalog, logger: logger, width: width, height: height}
}

// Handler returns the viewer routes: GET / and GET /image/{id}.
func (v *Viewer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", v.handleList)
	mux.HandleFunc("GET /image/{id}", v.handleImage)
	return mux
}

func (v *Viewer) handleList(w http.ResponseWriter, r *http.Request) {
	page := positiveQueryInt(r, "page", defaultViewerPage)
	limit := min(positiveQueryInt(r, "limit", defaultViewerLimit), maxViewerLimit)

	total, err := v.catalog.Count(r.Context())
	if err != nil {
		v.logger.Error("Failed to count images.", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	images, err := v.catalog.List(r.Context(), (page-1)*limit, limit)
	if err != nil {
		v.logger.Error("Failed to list images.", "page", page, "limit", limit, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pages := (total + int64(limit) - 1) / int64(limit)
	data := listingData{
		Total:    total,
		Page:     page,
		Pages:    pages,
		Limit:    limit,
		PrevPage: page - 1,
		NextPage: page + 1,
		HasPrev:  page > 1,
		HasNext:  int64(page) < pages,
		Width:    v.width,
		Height:   v.height,
		Images:   make([]imageCard, len(images)),
	}
	for i, img := range images {
		data.Images[i] = imageCard{ImageSummary: img, PathID: url.PathEscape(img.Identifier)}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := listingPage.Execute(w, data); err != nil {
		v.logger.Error("Failed to render listing.", "error", err)
	}
}

func (v *Viewer) handleImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	thumb, err := v.catalog.Thumbnail(r.Context(), id)
	if errors.Is(err, ErrNotFound) || (err == nil && len(thumb) == 0) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		v.logger.Error("Failed to load thumbnail.", "id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(thumb)))
	_, _ = w.Write(thumb)
}

// positiveQueryInt falls back to def when the parameter is missing, malformed
// or not positive.
func positiveQueryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
