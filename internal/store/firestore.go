package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
	"github.com/Lllllllleong/thumbnailflow/internal/services"
)

// Firestore stores one document per image in a collection, keyed by the
// escaped identifier.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore uses collection on client. The caller keeps ownership of client.
func NewFirestore(client *firestore.Client, collection string) *Firestore {
	return &Firestore{client: client, collection: collection}
}

// docID maps an identifier onto a legal document ID. Firestore IDs cannot
// contain "/", be "." or "..", or match __.*__. PathEscape never emits %2E or
// %5F, so percent-encoding the offending dot or underscore keeps the mapping
// one-to-one.
func docID(identifier string) string {
	id := url.PathEscape(identifier)
	switch {
	case id == "." || id == "..":
		return strings.ReplaceAll(id, ".", "%2E")
	case len(id) >= 4 && strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__"):
		return "%5F" + id[1:]
	}
	return id
}

func (f *Firestore) doc(identifier string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(docID(identifier))
}

// Existing looks the ids up in a single batched read.
func (f *Firestore) Existing(ctx context.Context, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = f.doc(id)
	}

	snaps, err := f.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to look up documents in %s: %w", f.collection, err)
	}
	found := make(map[string]bool, len(ids))
	for i, snap := range snaps {
		if snap.Exists() {
			found[ids[i]] = true
		}
	}
	return found, nil
}

// UpsertAll enqueues one Set per image on a BulkWriter. Writes are
// independent: a rejected document does not affect the rest.
func (f *Firestore) UpsertAll(ctx context.Context, images []models.ProcessedImage) ([]error, error) {
	bw := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, len(images))
	errs := make([]error, len(images))
	for i, img := range images {
		job, err := bw.Set(f.doc(img.Identifier), documentData(img))
		if err != nil {
			errs[i] = fmt.Errorf("failed to enqueue %q: %w", img.Identifier, err)
			continue
		}
		jobs[i] = job
	}
	bw.End()

	for i, job := range jobs {
		if job == nil {
			continue
		}
		if _, err := job.Results(); err != nil {
			errs[i] = fmt.Errorf("failed to write %q: %w", images[i].Identifier, err)
		}
	}
	return errs, nil
}

func documentData(img models.ProcessedImage) map[string]interface{} {
	data := map[string]interface{}{
		"identifier":    img.Identifier,
		"sequenceIndex": img.SequenceIndex,
		"thumbnail":     img.Thumbnail,
		"status":        string(img.Status),
		"processedAt":   img.ProcessedAt,
		"updatedAt":     firestore.ServerTimestamp,
	}
	if img.ErrorMessage != "" {
		data["errorMessage"] = img.ErrorMessage
	}
	return data
}

// Count runs a count aggregation over the collection.
func (f *Firestore) Count(ctx context.Context) (int64, error) {
	res, err := f.client.Collection(f.collection).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents in %s: %w", f.collection, err)
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result type %T", res["all"])
	}
	return v.GetIntegerValue(), nil
}

// List pages through the collection ordered by sequence index.
func (f *Firestore) List(ctx context.Context, offset, limit int) ([]models.ImageSummary, error) {
	iter := f.client.Collection(f.collection).
		Select("identifier", "sequenceIndex", "status").
		OrderBy("sequenceIndex", firestore.Asc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	out := []models.ImageSummary{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list documents in %s: %w", f.collection, err)
		}
		var s models.ImageSummary
		if err := doc.DataTo(&s); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", doc.Ref.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Thumbnail reads the thumbnail field of one document.
func (f *Firestore) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	snap, err := f.doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("image %q: %w", id, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image %q: %w", id, err)
	}
	var img models.ProcessedImage
	if err := snap.DataTo(&img); err != nil {
		return nil, fmt.Errorf("failed to decode image %q: %w", id, err)
	}
	return img.Thumbnail, nil
}
