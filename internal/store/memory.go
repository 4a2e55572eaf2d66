package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
	"github.com/Lllllllleong/thumbnailflow/internal/services"
)

type memoryEntry struct {
	image     models.ProcessedImage
	createdAt time.Time
	updatedAt time.Time
}

// Memory keeps images in process. It backs dry runs and tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: map[string]memoryEntry{}, now: time.Now}
}

// Existing reports which ids are stored.
func (m *Memory) Existing(_ context.Context, ids []string) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.entries[id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

// UpsertAll replaces or inserts every image. It never fails.
func (m *Memory) UpsertAll(_ context.Context, images []models.ProcessedImage) ([]error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, img := range images {
		entry, ok := m.entries[img.Identifier]
		if !ok {
			entry.createdAt = now
		}
		entry.image = img
		entry.image.Thumbnail = slices.Clone(img.Thumbnail)
		entry.updatedAt = now
		m.entries[img.Identifier] = entry
	}
	return make([]error, len(images)), nil
}

// Get returns a copy of the stored image for id.
func (m *Memory) Get(id string) (models.ProcessedImage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return models.ProcessedImage{}, false
	}
	img := entry.image
	img.Thumbnail = slices.Clone(entry.image.Thumbnail)
	return img, true
}

// Count returns the number of stored images.
func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.entries)), nil
}

// List pages through the images ordered by sequence index, then identifier.
func (m *Memory) List(_ context.Context, offset, limit int) ([]models.ImageSummary, error) {
	m.mu.RLock()
	all := make([]models.ImageSummary, 0, len(m.entries))
	for _, entry := range m.entries {
		all = append(all, models.ImageSummary{
			Identifier:    entry.image.Identifier,
			SequenceIndex: entry.image.SequenceIndex,
			Status:        entry.image.Status,
		})
	}
	m.mu.RUnlock()

	slices.SortFunc(all, func(a, b models.ImageSummary) int {
		return cmp.Or(cmp.Compare(a.SequenceIndex, b.SequenceIndex), cmp.Compare(a.Identifier, b.Identifier))
	})
	if offset >= len(all) {
		return []models.ImageSummary{}, nil
	}
	return all[offset:min(offset+limit, len(all))], nil
}

// Thumbnail returns the stored thumbnail bytes for id.
func (m *Memory) Thumbnail(_ context.Context, id string) ([]byte, error) {
	img, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("image %q: %w", id, services.ErrNotFound)
	}
	return img.Thumbnail, nil
}
