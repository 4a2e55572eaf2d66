package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/thumbnailflow/internal/models"
)

func images(ids ...string) []models.ProcessedImage {
	out := make([]models.ProcessedImage, len(ids))
	for i, id := range ids {
		out[i] = models.ProcessedImage{
			Identifier:    id,
			SequenceIndex: int64(i),
			Thumbnail:     []byte("jpeg-" + id),
			Status:        models.StatusSuccess,
			ProcessedAt:   fixedNow,
		}
	}
	return out
}

func TestSink_InsertThenUpdate(t *testing.T) {
	st := newMapStore()
	sink := NewSink(st, discardLogger())

	got, err := sink.Write(context.Background(), images("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, models.WriteSummary{Inserted: 3}, got)

	got, err = sink.Write(context.Background(), images("b", "c", "d"))
	require.NoError(t, err)
	assert.Equal(t, models.WriteSummary{Inserted: 1, Updated: 2}, got)
	assert.Len(t, st.snapshot(), 4)
}

func TestSink_Idempotent(t *testing.T) {
	st := newMapStore()
	sink := NewSink(st, discardLogger())
	batch := images("x", "y")
	batch[1].Status = models.StatusError
	batch[1].Thumbnail = []byte{}
	batch[1].ErrorMessage = "failed after 4 attempts: fetch failed"

	_, err := sink.Write(context.Background(), batch)
	require.NoError(t, err)
	once := st.snapshot()

	got, err := sink.Write(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, models.WriteSummary{Updated: 2}, got)
	assert.Equal(t, once, st.snapshot())
}

func TestSink_LastWriteWins(t *testing.T) {
	st := newMapStore()
	sink := NewSink(st, discardLogger())

	first := images("k")
	second := images("k")
	second[0].Thumbnail = []byte("newer")

	_, err := sink.Write(context.Background(), first)
	require.NoError(t, err)
	_, err = sink.Write(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, []byte("newer"), st.snapshot()["k"].Thumbnail)
}

func TestSink_DuplicateIdentifiersInOneBatch(t *testing.T) {
	st := newMapStore()
	sink := NewSink(st, discardLogger())

	batch := images("dup", "other", "dup")
	batch[2].Thumbnail = []byte("last")

	got, err := sink.Write(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, models.WriteSummary{Inserted: 2, Updated: 1}, got)
	assert.Equal(t, []byte("last"), st.snapshot()["dup"].Thumbnail)
}

func TestSink_PartialRecordFailure(t *testing.T) {
	st := newMapStore()
	st.rejectIDs["b"] = true
	sink := NewSink(st, discardLogger())

	got, err := sink.Write(context.Background(), images("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, models.WriteSummary{Inserted: 2, Failed: 1}, got)
	assert.NotContains(t, st.snapshot(), "b")
}

func TestSink_SubmissionFailures(t *testing.T) {
	t.Run("lookup fails", func(t *testing.T) {
		st := newMapStore()
		st.lookupDown = true

		got, err := NewSink(st, discardLogger()).Write(context.Background(), images("a", "b"))
		require.ErrorIs(t, err, ErrBatchWrite)
		assert.Zero(t, got)
		assert.Empty(t, st.snapshot())
	})

	t.Run("upsert fails", func(t *testing.T) {
		st := newMapStore()
		st.failUpsert[1] = true

		got, err := NewSink(st, discardLogger()).Write(context.Background(), images("a", "b"))
		require.ErrorIs(t, err, ErrBatchWrite)
		assert.Zero(t, got)
		assert.Empty(t, st.snapshot())
	})

	t.Run("every record rejected", func(t *testing.T) {
		st := newMapStore()
		st.rejectIDs["a"] = true
		st.rejectIDs["b"] = true

		got, err := NewSink(st, discardLogger()).Write(context.Background(), images("a", "b"))
		require.ErrorIs(t, err, ErrBatchWrite)
		assert.Zero(t, got)
	})
}

func TestSink_UnencodableKeyDoesNotSinkBatch(t *testing.T) {
	st := newMapStore()
	st.data["c"] = models.ProcessedImage{Identifier: "c"}
	st.badIDs["__bad__"] = true
	sink := NewSink(st, discardLogger())

	got, err := sink.Write(context.Background(), images("a", "__bad__", "c"))

	require.NoError(t, err)
	assert.Equal(t, models.WriteSummary{Inserted: 1, Updated: 1, Failed: 1}, got)
	stored := st.snapshot()
	assert.Contains(t, stored, "a")
	assert.Contains(t, stored, "c")
	assert.NotContains(t, stored, "__bad__")
	assert.Equal(t, 1, st.upserts)
}

func TestSink_OnlyUnencodableKeys(t *testing.T) {
	st := newMapStore()
	st.badIDs[".."] = true

	got, err := NewSink(st, discardLogger()).Write(context.Background(), images(".."))

	require.ErrorIs(t, err, ErrBatchWrite)
	assert.Zero(t, got)
	assert.Zero(t, st.upserts)
}

func TestSink_EmptyBatch(t *testing.T) {
	st := newMapStore()
	got, err := NewSink(st, discardLogger()).Write(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.Zero(t, st.calls)
}
