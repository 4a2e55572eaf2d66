package services

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformer_FixedGeometry(t *testing.T) {
	tr := NewTransformer(TransformerConfig{Width: 100, Height: 100, JPEGQuality: 80})

	for _, size := range [][2]int{{640, 480}, {37, 211}, {100, 100}, {1, 1}} {
		out, err := tr.Transform(pngBytes(t, size[0], size[1]))
		require.NoError(t, err)

		img, format, err := image.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds(), "source %dx%d", size[0], size[1])
	}
}

func TestTransformer_CustomGeometry(t *testing.T) {
	tr := NewTransformer(TransformerConfig{Width: 64, Height: 32})

	out, err := tr.Transform(pngBytes(t, 10, 10))
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func TestTransformer_Deterministic(t *testing.T) {
	tr := NewTransformer(TransformerConfig{Width: 100, Height: 100, JPEGQuality: 85})
	src := pngBytes(t, 300, 200)

	a, err := tr.Transform(src)
	require.NoError(t, err)
	b, err := tr.Transform(src)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTransformer_RejectsUndecodable(t *testing.T) {
	tr := NewTransformer(TransformerConfig{Width: 100, Height: 100})

	for _, src := range [][]byte{nil, []byte("<html>not an image</html>"), pngBytes(t, 20, 20)[:40]} {
		_, err := tr.Transform(src)
		assert.ErrorIs(t, err, ErrTransform)
	}
}

func TestTransformer_RejectsOversizedSource(t *testing.T) {
	tr := NewTransformer(TransformerConfig{Width: 100, Height: 100, MaxPixels: 100})

	_, err := tr.Transform(pngBytes(t, 20, 20))
	require.ErrorIs(t, err, ErrTransform)
	assert.Contains(t, err.Error(), "20x20 exceeds 100 pixels")

	_, err = tr.Transform(pngBytes(t, 10, 10))
	assert.NoError(t, err)
}

func TestTransformer_DefaultPixelCeiling(t *testing.T) {
	tr := NewTransformer(TransformerConfig{Width: 100, Height: 100})

	// Only the header is read, so the claimed size is never allocated.
	var hdr bytes.Buffer
	require.NoError(t, png.Encode(&hdr, image.NewGray(image.Rect(0, 0, 1, 1))))
	huge := bytes.Clone(hdr.Bytes())
	binary.BigEndian.PutUint32(huge[16:], 5000)
	binary.BigEndian.PutUint32(huge[20:], 5000)
	binary.BigEndian.PutUint32(huge[29:], crc32.ChecksumIEEE(huge[12:29]))

	_, err := tr.Transform(huge)
	require.ErrorIs(t, err, ErrTransform)
	assert.Contains(t, err.Error(), "5000x5000 exceeds")
}
