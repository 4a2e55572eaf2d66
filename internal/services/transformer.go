package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Registered decoders for the formats accepted as thumbnail input.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxSourcePixels bounds the decoded size of a source image. A
// 4096x4096 RGBA frame is 64 MiB; several run at once.
const DefaultMaxSourcePixels = 4096 * 4096

// TransformerConfig sets the thumbnail geometry and encoding.
type TransformerConfig struct {
	Width       int
	Height      int
	JPEGQuality int
	// MaxPixels rejects sources whose header claims more pixels before any
	// decoding happens. Zero uses DefaultMaxSourcePixels.
	MaxPixels int64
}

// Transformer resizes raster images to a fixed geometry. Aspect ratio is not
// preserved. The output is a JPEG. It is stateless and safe for concurrent use.
type Transformer struct {
	cfg TransformerConfig
}

// NewTransformer creates a Transformer. Zero quality falls back to the JPEG default.
func NewTransformer(cfg TransformerConfig) *Transformer {
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = jpeg.DefaultQuality
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = DefaultMaxSourcePixels
	}
	return &Transformer{cfg: cfg}
}

// Transform decodes src and returns the encoded thumbnail. Undecodable input
// wraps ErrTransform.
func (t *Transformer) Transform(src []byte) ([]byte, error) {
	hdr, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransform, err)
	}
	if int64(hdr.Width)*int64(hdr.Height) > t.cfg.MaxPixels {
		return nil, fmt.Errorf("%w: %s image of %dx%d exceeds %d pixels", ErrTransform, format, hdr.Width, hdr.Height, t.cfg.MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrTransform, format, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, t.cfg.Width, t.cfg.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: t.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: encoding thumbnail: %v", ErrTransform, err)
	}
	return buf.Bytes(), nil
}
