// Package preview turns staged file handles into small displayable thumbnails.
package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/lehigh-university-libraries/img2pdf/internal/staging"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxSize is the longest thumbnail edge in pixels.
const DefaultMaxSize = 160

// ErrUnsupportedType is returned for handles whose media type is not image/*.
var ErrUnsupportedType = errors.New("not an image")

// Preview is the decoded, displayable form of a staged file.
type Preview struct {
	Format    string
	Width     int
	Height    int
	Thumbnail image.Image
	DataURL   string
}

// Codec decodes handles into previews. It is safe for concurrent use.
type Codec struct {
	MaxSize int
}

func NewCodec(maxSize int) *Codec {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Codec{MaxSize: maxSize}
}

// Decode reads the handle's bytes and produces a thumbnail that fits within
// MaxSize x MaxSize, keeping the aspect ratio. Images smaller than the box
// are not upscaled.
func (c *Codec) Decode(ctx context.Context, h staging.Handle) (*Preview, error) {
	if !strings.HasPrefix(h.ContentType(), "image/") {
		return nil, fmt.Errorf("%s (%s): %w", h.Name(), h.ContentType(), ErrUnsupportedType)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := h.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", h.Name(), err)
	}
	defer rc.Close()

	src, format, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", h.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	thumb := c.scale(src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail for %s: %w", h.Name(), err)
	}

	return &Preview{
		Format:    format,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Thumbnail: thumb,
		DataURL:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

func (c *Codec) scale(src image.Image) image.Image {
	w, h := FitWithin(src.Bounds().Dx(), src.Bounds().Dy(), c.MaxSize)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// FitWithin returns the dimensions of a w x h image scaled down to fit in a
// limit x limit box. Each edge is at least one pixel.
func FitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return max(w, 1), max(h, 1)
	}
	if w >= h {
		return limit, max(h*limit/w, 1)
	}
	return max(w*limit/h, 1), limit
}
