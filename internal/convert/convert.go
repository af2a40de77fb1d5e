// Package convert builds a single PDF from an ordered list of images, one page
// per image.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoImages = errors.New("no valid images uploaded")
	// ErrInvalidImage marks an input that could not be decoded as an image.
	ErrInvalidImage = errors.New("invalid image")
)

// Page is one uploaded image in request order.
type Page struct {
	Name string
	Data []byte
}

// Result describes a finished document.
type Result struct {
	Pages int
	Bytes int64
}

type Converter struct {
	conf    *model.Configuration
	workers int
}

// New returns a converter that normalizes up to workers images at once.
func New(workers int) *Converter {
	if workers <= 0 {
		workers = 4
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Converter{conf: conf, workers: workers}
}

// Convert writes the PDF to w. Page order follows pages.
func (c *Converter) Convert(ctx context.Context, pages []Page, w io.Writer) (Result, error) {
	if len(pages) == 0 {
		return Result{}, ErrNoImages
	}

	normalized := make([][]byte, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, p := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := Normalize(p.Data)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidImage, p.Name, err)
			}
			normalized[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	readers := make([]io.Reader, len(normalized))
	for i, data := range normalized {
		readers[i] = bytes.NewReader(data)
	}

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, pdfcpu.DefaultImportConfig(), c.conf); err != nil {
		return Result{}, fmt.Errorf("failed to build pdf: %w", err)
	}

	n, err := io.Copy(w, &buf)
	if err != nil {
		return Result{}, fmt.Errorf("failed to write pdf: %w", err)
	}
	slog.Debug("Converted images", "pages", len(pages), "bytes", n)
	return Result{Pages: len(pages), Bytes: n}, nil
}

// Normalize returns data unchanged when it is a JPEG or PNG and re-encodes
// every other decodable format as PNG.
func Normalize(data []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("empty %s image", format)
	}
	if format == "jpeg" || format == "png" {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("failed to re-encode %s: %w", format, err)
	}
	return out.Bytes(), nil
}

// PageCount reports the number of pages in a PDF.
func PageCount(rs io.ReadSeeker) (int, error) {
	return api.PageCount(rs, model.NewDefaultConfiguration())
}
