package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/lehigh-university-libraries/img2pdf/internal/convert"
)

const imagesField = "images"

var (
	errTooManyFiles = errors.New("too many files")
	errFileTooLarge = errors.New("file too large")
)

// readImages collects the images parts of a multipart request in the order
// they were sent. Parts with an empty filename (an empty file input) are
// skipped, as are other form fields.
func (h *Handler) readImages(r *http.Request) ([]convert.Page, int64, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read multipart body: %w", err)
	}

	var (
		pages []convert.Page
		total int64
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return pages, total, nil
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read part: %w", err)
		}

		if part.FormName() != imagesField || part.FileName() == "" {
			part.Close()
			continue
		}
		if len(pages) == h.maxFiles {
			part.Close()
			return nil, 0, fmt.Errorf("%w (max %d)", errTooManyFiles, h.maxFiles)
		}

		data, err := h.readPart(part)
		part.Close()
		if err != nil {
			return nil, 0, err
		}
		if len(data) == 0 {
			continue
		}
		total += int64(len(data))
		pages = append(pages, convert.Page{Name: part.FileName(), Data: data})
	}
}

func (h *Handler) readPart(part *multipart.Part) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(part, h.maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", part.FileName(), err)
	}
	if int64(len(data)) > h.maxFileBytes {
		return nil, fmt.Errorf("%w: %s (max %dMB)", errFileTooLarge, part.FileName(), h.maxFileBytes/1024/1024)
	}
	return data, nil
}
