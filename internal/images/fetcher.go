package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/img2pdf/internal/staging"
)

// DefaultMaxBytes caps a single downloaded image.
const DefaultMaxBytes = 10 * 1024 * 1024

// Fetcher retrieves images dropped as URLs so they can be staged like local files
type Fetcher struct {
	HTTPClient *http.Client
	MaxBytes   int64
}

// NewFetcher creates a new image fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		MaxBytes: DefaultMaxBytes,
	}
}

// IsURL reports whether a dropped item should be fetched rather than opened
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Fetch downloads imageURL into memory
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) (*staging.BytesHandle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	imageData, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(imageData)) > maxBytes {
		return nil, fmt.Errorf("image too large (max %d bytes)", maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(imageData)
	}

	filename := FilenameFromURL(imageURL)
	slog.Info("Fetched image", "url", imageURL, "filename", filename, "bytes", len(imageData), "type", contentType)

	return staging.NewBytesHandle(filename, contentType, imageData), nil
}

// FilenameFromURL extracts the last path segment, falling back to image.jpg
func FilenameFromURL(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "image.jpg"
	}
	filename := path.Base(u.Path)
	if filename == "" || filename == "." || filename == "/" {
		return "image.jpg"
	}
	return filename
}
