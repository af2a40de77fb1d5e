package staging

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// Handle is a reference to the raw bytes of a user-selected file.
// The store keeps the handle, never a copy of the bytes.
type Handle interface {
	Name() string
	ContentType() string
	Size() int64
	Open() (io.ReadCloser, error)
}

// FileHandle points at a file on the local filesystem.
type FileHandle struct {
	path        string
	size        int64
	contentType string
}

// NewFileHandle stats path and determines its media type, first from the
// extension and then by sniffing the leading bytes.
func NewFileHandle(path string) (*FileHandle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType, err = sniffFile(path)
		if err != nil {
			return nil, err
		}
	}

	return &FileHandle{
		path:        path,
		size:        info.Size(),
		contentType: contentType,
	}, nil
}

func (h *FileHandle) Name() string        { return filepath.Base(h.path) }
func (h *FileHandle) Path() string        { return h.path }
func (h *FileHandle) ContentType() string { return h.contentType }
func (h *FileHandle) Size() int64         { return h.size }

func (h *FileHandle) Open() (io.ReadCloser, error) {
	return os.Open(h.path)
}

func sniffFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return http.DetectContentType(head[:n]), nil
}

// BytesHandle holds file contents in memory, e.g. an image fetched from a URL.
type BytesHandle struct {
	name        string
	contentType string
	data        []byte
}

// NewBytesHandle wraps data. An empty contentType is sniffed from data.
func NewBytesHandle(name, contentType string, data []byte) *BytesHandle {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return &BytesHandle{name: name, contentType: contentType, data: data}
}

func (h *BytesHandle) Name() string        { return h.name }
func (h *BytesHandle) ContentType() string { return h.contentType }
func (h *BytesHandle) Size() int64         { return int64(len(h.data)) }

func (h *BytesHandle) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(h.data)), nil
}
