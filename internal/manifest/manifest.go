// Package manifest reads batch manifests: an ordered list of images to stage
// and submit in one go.
//
//	endpoint: http://localhost:8888   # optional
//	output: scans.pdf                  # optional artifact name
//	files:
//	  - cover.jpg
//	  - pages/001.png
//	  - https://example.org/back.jpg
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/img2pdf/internal/images"
	"gopkg.in/yaml.v3"
)

var ErrNoFiles = errors.New("manifest lists no files")

type Manifest struct {
	Endpoint string   `yaml:"endpoint"`
	Output   string   `yaml:"output"`
	Files    []string `yaml:"files"`
}

// Load parses the manifest at path. Relative file entries are resolved
// against the manifest's directory; URLs are kept as they are.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i, f := range m.Files {
		if images.IsURL(f) || strings.HasPrefix(f, "file://") || filepath.IsAbs(f) {
			continue
		}
		m.Files[i] = filepath.Join(base, f)
	}
	return m, nil
}

func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	files := m.Files[:0]
	for _, f := range m.Files {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	m.Files = files
	if len(m.Files) == 0 {
		return nil, ErrNoFiles
	}
	if m.Output != "" && filepath.Base(m.Output) != m.Output {
		return nil, fmt.Errorf("output must be a file name, got %q", m.Output)
	}
	return &m, nil
}
