package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: http://convert:8888
output: thesis.pdf
files:
  - cover.jpg
  - "  pages/001.png  "
  - ""
  - /abs/back.png
  - https://example.org/extra.jpg
`), 0644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://convert:8888", m.Endpoint)
	assert.Equal(t, "thesis.pdf", m.Output)
	assert.Equal(t, []string{
		filepath.Join(dir, "cover.jpg"),
		filepath.Join(dir, "pages/001.png"),
		"/abs/back.png",
		"https://example.org/extra.jpg",
	}, m.Files)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "no files", body: "endpoint: x", want: ErrNoFiles},
		{name: "only blanks", body: "files: ['', ' ']", want: ErrNoFiles},
		{name: "output with directory", body: "output: ../x.pdf\nfiles: [a.png]"},
		{name: "not yaml", body: "files: [a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}
