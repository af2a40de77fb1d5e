package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds settings shared by the client and server commands.
// Precedence, lowest first: defaults, YAML file, IMG2PDF_* environment,
// command line flags (applied by the caller).
type Config struct {
	Endpoint      string  `yaml:"endpoint"`
	DownloadDir   string  `yaml:"download_dir"`
	MaxFiles      int     `yaml:"max_files"`
	PreviewSize   int     `yaml:"preview_size"`
	DecodeWorkers int     `yaml:"decode_workers"`
	Port          string  `yaml:"port"`
	MaxUploadMB   int     `yaml:"max_upload_mb"`
	RateLimit     float64 `yaml:"rate_limit"`
	RateBurst     int     `yaml:"rate_burst"`
	History       string  `yaml:"history"`
}

func Default() Config {
	return Config{
		Endpoint:      "http://localhost:8888",
		DownloadDir:   ".",
		MaxFiles:      20,
		PreviewSize:   160,
		DecodeWorkers: 4,
		Port:          "8888",
		MaxUploadMB:   10,
		RateLimit:     2,
		RateBurst:     5,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		slog.Debug("Loaded config file", "path", path)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setString(&c.Endpoint, "IMG2PDF_ENDPOINT")
	setString(&c.DownloadDir, "IMG2PDF_DOWNLOAD_DIR")
	setString(&c.Port, "IMG2PDF_PORT")
	setString(&c.History, "IMG2PDF_HISTORY")

	ints := []struct {
		key string
		dst *int
	}{
		{"IMG2PDF_MAX_FILES", &c.MaxFiles},
		{"IMG2PDF_PREVIEW_SIZE", &c.PreviewSize},
		{"IMG2PDF_DECODE_WORKERS", &c.DecodeWorkers},
		{"IMG2PDF_MAX_UPLOAD_MB", &c.MaxUploadMB},
		{"IMG2PDF_RATE_BURST", &c.RateBurst},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", e.key, v, err)
		}
		*e.dst = n
	}

	if v := os.Getenv("IMG2PDF_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid IMG2PDF_RATE_LIMIT=%q: %w", v, err)
		}
		c.RateLimit = f
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects settings no component can work with.
func (c Config) Validate() error {
	switch {
	case c.MaxFiles <= 0:
		return fmt.Errorf("max_files must be positive, got %d", c.MaxFiles)
	case c.PreviewSize <= 0:
		return fmt.Errorf("preview_size must be positive, got %d", c.PreviewSize)
	case c.DecodeWorkers <= 0:
		return fmt.Errorf("decode_workers must be positive, got %d", c.DecodeWorkers)
	case c.MaxUploadMB <= 0:
		return fmt.Errorf("max_upload_mb must be positive, got %d", c.MaxUploadMB)
	case c.RateLimit < 0 || c.RateBurst < 0:
		return fmt.Errorf("rate_limit and rate_burst must not be negative")
	}
	return nil
}
