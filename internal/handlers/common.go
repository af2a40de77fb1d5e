package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/lehigh-university-libraries/img2pdf/internal/convert"
	"github.com/lehigh-university-libraries/img2pdf/internal/metrics"
	"github.com/lehigh-university-libraries/img2pdf/internal/storage"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxFiles     = 20
	DefaultMaxFileBytes = 10 * 1024 * 1024
)

type Options struct {
	MaxFiles     int
	MaxFileBytes int64
	// RateLimit is uploads per second across all clients; zero disables it.
	RateLimit float64
	RateBurst int
	Workers   int
	Clock     clockwork.Clock
	History   *storage.HistoryStore
	Metrics   *metrics.Conversion
}

type Handler struct {
	history      *storage.HistoryStore
	converter    *convert.Converter
	metrics      *metrics.Conversion
	limiter      *rate.Limiter
	clock        clockwork.Clock
	maxFiles     int
	maxFileBytes int64
}

func New(opts Options) *Handler {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.History == nil {
		opts.History = storage.New(0)
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Handler{
		history:      opts.History,
		converter:    convert.New(opts.Workers),
		metrics:      opts.Metrics,
		limiter:      rate.NewLimiter(limit, burst),
		clock:        opts.Clock,
		maxFiles:     opts.MaxFiles,
		maxFileBytes: opts.MaxFileBytes,
	}
}

// History exposes the conversion history for export on shutdown.
func (h *Handler) History() *storage.HistoryStore { return h.history }

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message, "status", code)
	http.Error(w, message, code)
}
