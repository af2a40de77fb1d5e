package handlers

import (
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/img2pdf/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Routes registers every endpoint. Request metrics are recorded on reg when
// it is not nil, which also enables /metrics.
func (h *Handler) Routes(reg *prometheus.Registry) *http.ServeMux {
	wrap := func(_ string, next http.HandlerFunc) http.Handler { return next }
	mux := http.NewServeMux()

	if reg != nil {
		httpMetrics := metrics.NewHTTP(reg)
		wrap = func(route string, next http.HandlerFunc) http.Handler { return httpMetrics.Wrap(route, next) }
		mux.Handle("/metrics", metrics.Handler(reg))
	}

	mux.Handle("/upload", wrap("/upload", h.HandleUpload))
	mux.Handle("/api/conversions", wrap("/api/conversions", h.HandleConversions))
	mux.Handle("/api/conversions/", wrap("/api/conversions/{id}", h.HandleConversionDetail))
	mux.Handle("/", wrap("/", h.HandleStatic))
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	return mux
}
