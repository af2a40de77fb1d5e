package handlers

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/img2pdf/internal/convert"
	"github.com/lehigh-university-libraries/img2pdf/internal/models"
)

// ArtifactName is the download name of every converted document.
const ArtifactName = "converted.pdf"

const noImagesMessage = "No valid images uploaded."

// HandleUpload converts the uploaded images into one PDF, a page per image
// in upload order.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.limiter.Allow() {
		if h.metrics != nil {
			h.metrics.RateLimited.Inc()
		}
		w.Header().Set("Retry-After", "1")
		h.writeError(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	start := h.clock.Now()
	rec := models.ConversionRecord{
		ID:         uuid.NewString(),
		CreatedAt:  start,
		RemoteAddr: r.RemoteAddr,
	}
	log := slog.With("conversion_id", rec.ID)

	// Multipart framing overhead is small next to the images themselves.
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxFiles)*h.maxFileBytes+1024*1024)

	pages, inputBytes, err := h.readImages(r)
	rec.InputBytes = inputBytes
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, errTooManyFiles), errors.Is(err, errFileTooLarge), errors.As(err, &maxErr):
			h.fail(w, &rec, models.StatusTooMany, err.Error(), http.StatusRequestEntityTooLarge)
		default:
			h.fail(w, &rec, models.StatusError, err.Error(), http.StatusBadRequest)
		}
		return
	}
	for _, p := range pages {
		rec.Filenames = append(rec.Filenames, p.Name)
	}

	var out bytes.Buffer
	res, err := h.converter.Convert(r.Context(), pages, &out)
	rec.DurationMS = h.clock.Since(start).Milliseconds()
	switch {
	case errors.Is(err, convert.ErrNoImages):
		h.fail(w, &rec, models.StatusEmpty, noImagesMessage, http.StatusBadRequest)
		return
	case errors.Is(err, convert.ErrInvalidImage):
		h.fail(w, &rec, models.StatusInvalid, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		h.fail(w, &rec, models.StatusError, err.Error(), http.StatusInternalServerError)
		return
	}

	rec.Status = models.StatusOK
	rec.Pages = int64(res.Pages)
	rec.OutputBytes = res.Bytes
	h.history.Add(rec)
	if h.metrics != nil {
		h.metrics.Total.WithLabelValues(models.StatusOK).Inc()
		h.metrics.Duration.Observe(h.clock.Since(start).Seconds())
		h.metrics.Pages.Observe(float64(res.Pages))
		h.metrics.OutputBytes.Observe(float64(res.Bytes))
	}
	log.Info("Converted images", "pages", res.Pages, "bytes", res.Bytes, "duration_ms", rec.DurationMS)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ArtifactName+`"`)
	if _, err := w.Write(out.Bytes()); err != nil {
		log.Error("Unable to write pdf", "err", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, rec *models.ConversionRecord, status, message string, code int) {
	rec.Status = status
	rec.Error = message
	h.history.Add(*rec)
	if h.metrics != nil {
		h.metrics.Total.WithLabelValues(status).Inc()
	}
	h.writeError(w, message, code)
}
