package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lehigh-university-libraries/img2pdf/internal/convert"
	"github.com/lehigh-university-libraries/img2pdf/internal/metrics"
	"github.com/lehigh-university-libraries/img2pdf/internal/models"
	"github.com/lehigh-university-libraries/img2pdf/internal/staging"
	"github.com/lehigh-university-libraries/img2pdf/internal/submit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	field string
	name  string
	data  []byte
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartBody(t *testing.T, parts ...upload) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		if p.name == "" && p.field != imagesField {
			require.NoError(t, mw.WriteField(p.field, string(p.data)))
			continue
		}
		fw, err := mw.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func newTestHandler(opts Options) *Handler {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewFakeClockAt(time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	}
	return New(opts)
}

func post(t *testing.T, h http.Handler, parts ...upload) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, parts...)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadConvertsInOrder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewConversion(reg)
	h := newTestHandler(Options{Metrics: m})
	mux := h.Routes(nil)

	rec := post(t, mux,
		upload{field: "images", name: "first.png", data: pngBytes(t, 10, 20)},
		upload{field: "note", data: []byte("ignored")},
		upload{field: "images", name: "second.png", data: pngBytes(t, 30, 10)},
		upload{field: "images", name: "third.png", data: pngBytes(t, 5, 5)},
	)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="converted.pdf"`, rec.Header().Get("Content-Disposition"))

	pages, err := convert.PageCount(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, pages)

	all := h.History().All()
	require.Len(t, all, 1)
	assert.Equal(t, models.StatusOK, all[0].Status)
	assert.Equal(t, []string{"first.png", "second.png", "third.png"}, all[0].Filenames)
	assert.Equal(t, int64(3), all[0].Pages)
	assert.Equal(t, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC), all[0].CreatedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Total.WithLabelValues(models.StatusOK)))
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		parts   []upload
		code    int
		status  string
		message string
	}{
		{
			name:    "no files",
			code:    http.StatusBadRequest,
			status:  models.StatusEmpty,
			message: "No valid images uploaded.",
		},
		{
			name:    "empty file input",
			parts:   []upload{{field: "images", name: "", data: nil}},
			code:    http.StatusBadRequest,
			status:  models.StatusEmpty,
			message: "No valid images uploaded.",
		},
		{
			name:   "not an image",
			parts:  []upload{{field: "images", name: "a.png", data: pngBytes(t, 2, 2)}, {field: "images", name: "notes.txt", data: []byte("hello")}},
			code:   http.StatusUnprocessableEntity,
			status: models.StatusInvalid,
		},
		{
			name: "too many files",
			opts: Options{MaxFiles: 2},
			parts: []upload{
				{field: "images", name: "1.png", data: pngBytes(t, 2, 2)},
				{field: "images", name: "2.png", data: pngBytes(t, 2, 2)},
				{field: "images", name: "3.png", data: pngBytes(t, 2, 2)},
			},
			code:   http.StatusRequestEntityTooLarge,
			status: models.StatusTooMany,
		},
		{
			name:   "file too large",
			opts:   Options{MaxFileBytes: 16},
			parts:  []upload{{field: "images", name: "big.png", data: pngBytes(t, 40, 40)}},
			code:   http.StatusRequestEntityTooLarge,
			status: models.StatusTooMany,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(tt.opts)
			rec := post(t, h.Routes(nil), tt.parts...)
			assert.Equal(t, tt.code, rec.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, strings.TrimSpace(rec.Body.String()))
			}

			all := h.History().All()
			require.Len(t, all, 1)
			assert.Equal(t, tt.status, all[0].Status)
			assert.NotEmpty(t, all[0].Error)
		})
	}
}

func TestUploadRejectsWrongRequests(t *testing.T) {
	mux := newTestHandler(Options{}).Routes(nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"images":[]}`))
	req.Header.Set("Content-Type", "application/json")
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRateLimited(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewConversion(reg)
	h := newTestHandler(Options{RateLimit: 0.001, RateBurst: 1, Metrics: m})
	mux := h.Routes(nil)

	first := post(t, mux, upload{field: "images", name: "a.png", data: pngBytes(t, 2, 2)})
	assert.Equal(t, http.StatusOK, first.Code)

	second := post(t, mux, upload{field: "images", name: "a.png", data: pngBytes(t, 2, 2)})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
	assert.Equal(t, 1, h.History().Len(), "rate limited requests are not recorded")
}

func TestConversionsAPI(t *testing.T) {
	h := newTestHandler(Options{})
	mux := h.Routes(nil)
	require.Equal(t, http.StatusOK, post(t, mux, upload{field: "images", name: "a.png", data: pngBytes(t, 4, 4)}).Code)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var list []models.ConversionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, []string{"a.png"}, list[0].Filenames)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversions/"+list[0].ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var one models.ConversionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, list[0].ID, one.ID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversions/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/conversions", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStaticAndHealth(t *testing.T) {
	mux := newTestHandler(Options{}).Routes(nil)

	tests := []struct {
		path     string
		code     int
		contains string
	}{
		{"/", http.StatusOK, `name="images"`},
		{"/index.html", http.StatusOK, `action="/upload"`},
		{"/healthcheck", http.StatusOK, "OK"},
		{"/missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := metrics.NewRegistry()
	h := newTestHandler(Options{Metrics: metrics.NewConversion(reg)})
	mux := h.Routes(reg)
	post(t, mux, upload{field: "images", name: "a.png", data: pngBytes(t, 2, 2)})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `img2pdf_conversion_total{outcome="ok"} 1`)
	assert.Contains(t, body, `img2pdf_http_request_duration_seconds_count{method="POST",route="/upload",status_code="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

// The staging client and the conversion endpoint speak the same protocol.
func TestSubmitterAgainstEndpoint(t *testing.T) {
	h := newTestHandler(Options{})
	srv := httptest.NewServer(h.Routes(nil))
	defer srv.Close()

	store := staging.NewStore(0)
	_, err := store.Add(
		staging.NewBytesHandle("one.png", "", pngBytes(t, 3, 3)),
		staging.NewBytesHandle("two.png", "", pngBytes(t, 6, 3)),
	)
	require.NoError(t, err)

	dir := t.TempDir()
	sess, err := submit.New(srv.URL, store, submit.DirSaver{Dir: dir}).Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, submit.Succeeded, sess.State)
	assert.Zero(t, store.Len())

	data, err := os.ReadFile(sess.ArtifactPath)
	require.NoError(t, err)
	pages, err := convert.PageCount(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, pages)

	all := h.History().All()
	require.Len(t, all, 1)
	assert.Equal(t, []string{"one.png", "two.png"}, all[0].Filenames)
}
