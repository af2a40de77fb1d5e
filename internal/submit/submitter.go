// Package submit sends the staged batch to the conversion endpoint and
// delivers the returned document as a saved file.
package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lehigh-university-libraries/img2pdf/internal/staging"
)

const (
	// FieldName is the multipart field repeated once per staged file.
	FieldName = "images"
	// UploadPath is appended to the endpoint base URL.
	UploadPath = "/upload"
	// DefaultArtifactName is the file name the converted document is saved as.
	DefaultArtifactName = "converted.pdf"
)

var (
	ErrEmptySubmission = errors.New("please select some images")
	ErrBusy            = errors.New("a submission is already in progress")
	ErrTransport       = errors.New("upload failed")
	ErrDelivery        = errors.New("could not save the converted document")
)

// StatusError is a non-2xx response from the conversion endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

type State int

const (
	Idle State = iota
	Busy
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Busy:
		return "busy"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Session describes the latest submission.
type Session struct {
	ID           uuid.UUID
	State        State
	Files        []staging.StagedFile
	StartedAt    time.Time
	FinishedAt   time.Time
	ArtifactPath string
	Err          error
}

// Store is the part of the staging store the submitter reads and releases.
type Store interface {
	Snapshot() []staging.StagedFile
	RemoveIDs(ids ...uuid.UUID) int
}

// Saver delivers the artifact to the user and returns where it ended up.
type Saver interface {
	Save(name string, r io.Reader) (string, error)
}

type Option func(*Submitter)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Submitter) { s.client = c }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Submitter) { s.clock = c }
}

func WithArtifactName(name string) Option {
	return func(s *Submitter) { s.artifactName = name }
}

// Submitter owns the busy state: at most one submission is in flight.
type Submitter struct {
	url          string
	store        Store
	saver        Saver
	client       *http.Client
	clock        clockwork.Clock
	artifactName string

	mu      sync.Mutex
	session Session
}

// New returns a submitter posting to endpoint + UploadPath.
func New(endpoint string, store Store, saver Saver, opts ...Option) *Submitter {
	s := &Submitter{
		url:          strings.TrimRight(endpoint, "/") + UploadPath,
		store:        store,
		saver:        saver,
		client:       &http.Client{},
		clock:        clockwork.NewRealClock(),
		artifactName: DefaultArtifactName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// URL is the full upload URL.
func (s *Submitter) URL() string { return s.url }

// Session returns a copy of the latest session.
func (s *Submitter) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session
	sess.Files = append([]staging.StagedFile(nil), s.session.Files...)
	return sess
}

// Busy reports whether a submission is in flight.
func (s *Submitter) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.State == Busy
}

// Submit uploads the current staged order and saves the response. It
// returns ErrBusy without touching the network if another call is still in
// flight, and ErrEmptySubmission if nothing is staged. On success the
// submitted files are removed from the store; on failure the store is left
// untouched.
func (s *Submitter) Submit(ctx context.Context) (Session, error) {
	s.mu.Lock()
	if s.session.State == Busy {
		s.mu.Unlock()
		return s.Session(), ErrBusy
	}
	files := s.store.Snapshot()
	now := s.clock.Now()
	if len(files) == 0 {
		s.session = Session{ID: uuid.New(), State: Idle, StartedAt: now, FinishedAt: now, Err: ErrEmptySubmission}
		s.mu.Unlock()
		return s.Session(), ErrEmptySubmission
	}
	id := uuid.New()
	s.session = Session{ID: id, State: Busy, Files: files, StartedAt: now}
	s.mu.Unlock()

	logCtx := slog.With("session", id, "files", len(files), "url", s.url)
	logCtx.Info("Submitting batch")

	path, err := s.send(ctx, files)
	if err == nil {
		s.releaseSubmitted(files)
	}

	s.mu.Lock()
	s.session.FinishedAt = s.clock.Now()
	if err != nil {
		s.session.State = Failed
		s.session.Err = err
	} else {
		s.session.State = Succeeded
		s.session.ArtifactPath = path
	}
	s.mu.Unlock()

	if err != nil {
		logCtx.Error("Submission failed", "error", err)
		return s.Session(), err
	}
	logCtx.Info("Converted document saved", "path", path)
	return s.Session(), nil
}

func (s *Submitter) send(ctx context.Context, files []staging.StagedFile) (string, error) {
	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(WriteMultipart(mw, files))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, pr)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: %w", ErrTransport, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	path, err := s.saver.Save(s.artifactName, resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %w", ErrTransport, ErrDelivery, err)
	}
	return path, nil
}

// releaseSubmitted removes the submitted batch in one store operation. Files
// staged while the upload was in flight are kept.
func (s *Submitter) releaseSubmitted(submitted []staging.StagedFile) {
	ids := make([]uuid.UUID, len(submitted))
	for i, f := range submitted {
		ids[i] = f.ID
	}
	if n := s.store.RemoveIDs(ids...); n != len(ids) {
		slog.Debug("Some submitted files were already removed", "submitted", len(ids), "removed", n)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// WriteMultipart writes one FieldName part per file, in order, and closes mw.
func WriteMultipart(mw *multipart.Writer, files []staging.StagedFile) error {
	for i, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, quoteEscaper.Replace(f.Handle.Name())))
		contentType := f.Handle.ContentType()
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := mw.CreatePart(h)
		if err != nil {
			return fmt.Errorf("failed to create part %d: %w", i, err)
		}
		if err := copyHandle(part, f.Handle); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Handle.Name(), err)
		}
	}
	return mw.Close()
}

func copyHandle(w io.Writer, h staging.Handle) error {
	rc, err := h.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}
