// Package workbench wires the staging store, preview renderer, drag
// controller and submitter into the single surface a front end drives.
// Every user action is an explicit method call; rendering is derived from
// store state only.
package workbench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/lehigh-university-libraries/img2pdf/internal/images"
	"github.com/lehigh-university-libraries/img2pdf/internal/notify"
	"github.com/lehigh-university-libraries/img2pdf/internal/preview"
	"github.com/lehigh-university-libraries/img2pdf/internal/render"
	"github.com/lehigh-university-libraries/img2pdf/internal/reorder"
	"github.com/lehigh-university-libraries/img2pdf/internal/staging"
	"github.com/lehigh-university-libraries/img2pdf/internal/submit"
)

// Options configures a Workbench.
type Options struct {
	Endpoint      string
	DownloadDir   string
	ArtifactName  string
	MaxFiles      int
	PreviewSize   int
	DecodeWorkers int
	HTTPClient    *http.Client
	Fetcher       *images.Fetcher
	Decoder       render.Decoder
	Saver         submit.Saver
}

// Workbench is one staging session, the equivalent of an open upload page.
type Workbench struct {
	store     *staging.Store
	renderer  *render.Renderer
	drag      *reorder.Controller
	submitter *submit.Submitter
	fetcher   *images.Fetcher
	notifier  notify.Notifier
}

func New(opts Options, notifier notify.Notifier) *Workbench {
	store := staging.NewStore(opts.MaxFiles)

	decoder := opts.Decoder
	if decoder == nil {
		decoder = preview.NewCodec(opts.PreviewSize)
	}
	renderer := render.New(store, decoder, opts.DecodeWorkers)

	saver := opts.Saver
	if saver == nil {
		saver = submit.DirSaver{Dir: opts.DownloadDir}
	}
	var submitOpts []submit.Option
	if opts.HTTPClient != nil {
		submitOpts = append(submitOpts, submit.WithHTTPClient(opts.HTTPClient))
	}
	if opts.ArtifactName != "" {
		submitOpts = append(submitOpts, submit.WithArtifactName(opts.ArtifactName))
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = images.NewFetcher()
	}

	return &Workbench{
		store:     store,
		renderer:  renderer,
		drag:      reorder.New(store, renderer),
		submitter: submit.New(opts.Endpoint, store, saver, submitOpts...),
		fetcher:   fetcher,
		notifier:  notifier,
	}
}

func (w *Workbench) Close() { w.renderer.Close() }

func (w *Workbench) Store() *staging.Store { return w.store }

func (w *Workbench) Submitter() *submit.Submitter { return w.submitter }

// View returns the current rendered view.
func (w *Workbench) View() render.View { return w.renderer.View() }

// WaitPreviews blocks until outstanding preview decodes are done.
func (w *Workbench) WaitPreviews() { w.renderer.Wait() }

// Pick stages files chosen through a file picker.
func (w *Workbench) Pick(ctx context.Context, paths ...string) error {
	return w.add(ctx, paths)
}

// Drop stages a drag-and-drop payload: paths, file:// URIs or http(s) URLs
// separated by whitespace, optionally quoted.
func (w *Workbench) Drop(ctx context.Context, payload string) error {
	return w.add(ctx, SplitDropPayload(payload))
}

// add is the single entry point for both input paths, so capacity and order
// rules apply the same way.
func (w *Workbench) add(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return nil
	}

	capacity := w.store.Capacity()
	if w.store.Len()+len(sources) > capacity {
		err := fmt.Errorf("%w: max %d", staging.ErrCapacityExceeded, capacity)
		w.warn(fmt.Sprintf("Too many files! Max: %d", capacity))
		return err
	}

	handles := make([]staging.Handle, 0, len(sources))
	var failed []error
	for _, src := range sources {
		h, err := w.resolve(ctx, src)
		if err != nil {
			slog.Warn("Skipping file", "source", src, "error", err)
			w.notifier.Notify(notify.Notice{Level: notify.Error, Message: fmt.Sprintf("Could not add %s: %v", src, err)})
			failed = append(failed, err)
			continue
		}
		handles = append(handles, h)
	}

	if _, err := w.store.Add(handles...); err != nil {
		if errors.Is(err, staging.ErrCapacityExceeded) {
			w.warn(fmt.Sprintf("Too many files! Max: %d", capacity))
		}
		return err
	}
	if len(handles) > 0 {
		w.notifier.Notify(notify.Notice{Level: notify.Info, Message: w.renderer.View().Summary})
	}
	return errors.Join(failed...)
}

func (w *Workbench) resolve(ctx context.Context, src string) (staging.Handle, error) {
	if images.IsURL(src) {
		return w.fetcher.Fetch(ctx, src)
	}
	if strings.HasPrefix(src, "file://") {
		u, err := url.Parse(src)
		if err != nil {
			return nil, fmt.Errorf("invalid file URI: %w", err)
		}
		src = u.Path
	}
	return staging.NewFileHandle(src)
}

// Remove deletes the item shown at a 1-based position. The position is
// resolved to an item and then to its current store index at call time.
func (w *Workbench) Remove(position int) error {
	v := w.renderer.View()
	if position < 1 || position > len(v.Items) {
		err := fmt.Errorf("no item at position %d: %w", position, staging.ErrIndexOutOfRange)
		w.fail(err)
		return err
	}
	if err := w.renderer.RemoveItem(v.Items[position-1].ID); err != nil {
		w.fail(err)
		return err
	}
	return nil
}

// Move drags the item at 1-based position from onto position to.
func (w *Workbench) Move(from, to int) error {
	if err := w.drag.Begin(from - 1); err != nil {
		w.fail(err)
		return err
	}
	target := to - 1
	if to < 1 {
		target = reorder.Outside
	}
	if _, err := w.drag.End(target); err != nil {
		w.fail(err)
		return err
	}
	return nil
}

// Clear drops every staged file.
func (w *Workbench) Clear() {
	w.store.Clear()
}

// Submit converts the staged batch. Every outcome is reported through the
// notifier; the returned error is for callers that need to branch on it.
func (w *Workbench) Submit(ctx context.Context) (submit.Session, error) {
	sess, err := w.submitter.Submit(ctx)
	switch {
	case err == nil:
		w.notifier.Notify(notify.Notice{Level: notify.Info, Message: "Saved " + sess.ArtifactPath})
	case errors.Is(err, submit.ErrEmptySubmission):
		w.warn("Please select some images.")
	case errors.Is(err, submit.ErrBusy):
		w.notifier.Notify(notify.Notice{Level: notify.Info, Message: "A conversion is already in progress."})
	default:
		w.notifier.Notify(notify.Notice{Level: notify.Error, Message: "Something went wrong: " + err.Error()})
	}
	return sess, err
}

func (w *Workbench) warn(msg string) {
	w.notifier.Notify(notify.Notice{Level: notify.Warning, Message: msg})
}

func (w *Workbench) fail(err error) {
	w.notifier.Notify(notify.Notice{Level: notify.Error, Message: err.Error()})
}

// SplitDropPayload splits on whitespace, honouring single and double quotes.
func SplitDropPayload(payload string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		have  bool
	)
	for _, r := range payload {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			have = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if have {
				out = append(out, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteRune(r)
			have = true
		}
	}
	if have {
		out = append(out, cur.String())
	}
	return out
}
