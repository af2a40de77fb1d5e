// Package render keeps a thumbnail view in step with the staging store.
//
// The view is rebuilt from scratch on every store change; positions shown to
// the user come only from snapshot order. Previews decode in the background
// and are applied by file ID, so a slow decode can never land on the wrong
// item or reorder the list.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/img2pdf/internal/preview"
	"github.com/lehigh-university-libraries/img2pdf/internal/staging"
	"golang.org/x/sync/errgroup"
)

const DefaultDecodeWorkers = 4

// Decoder produces a preview for a handle.
type Decoder interface {
	Decode(ctx context.Context, h staging.Handle) (*preview.Preview, error)
}

// Store is the part of the staging store the renderer depends on.
type Store interface {
	Snapshot() []staging.StagedFile
	Subscribe(fn staging.Subscriber) func()
	IndexOf(id uuid.UUID) (int, bool)
	Remove(index int) error
}

type Status int

const (
	Pending Status = iota
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Item is one rendered thumbnail.
type Item struct {
	ID          uuid.UUID
	Index       int
	Position    int
	Name        string
	ContentType string
	Size        int64
	Status      Status
	Preview     *preview.Preview
	Err         error
	Dragging    bool
}

// View is the full rendered list.
type View struct {
	Generation uint64
	Items      []Item
	Summary    string
}

func (v View) Empty() bool { return len(v.Items) == 0 }

// IDs returns item IDs in rendered order.
func (v View) IDs() []uuid.UUID {
	out := make([]uuid.UUID, len(v.Items))
	for i, it := range v.Items {
		out[i] = it.ID
	}
	return out
}

type decoded struct {
	preview *preview.Preview
	err     error
}

// Renderer subscribes to a store and maintains the current View.
type Renderer struct {
	store   Store
	decoder Decoder
	workers int

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	view        View
	cache       map[uuid.UUID]decoded
	inflight    map[uuid.UUID]bool
	dragging    uuid.UUID
	unsubscribe func()

	pending sync.WaitGroup
}

// New creates a renderer, renders the store's current contents and
// subscribes to future changes. Call Close to stop it.
func New(store Store, decoder Decoder, workers int) *Renderer {
	if workers <= 0 {
		workers = DefaultDecodeWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Renderer{
		store:    store,
		decoder:  decoder,
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
		cache:    make(map[uuid.UUID]decoded),
		inflight: make(map[uuid.UUID]bool),
	}
	r.Render(store.Snapshot())
	r.unsubscribe = store.Subscribe(r.Render)
	return r
}

// Close unsubscribes from the store and abandons outstanding decodes.
func (r *Renderer) Close() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	r.cancel()
	r.pending.Wait()
}

// Render discards the current view and rebuilds it from files.
func (r *Renderer) Render(files []staging.StagedFile) {
	r.mu.Lock()
	defer r.mu.Unlock()

	keep := make(map[uuid.UUID]bool, len(files))
	items := make([]Item, len(files))
	var todo []staging.StagedFile

	for i, f := range files {
		keep[f.ID] = true
		item := Item{
			ID:          f.ID,
			Index:       i,
			Position:    i + 1,
			Name:        f.Handle.Name(),
			ContentType: f.Handle.ContentType(),
			Size:        f.Handle.Size(),
			Dragging:    f.ID == r.dragging,
		}
		if d, ok := r.cache[f.ID]; ok {
			applyDecoded(&item, d)
		} else if !r.inflight[f.ID] {
			r.inflight[f.ID] = true
			todo = append(todo, f)
		}
		items[i] = item
	}

	for id := range r.cache {
		if !keep[id] {
			delete(r.cache, id)
		}
	}

	r.view = View{
		Generation: r.view.Generation + 1,
		Items:      items,
		Summary:    summary(len(items)),
	}

	if len(todo) > 0 {
		r.pending.Add(1)
		go r.decodeAll(todo)
	}
}

func summary(n int) string {
	if n == 0 {
		return "No files selected"
	}
	return fmt.Sprintf("%d image(s) selected", n)
}

func (r *Renderer) decodeAll(files []staging.StagedFile) {
	defer r.pending.Done()

	// Per-item failures are recorded on the item, never returned, so one bad
	// file cannot cancel the others.
	var g errgroup.Group
	g.SetLimit(r.workers)
	for _, f := range files {
		g.Go(func() error {
			p, err := r.decoder.Decode(r.ctx, f.Handle)
			if err != nil {
				slog.Debug("Preview decode failed", "file", f.Handle.Name(), "id", f.ID, "error", err)
			}
			r.apply(f.ID, decoded{preview: p, err: err})
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Renderer) apply(id uuid.UUID, d decoded) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
	if r.ctx.Err() != nil {
		return
	}

	for i := range r.view.Items {
		if r.view.Items[i].ID == id {
			r.cache[id] = d
			applyDecoded(&r.view.Items[i], d)
			return
		}
	}
	// The file was removed while decoding; nothing to apply to.
}

// ErrNoPreview marks an item whose decoder returned neither a preview nor an error.
var ErrNoPreview = errors.New("decoder returned no preview")

func applyDecoded(item *Item, d decoded) {
	if d.err == nil && d.preview == nil {
		d.err = ErrNoPreview
	}
	if d.err != nil {
		item.Status = Failed
		item.Err = d.err
		return
	}
	item.Status = Ready
	item.Preview = d.preview
}

// Wait blocks until every decode started so far has finished.
func (r *Renderer) Wait() {
	r.pending.Wait()
}

// View returns a copy of the current view.
func (r *Renderer) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.view
	v.Items = make([]Item, len(r.view.Items))
	copy(v.Items, r.view.Items)
	return v
}

// RemoveItem removes the item with the given ID from the store. The index is
// resolved at the moment of the call, not taken from a rendered item.
func (r *Renderer) RemoveItem(id uuid.UUID) error {
	idx, ok := r.store.IndexOf(id)
	if !ok {
		return fmt.Errorf("item %s is no longer staged: %w", id, staging.ErrIndexOutOfRange)
	}
	return r.store.Remove(idx)
}

// SetDragging marks the item at index as being dragged.
func (r *Renderer) SetDragging(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dragging = uuid.Nil
	for i := range r.view.Items {
		r.view.Items[i].Dragging = i == index
		if i == index {
			r.dragging = r.view.Items[i].ID
		}
	}
}

// ClearDragging removes the dragging marker from every item.
func (r *Renderer) ClearDragging() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dragging = uuid.Nil
	for i := range r.view.Items {
		r.view.Items[i].Dragging = false
	}
}
