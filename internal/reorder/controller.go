// Package reorder turns a drag gesture over rendered previews into a single
// move in the staging store.
package reorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lehigh-university-libraries/img2pdf/internal/staging"
)

// Outside is the target passed to End when the gesture finishes away from
// any item.
const Outside = -1

var ErrNoGesture = errors.New("no drag in progress")

// Store is the part of the staging store the controller mutates.
type Store interface {
	Len() int
	Reorder(from, to int) error
}

// Marker shows or hides the "currently dragging" state on a rendered item.
type Marker interface {
	SetDragging(index int)
	ClearDragging()
}

// Controller holds the state of at most one drag gesture. It never tracks
// item positions itself; they are always re-derived from the store.
type Controller struct {
	store  Store
	marker Marker

	mu     sync.Mutex
	from   int
	active bool
}

// New returns a controller. marker may be nil.
func New(store Store, marker Marker) *Controller {
	return &Controller{store: store, marker: marker}
}

// Begin starts a drag on the item currently at index. A gesture already in
// progress is abandoned.
func (c *Controller) Begin(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()

	if n := c.store.Len(); index < 0 || index >= n {
		return fmt.Errorf("drag start %d of %d: %w", index, n, staging.ErrIndexOutOfRange)
	}
	c.from = index
	c.active = true
	if c.marker != nil {
		c.marker.SetDragging(index)
	}
	return nil
}

// End finishes the gesture over the item at target, or over nothing when
// target is Outside. It reports whether the store was changed. Drag state is
// reset on every path.
func (c *Controller) End(target int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return false, ErrNoGesture
	}
	from := c.from
	c.resetLocked()

	if target == Outside || target == from {
		return false, nil
	}
	if err := c.store.Reorder(from, target); err != nil {
		slog.Warn("Drag reorder rejected", "from", from, "to", target, "error", err)
		return false, err
	}
	slog.Debug("Reordered by drag", "from", from, "to", target)
	return true, nil
}

// Cancel abandons the current gesture, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Dragging reports the index the current gesture started from.
func (c *Controller) Dragging() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.from, c.active
}

func (c *Controller) resetLocked() {
	c.from = Outside
	c.active = false
	if c.marker != nil {
		c.marker.ClearDragging()
	}
}
