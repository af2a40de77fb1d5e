// Package staging holds the ordered collection of files waiting to be
// converted. The store is the only source of truth for page order: previews,
// position markers and the upload body are all derived from Snapshot.
package staging

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// DefaultCapacity is the maximum number of files in one batch.
const DefaultCapacity = 20

var (
	ErrCapacityExceeded = errors.New("too many files")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrNilHandle        = errors.New("nil file handle")
)

// StagedFile is one selected image awaiting conversion. Its position is its
// index in the store and is never stored on the value itself.
type StagedFile struct {
	ID     uuid.UUID
	Handle Handle
}

// Subscriber receives the post-mutation snapshot. It must not mutate the store.
type Subscriber func(files []StagedFile)

type subscription struct {
	id int
	fn Subscriber
}

type notification struct {
	files []StagedFile
	subs  []subscription
}

// Store is an ordered, capacity-bound sequence of StagedFile.
type Store struct {
	mu       sync.RWMutex
	files    []StagedFile
	capacity int
	subs     []subscription
	nextSub  int

	// pending is appended under mu in mutation order and drained under
	// notifyMu after mu is released.
	pending  []notification
	notifyMu sync.Mutex
}

// NewStore returns an empty store. A capacity <= 0 means DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

func (s *Store) Capacity() int { return s.capacity }

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Add appends handles in the given order. The whole call is rejected when
// the result would exceed capacity or any handle is nil, including a nil
// pointer wrapped in the interface.
func (s *Store) Add(handles ...Handle) ([]StagedFile, error) {
	for i, h := range handles {
		if isNil(h) {
			return s.Snapshot(), fmt.Errorf("handle %d: %w", i, ErrNilHandle)
		}
	}

	s.mu.Lock()
	if len(s.files)+len(handles) > s.capacity {
		n := len(s.files)
		s.mu.Unlock()
		return s.Snapshot(), fmt.Errorf("%w: %d staged + %d new exceeds max %d", ErrCapacityExceeded, n, len(handles), s.capacity)
	}
	if len(handles) == 0 {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	for _, h := range handles {
		s.files = append(s.files, StagedFile{ID: uuid.New(), Handle: h})
	}
	snap := s.commitLocked()
	s.drain()
	return snap, nil
}

// Remove deletes the file at index, shifting later files left.
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.files) {
		n := len(s.files)
		s.mu.Unlock()
		return fmt.Errorf("remove %d of %d: %w", index, n, ErrIndexOutOfRange)
	}
	s.files = append(s.files[:index:index], s.files[index+1:]...)
	s.commitLocked()
	s.drain()
	return nil
}

// RemoveIDs deletes every file whose ID is listed, keeping the relative order
// of the rest, and reports how many were removed. Subscribers are notified
// once, and only when something was removed.
func (s *Store) RemoveIDs(ids ...uuid.UUID) int {
	drop := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	kept := make([]StagedFile, 0, len(s.files))
	for _, f := range s.files {
		if !drop[f.ID] {
			kept = append(kept, f)
		}
	}
	removed := len(s.files) - len(kept)
	if removed == 0 {
		s.mu.Unlock()
		return 0
	}
	s.files = kept
	s.commitLocked()
	s.drain()
	return removed
}

// Reorder moves the file at from so that it ends up at to. Everything in
// between shifts by one; it is a move, not a swap.
func (s *Store) Reorder(from, to int) error {
	s.mu.Lock()
	n := len(s.files)
	if from < 0 || from >= n || to < 0 || to >= n {
		s.mu.Unlock()
		return fmt.Errorf("reorder %d -> %d of %d: %w", from, to, n, ErrIndexOutOfRange)
	}
	if from == to {
		s.mu.Unlock()
		return nil
	}

	moved := s.files[from]
	rest := make([]StagedFile, 0, n)
	rest = append(rest, s.files[:from]...)
	rest = append(rest, s.files[from+1:]...)

	files := make([]StagedFile, 0, n)
	files = append(files, rest[:to]...)
	files = append(files, moved)
	files = append(files, rest[to:]...)
	s.files = files

	s.commitLocked()
	s.drain()
	return nil
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	s.files = nil
	s.commitLocked()
	s.drain()
}

// Snapshot returns a copy of the current order.
func (s *Store) Snapshot() []StagedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// IndexOf reports the current position of the file with the given ID.
func (s *Store) IndexOf(id uuid.UUID) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, f := range s.files {
		if f.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) snapshotLocked() []StagedFile {
	out := make([]StagedFile, len(s.files))
	copy(out, s.files)
	return out
}

// commitLocked must be called with mu held. It queues the post-mutation
// snapshot for the current subscribers and releases mu.
func (s *Store) commitLocked() []StagedFile {
	snap := s.snapshotLocked()
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.pending = append(s.pending, notification{files: snap, subs: subs})
	s.mu.Unlock()
	return snap
}

// drain delivers queued notifications in order. It never holds mu while a
// subscriber runs, so subscribers may read the store. When drain returns,
// the caller's own notification has been delivered, by this goroutine or by
// the one that held notifyMu before it.
func (s *Store) drain() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.pending = nil
			s.mu.Unlock()
			return
		}
		n := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		for _, sub := range n.subs {
			view := make([]StagedFile, len(n.files))
			copy(view, n.files)
			sub.fn(view)
		}
	}
}

func isNil(h Handle) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
