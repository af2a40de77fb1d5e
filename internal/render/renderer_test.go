package render

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/lehigh-university-libraries/img2pdf/internal/preview"
	"github.com/lehigh-university-libraries/img2pdf/internal/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDecoder returns a preview whose Format is the file name. Names listed
// in gates block until the gate is closed.
type fakeDecoder struct {
	mu    sync.Mutex
	calls map[string]int
	gates map[string]chan struct{}
	fail  map[string]bool
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		calls: map[string]int{},
		gates: map[string]chan struct{}{},
		fail:  map[string]bool{},
	}
}

func (d *fakeDecoder) gate(name string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{})
	d.gates[name] = ch
	return ch
}

func (d *fakeDecoder) Decode(ctx context.Context, h staging.Handle) (*preview.Preview, error) {
	d.mu.Lock()
	d.calls[h.Name()]++
	gate := d.gates[h.Name()]
	fail := d.fail[h.Name()]
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("cannot decode " + h.Name())
	}
	return &preview.Preview{Format: h.Name(), Width: 1, Height: 1}, nil
}

func (d *fakeDecoder) callCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[name]
}

func add(t *testing.T, s *staging.Store, names ...string) {
	t.Helper()
	hs := make([]staging.Handle, 0, len(names))
	for _, n := range names {
		hs = append(hs, staging.NewBytesHandle(n, "image/png", []byte(n)))
	}
	_, err := s.Add(hs...)
	require.NoError(t, err)
}

func viewNames(v View) []string {
	out := make([]string, len(v.Items))
	for i, it := range v.Items {
		out[i] = it.Name
	}
	return out
}

func assertMatchesStore(t *testing.T, r *Renderer, s *staging.Store) {
	t.Helper()
	v := r.View()
	snap := s.Snapshot()
	require.Len(t, v.Items, len(snap))
	for i, f := range snap {
		assert.Equal(t, f.ID, v.Items[i].ID)
		assert.Equal(t, i, v.Items[i].Index)
		assert.Equal(t, i+1, v.Items[i].Position)
	}
}

func TestEmptyStoreRendersNotice(t *testing.T) {
	s := staging.NewStore(0)
	r := New(s, newFakeDecoder(), 2)
	defer r.Close()

	v := r.View()
	assert.True(t, v.Empty())
	assert.Equal(t, "No files selected", v.Summary)

	add(t, s, "A", "B")
	assert.Equal(t, "2 image(s) selected", r.View().Summary)
}

func TestRenderedOrderFollowsStore(t *testing.T) {
	s := staging.NewStore(0)
	r := New(s, newFakeDecoder(), 3)
	defer r.Close()

	rng := rand.New(rand.NewSource(7))
	counter := 0
	for step := 0; step < 200; step++ {
		n := s.Len()
		switch op := rng.Intn(3); {
		case op == 0 || n == 0:
			counter++
			_, _ = s.Add(staging.NewBytesHandle(string(rune('a'+counter%26)), "image/png", nil))
		case op == 1:
			require.NoError(t, s.Remove(rng.Intn(n)))
		default:
			require.NoError(t, s.Reorder(rng.Intn(n), rng.Intn(n)))
		}
		assertMatchesStore(t, r, s)
	}
	r.Wait()
	assertMatchesStore(t, r, s)
}

func TestDecodeFailureIsIsolated(t *testing.T) {
	s := staging.NewStore(0)
	dec := newFakeDecoder()
	dec.fail["B"] = true
	r := New(s, dec, 2)
	defer r.Close()

	add(t, s, "A", "B", "C")
	r.Wait()

	v := r.View()
	require.Len(t, v.Items, 3)
	assert.Equal(t, Ready, v.Items[0].Status)
	assert.Equal(t, Failed, v.Items[1].Status)
	assert.Error(t, v.Items[1].Err)
	assert.Equal(t, Ready, v.Items[2].Status)
}

type emptyDecoder struct{}

func (emptyDecoder) Decode(context.Context, staging.Handle) (*preview.Preview, error) {
	return nil, nil
}

func TestMissingPreviewIsAFailure(t *testing.T) {
	s := staging.NewStore(0)
	r := New(s, emptyDecoder{}, 1)
	defer r.Close()

	add(t, s, "a.png")
	r.Wait()

	v := r.View()
	require.Len(t, v.Items, 1)
	assert.Equal(t, Failed, v.Items[0].Status)
	assert.ErrorIs(t, v.Items[0].Err, ErrNoPreview)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, v))
	assert.Contains(t, buf.String(), "unavailable: decoder returned no preview")
}

func TestOutOfOrderDecodeLandsOnOwnItem(t *testing.T) {
	s := staging.NewStore(0)
	dec := newFakeDecoder()
	gateA := dec.gate("A")
	gateB := dec.gate("B")
	r := New(s, dec, 4)
	defer r.Close()

	add(t, s, "A", "B", "C")
	require.NoError(t, s.Reorder(0, 2))

	close(gateB)
	close(gateA)
	r.Wait()

	v := r.View()
	assert.Equal(t, []string{"B", "C", "A"}, viewNames(v))
	for _, it := range v.Items {
		require.Equal(t, Ready, it.Status, it.Name)
		assert.Equal(t, it.Name, it.Preview.Format)
	}
}

func TestPreviewsAreNotDecodedTwice(t *testing.T) {
	s := staging.NewStore(0)
	dec := newFakeDecoder()
	r := New(s, dec, 2)
	defer r.Close()

	add(t, s, "A", "B")
	r.Wait()
	require.NoError(t, s.Reorder(1, 0))
	add(t, s, "C")
	r.Wait()

	assert.Equal(t, 1, dec.callCount("A"))
	assert.Equal(t, 1, dec.callCount("B"))
	assert.Equal(t, 1, dec.callCount("C"))
	assert.Equal(t, Ready, r.View().Items[0].Status)
}

func TestRemovedWhileDecoding(t *testing.T) {
	s := staging.NewStore(0)
	dec := newFakeDecoder()
	gate := dec.gate("A")
	r := New(s, dec, 2)
	defer r.Close()

	add(t, s, "A", "B")
	require.NoError(t, s.Remove(0))
	close(gate)
	r.Wait()

	assert.Equal(t, []string{"B"}, viewNames(r.View()))
}

func TestRemoveItemUsesCurrentIndex(t *testing.T) {
	s := staging.NewStore(0)
	r := New(s, newFakeDecoder(), 2)
	defer r.Close()

	add(t, s, "A", "B", "C")
	stale := r.View()
	target := stale.Items[0] // "A" rendered at index 0

	require.NoError(t, s.Reorder(0, 2))
	require.NoError(t, r.RemoveItem(target.ID))
	assert.Equal(t, []string{"B", "C"}, viewNames(r.View()))

	err := r.RemoveItem(target.ID)
	assert.ErrorIs(t, err, staging.ErrIndexOutOfRange)
	assert.Equal(t, []string{"B", "C"}, viewNames(r.View()))
}

func TestDraggingMarkerSurvivesRerender(t *testing.T) {
	s := staging.NewStore(0)
	r := New(s, newFakeDecoder(), 2)
	defer r.Close()

	add(t, s, "A", "B")
	r.SetDragging(1)
	add(t, s, "C")
	v := r.View()
	assert.False(t, v.Items[0].Dragging)
	assert.True(t, v.Items[1].Dragging)

	r.ClearDragging()
	for _, it := range r.View().Items {
		assert.False(t, it.Dragging)
	}
}

func TestWriteText(t *testing.T) {
	s := staging.NewStore(0)
	dec := newFakeDecoder()
	dec.fail["b.gif"] = true
	r := New(s, dec, 2)
	defer r.Close()

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r.View()))
	assert.Equal(t, "No files selected\n", buf.String())

	add(t, s, "a.png", "b.gif")
	r.Wait()
	buf.Reset()
	require.NoError(t, WriteText(&buf, r.View()))
	out := buf.String()
	assert.Contains(t, out, "a.png")
	assert.Contains(t, out, "unavailable: cannot decode b.gif")
	assert.Contains(t, out, "2 image(s) selected")
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in       int64
		expected string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, humanSize(tt.in))
	}
}
