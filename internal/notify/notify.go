// Package notify carries user-visible messages from the staging workflow to
// whatever front end is showing it.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notice is one message shown to the user.
type Notice struct {
	Level   Level
	Message string
}

// Notifier surfaces notices to the user. Implementations must not block.
type Notifier interface {
	Notify(n Notice)
}

// Writer prints notices to an io.Writer (typically the terminal) and logs
// them at debug level.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (n *Writer) Notify(notice Notice) {
	slog.Debug("User notice", "level", notice.Level.String(), "message", notice.Message)

	n.mu.Lock()
	defer n.mu.Unlock()
	prefix := ""
	switch notice.Level {
	case Warning:
		prefix = "⚠️  "
	case Error:
		prefix = "✗ "
	}
	fmt.Fprintf(n.w, "%s%s\n", prefix, notice.Message)
}

// Recorder keeps every notice in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Last returns the most recent notice, if any.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
