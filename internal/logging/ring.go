package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultRingSize is how many debug entries the daemon keeps.
const DefaultRingSize = 300

// ScopeKey is the attribute promoted to Entry.Scope.
const ScopeKey = "scope"

// Entry is one retained log record.
type Entry struct {
	TS      time.Time `json:"ts"`
	Level   string    `json:"level"`
	Scope   string    `json:"scope"`
	Message string    `json:"message"`
	Data    string    `json:"data,omitempty"`
}

// Ring is a fixed-size buffer of the most recent entries.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewRing creates a ring holding up to size entries.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{entries: make([]Entry, size)}
}

// Add appends e, evicting the oldest entry when full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns retained entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]Entry(nil), r.entries[:r.next]...)
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Clear drops all entries.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
	r.next = 0
	r.full = false
}

// RingHandler is a slog.Handler that records into a Ring.
// The "scope" attribute becomes Entry.Scope; other attributes are
// JSON-encoded into Entry.Data.
type RingHandler struct {
	ring   *Ring
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewRingHandler creates a handler writing to ring at or above level.
func NewRingHandler(ring *Ring, level slog.Leveler) *RingHandler {
	return &RingHandler{ring: ring, level: level}
}

// Enabled implements slog.Handler.
func (h *RingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *RingHandler) Handle(_ context.Context, r slog.Record) error {
	entry := Entry{
		TS:      r.Time,
		Level:   strings.ToLower(r.Level.String()),
		Message: r.Message,
	}

	data := make(map[string]any)
	collect := func(a slog.Attr) {
		if a.Key == ScopeKey {
			entry.Scope = a.Value.String()
			return
		}
		data[a.Key] = a.Value.Resolve().Any()
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(h.qualify(a))
		return true
	})

	if len(data) > 0 {
		if b, err := json.Marshal(data); err == nil {
			entry.Data = string(b)
		}
	}
	h.ring.Add(entry)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, h.qualify(a))
	}
	return &clone
}

// qualify prefixes the key with open groups; scope is only recognized at top level.
func (h *RingHandler) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) > 0 {
		a.Key = strings.Join(h.groups, ".") + "." + a.Key
	}
	return a
}

// WithGroup implements slog.Handler.
func (h *RingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}
