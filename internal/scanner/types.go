// Package scanner turns browser tab snapshots and bookmark exports into
// pending records. It reads three formats: a JSON tab list, Chrome's
// Bookmarks file and the Netscape bookmark HTML every browser can export.
package scanner

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TabEntry is one element of a tab snapshot file.
type TabEntry struct {
	ID       any    `json:"id"`
	WindowID *int   `json:"windowId"`
	URL      string `json:"url"`
	Title    string `json:"title"`
}

// chromeNode is a node of Chrome's Bookmarks JSON tree.
type chromeNode struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	URL       string       `json:"url"`
	DateAdded string       `json:"date_added"`
	Children  []chromeNode `json:"children"`
}

type chromeFile struct {
	Roots map[string]chromeNode `json:"roots"`
}

// chromeRootOrder is the order Chrome shows its roots in.
var chromeRootOrder = []string{"bookmark_bar", "other", "synced"}

// Result reports what one scan found and stored.
type Result struct {
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	Found    int    `json:"found"`
	Inserted int    `json:"inserted"`
	Existing int    `json:"existing"`
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// WithIDFunc sets the record ID generator.
func WithIDFunc(f func() string) Option {
	return func(s *Scanner) { s.newID = f }
}

// WithLogger sets the scanner logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

func newRecordID() string {
	return "rec_" + uuid.NewString()
}
