package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Aman-CERP/pagemind/internal/config"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// webkitEpochOffset is the number of microseconds between 1601-01-01 and
// the Unix epoch. Chrome stores bookmark dates relative to 1601.
const webkitEpochOffset = 11644473600 * 1_000_000

// Scanner converts source files into pending records.
type Scanner struct {
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// New creates a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		now:    time.Now,
		newID:  newRecordID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanFile reads src and returns its candidate records.
func (s *Scanner) ScanFile(src config.WatchSource) ([]*store.Record, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSourceInvalid,
			fmt.Sprintf("cannot open %s source %s", src.Kind, src.Path), err)
	}
	defer f.Close()

	switch src.Kind {
	case config.SourceTabs:
		return s.ParseTabs(f)
	case config.SourceChrome:
		return s.ParseChromeBookmarks(f, src.Folders)
	case config.SourceNetscape:
		return s.ParseNetscapeBookmarks(f, src.Folders)
	default:
		return nil, apperrors.New(apperrors.ErrCodeSourceInvalid,
			fmt.Sprintf("unknown source kind %q", src.Kind), nil)
	}
}

// Scan reads src and inserts records for URLs the store has not seen.
func (s *Scanner) Scan(ctx context.Context, st store.RecordStore, src config.WatchSource) (Result, error) {
	records, err := s.ScanFile(src)
	if err != nil {
		return Result{Kind: src.Kind, Path: src.Path}, err
	}
	res, err := Ingest(ctx, st, records)
	res.Kind, res.Path = src.Kind, src.Path
	if err != nil {
		return res, err
	}
	s.logger.Info("scan_complete",
		slog.String("kind", src.Kind),
		slog.String("path", src.Path),
		slog.Int("found", res.Found),
		slog.Int("inserted", res.Inserted))
	return res, nil
}

// Ingest stores records whose URL is new. Existing URLs keep their current
// status and are not requeued.
func Ingest(ctx context.Context, st store.RecordStore, records []*store.Record) (Result, error) {
	res := Result{Found: len(records)}
	if len(records) == 0 {
		return res, nil
	}
	n, err := st.InsertNew(ctx, records)
	if err != nil {
		return res, err
	}
	res.Inserted = n
	res.Existing = res.Found - n
	return res, nil
}

// ParseTabs reads a JSON array of {id, windowId, url, title}.
func (s *Scanner) ParseTabs(r io.Reader) ([]*store.Record, error) {
	var tabs []TabEntry
	if err := json.NewDecoder(r).Decode(&tabs); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSourceInvalid, "tab snapshot is not a JSON array of tabs", err)
	}

	b := s.newBatch()
	for _, t := range tabs {
		label := "Window unknown"
		if t.WindowID != nil {
			label = "Window " + strconv.Itoa(*t.WindowID)
		}
		b.add(store.SourceTab, idString(t.ID), label, t.URL, t.Title, nil)
	}
	return b.records, nil
}

// ParseChromeBookmarks reads Chrome's Bookmarks JSON file. When folders is
// non-empty only bookmarks under a folder whose id, name or path matches
// are returned.
func (s *Scanner) ParseChromeBookmarks(r io.Reader, folders []string) ([]*store.Record, error) {
	var file chromeFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSourceInvalid, "bookmarks file is not valid Chrome JSON", err)
	}
	if file.Roots == nil {
		return nil, apperrors.New(apperrors.ErrCodeSourceInvalid, "bookmarks file has no roots", nil)
	}

	b := s.newBatch()
	sel := newFolderSelector(folders)

	var visit func(n chromeNode, path []string, selected bool)
	visit = func(n chromeNode, path []string, selected bool) {
		if n.Type != "url" {
			next := path
			if n.Name != "" {
				next = append(append([]string(nil), path...), n.Name)
			}
			here := selected || sel.matches(n.ID, n.Name, next)
			for _, c := range n.Children {
				visit(c, next, here)
			}
			return
		}
		if !selected {
			return
		}
		b.add(store.SourceBookmark, n.ID, strings.Join(path, "/"), n.URL, n.Name, webkitTime(n.DateAdded))
	}

	seen := make(map[string]bool, len(file.Roots))
	for _, key := range chromeRootOrder {
		if n, ok := file.Roots[key]; ok {
			seen[key] = true
			visit(n, nil, sel.all())
		}
	}
	for key, n := range file.Roots {
		if !seen[key] {
			visit(n, nil, sel.all())
		}
	}
	return b.records, nil
}

// ParseNetscapeBookmarks reads the NETSCAPE-Bookmark-file-1 HTML format.
func (s *Scanner) ParseNetscapeBookmarks(r io.Reader, folders []string) ([]*store.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeSourceInvalid, "bookmarks file is not valid HTML", err)
	}

	b := s.newBatch()
	sel := newFolderSelector(folders)

	doc.Find("a[href]").Each(func(i int, a *goquery.Selection) {
		path := netscapePath(a)
		if !sel.all() && !sel.matchesAny(path) {
			return
		}
		var added *time.Time
		if v, ok := a.Attr("add_date"); ok {
			if sec, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && sec > 0 {
				t := time.Unix(sec, 0).UTC()
				added = &t
			}
		}
		id := a.AttrOr("id", strconv.Itoa(i))
		b.add(store.SourceBookmark, id, strings.Join(path, "/"), a.AttrOr("href", ""), a.Text(), added)
	})
	return b.records, nil
}

// netscapePath returns the folder names enclosing a, outermost first. Each
// folder is an H3 followed by the DL holding its entries.
func netscapePath(a *goquery.Selection) []string {
	var path []string
	a.ParentsFiltered("dl").Each(func(_ int, dl *goquery.Selection) {
		h3 := dl.PrevAllFiltered("h3").First()
		if h3.Length() == 0 {
			h3 = dl.PrevAllFiltered("dt").First().ChildrenFiltered("h3").First()
		}
		if name := strings.TrimSpace(h3.Text()); name != "" {
			path = append(path, name)
		}
	})
	// ParentsFiltered walks outward.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type batch struct {
	s       *Scanner
	now     time.Time
	seen    map[string]struct{}
	records []*store.Record
}

func (s *Scanner) newBatch() *batch {
	return &batch{s: s, now: s.now().UTC(), seen: map[string]struct{}{}}
}

// add keeps the first record per URL and drops non-http(s) URLs.
func (b *batch) add(src store.Source, sourceID, label, rawURL, title string, added *time.Time) {
	u := strings.TrimSpace(rawURL)
	if !IsSupportedURL(u) {
		return
	}
	if _, dup := b.seen[u]; dup {
		return
	}
	b.seen[u] = struct{}{}

	title = strings.TrimSpace(title)
	if title == "" {
		title = u
	}
	b.records = append(b.records, &store.Record{
		ID:          b.s.newID(),
		Source:      src,
		SourceID:    sourceID,
		SourceLabel: label,
		URL:         u,
		Title:       title,
		DateAdded:   added,
		Status:      store.StatusPending,
		CreatedAt:   b.now,
		UpdatedAt:   b.now,
	})
}

// IsSupportedURL reports whether u can be fetched by the pipeline.
func IsSupportedURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

type folderSelector map[string]struct{}

func newFolderSelector(folders []string) folderSelector {
	sel := folderSelector{}
	for _, f := range folders {
		if f = strings.Trim(strings.TrimSpace(f), "/"); f != "" {
			sel[f] = struct{}{}
		}
	}
	return sel
}

func (sel folderSelector) all() bool { return len(sel) == 0 }

func (sel folderSelector) matches(id, name string, path []string) bool {
	if sel.all() {
		return true
	}
	for _, k := range []string{id, name, strings.Join(path, "/")} {
		if _, ok := sel[k]; ok && k != "" {
			return true
		}
	}
	return false
}

// matchesAny reports whether any folder on path, or any prefix of it, is
// selected.
func (sel folderSelector) matchesAny(path []string) bool {
	for i := range path {
		if sel.matches("", path[i], path[:i+1]) {
			return true
		}
	}
	return false
}

func webkitTime(v string) *time.Time {
	us, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || us <= webkitEpochOffset {
		return nil
	}
	t := time.UnixMicro(us - webkitEpochOffset).UTC()
	return &t
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
