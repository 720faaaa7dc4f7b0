// Package export writes analyzed records as JSON Lines for tooling and as a
// plain-text document meant to be pasted into an LLM conversation.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/store"
)

// Schema identifiers written into every export.
const (
	SchemaJSONL = "bookmark_knowledge.v1"
	SchemaTXT   = "tab_knowledge.v2-txt"
)

// Format selects an export encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatTXT   Format = "txt"
)

// isoMillis matches JavaScript's Date.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Result describes a written export.
type Result struct {
	Format   Format `json:"format"`
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename"`
	Rows     int    `json:"rows"`
}

// Analyzed returns the rows whose record is done and has an analysis.
func Analyzed(rows []store.KnowledgeRow) []store.KnowledgeRow {
	out := make([]store.KnowledgeRow, 0, len(rows))
	for _, r := range rows {
		if r.Record != nil && r.Analysis != nil && r.Record.Status == store.StatusDone {
			out = append(out, r)
		}
	}
	return out
}

// Filename returns a timestamped file name for format.
func Filename(format Format, at time.Time) string {
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(at.UTC().Format(isoMillis))
	switch format {
	case FormatTXT:
		return "tab-knowledge-export-" + stamp + ".txt"
	default:
		return "bookmark-knowledge-export-" + stamp + ".jsonl"
	}
}

// Write encodes rows to w in format and returns how many records it wrote.
func Write(w io.Writer, format Format, rows []store.KnowledgeRow, at time.Time) (int, error) {
	switch format {
	case FormatJSONL:
		return WriteJSONL(w, rows, at)
	case FormatTXT:
		return WriteTXT(w, rows, at)
	default:
		return 0, apperrors.New(apperrors.ErrCodeInvalidInput, fmt.Sprintf("unknown export format %q", format), nil)
	}
}

// ToDir writes an export into dir under a timestamped name.
func ToDir(dir string, format Format, rows []store.KnowledgeRow, at time.Time) (Result, error) {
	name := Filename(format, at)
	res := Result{Format: format, Filename: name, Path: filepath.Join(dir, name)}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, exportError("failed to create export directory", err)
	}
	f, err := os.Create(res.Path)
	if err != nil {
		return res, exportError("failed to create export file", err)
	}

	bw := bufio.NewWriter(f)
	n, err := Write(bw, format, rows, at)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(res.Path)
		return res, exportError("failed to write export", err)
	}
	res.Rows = n
	return res, nil
}

func exportError(msg string, err error) error {
	if apperrors.GetCode(err) != "" {
		return err
	}
	return apperrors.New(apperrors.ErrCodeExport, msg, err)
}

func isoTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}
