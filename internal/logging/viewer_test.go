package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2026-01-02T03:04:05.123Z","level":"INFO","msg":"analysis_run_started","pending":3,"workers":2}
{"time":"2026-01-02T03:04:06Z","level":"DEBUG","msg":"fetch_started","url":"https://example.com"}
not json at all
{"time":"2026-01-02T03:04:07Z","level":"WARN","msg":"record_failed","scope":"pipeline","error":"timeout"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagemind.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseLine(t *testing.T) {
	// Given: a slog JSON line with a scope and extra attributes
	line := `{"time":"2026-01-02T03:04:07Z","level":"WARN","msg":"record_failed","scope":"pipeline","error":"timeout"}`

	// When: parsing it
	e, ok := ParseLine(line)

	// Then: standard fields are lifted and the rest becomes Data
	require.True(t, ok)
	assert.Equal(t, "warn", e.Level)
	assert.Equal(t, "record_failed", e.Message)
	assert.Equal(t, "pipeline", e.Scope)
	assert.Equal(t, `{"error":"timeout"}`, e.Data)
	assert.Equal(t, 7, e.TS.Second())
}

func TestParseLine_RawAndBlank(t *testing.T) {
	e, ok := ParseLine("panic: boom")
	require.True(t, ok)
	assert.Equal(t, "panic: boom", e.Message)

	_, ok = ParseLine("   ")
	assert.False(t, ok)
}

func TestViewer_Tail(t *testing.T) {
	// Given: a log file with four lines
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	// When: tailing the last two lines
	entries, err := v.Tail(path, 2)

	// Then: only the raw line and the warning come back
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "not json at all", entries[0].Message)
	assert.Equal(t, "record_failed", entries[1].Message)
}

func TestViewer_LevelAndPatternFilters(t *testing.T) {
	// Given: a viewer showing info and above that mention a URL or a timeout
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{Level: "info", Pattern: regexp.MustCompile("timeout|example")}, &bytes.Buffer{})

	// When: tailing everything
	entries, err := v.Tail(path, 100)

	// Then: the debug fetch is dropped by level, the run start by pattern
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "record_failed", entries[0].Message)
}

func TestViewer_Filter(t *testing.T) {
	entries := []Entry{
		{Level: "debug", Message: "a"},
		{Level: "info", Message: "b"},
		{Level: "error", Message: "c"},
		{Level: "info", Message: "d"},
	}
	v := NewViewer(ViewerConfig{Level: "info"}, &bytes.Buffer{})

	got := v.Filter(entries, 2)

	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Message)
	assert.Equal(t, "d", got[1].Message)
}

func TestViewer_FormatEntry(t *testing.T) {
	// Given: a scoped entry and a plain viewer
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	e := Entry{
		TS:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local),
		Level:   "warn",
		Scope:   "pipeline",
		Message: "record_failed",
		Data:    `{"error":"timeout"}`,
	}

	// When/Then: it renders on one line without escapes
	assert.Equal(t, `03:04:05.000 WARN  [pipeline] record_failed {"error":"timeout"}`, v.FormatEntry(e))
}

func TestViewer_FormatEntry_Color(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	out := v.FormatEntry(Entry{TS: time.Now(), Level: "error", Message: "x"})
	assert.Contains(t, out, "\033[31m")
}

func TestViewer_Follow(t *testing.T) {
	// Given: an existing log that is followed from its end
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan Entry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, ch) }()
	time.Sleep(150 * time.Millisecond)

	// When: a new line is appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2026-01-02T03:05:00Z","level":"INFO","msg":"export_written"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new entry is delivered
	select {
	case e := <-ch:
		assert.Equal(t, "export_written", e.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no entry followed")
	}
	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, ch)
}

func TestViewer_Print(t *testing.T) {
	var buf bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &buf)
	v.Print([]Entry{{Message: "raw one"}, {Message: "raw two"}})
	assert.Equal(t, []string{"raw one", "raw two"}, strings.Split(strings.TrimSpace(buf.String()), "\n"))
}
