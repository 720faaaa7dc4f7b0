package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/store"
)

var exportedAt = time.Date(2026, 2, 3, 4, 5, 6, 789_000_000, time.UTC)

func intPtr(v int) *int { return &v }

func sampleRows() []store.KnowledgeRow {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	added := time.UnixMilli(1_700_000_000_000).UTC()
	done := &store.Record{
		ID: "rec_1", Source: store.SourceBookmark, SourceID: "42", SourceLabel: "Bookmarks bar/Go",
		URL: "https://go.dev", Title: "Go", DateAdded: &added,
		Status: store.StatusDone, CreatedAt: created, UpdatedAt: created,
	}
	analysis := &store.Analysis{
		ID: "an_1", RecordID: "rec_1", PageTitle: "The Go Programming Language",
		FinalURL: "https://go.dev/", HTTPStatus: intPtr(200), FetchStatus: store.FetchOK,
		ContentHash: "sha256:abc", SummaryShort: "Go home page", SummaryDetailed: "",
		WhyRelevant: "language docs", Tags: []string{"go", "golang"}, Topics: nil,
		Links: []string{"https://go.dev/doc"}, Embedding: []float32{0.5, -0.25},
		ModelChat: "gpt-4o-mini", ModelEmbedding: "text-embedding-3-small",
		PromptVersion: "summary_v1", TokensIn: intPtr(100),
		AnalysisVersion: 1, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	failedMsg := "HTTP 500 from https://bad.example"
	failed := &store.Record{
		ID: "rec_2", Source: store.SourceTab, URL: "https://bad.example", Title: "bad",
		Status: store.StatusFailed, LastError: &failedMsg, CreatedAt: created, UpdatedAt: created,
	}
	return []store.KnowledgeRow{
		{Record: done, Analysis: analysis},
		{Record: failed},
	}
}

func TestWriteJSONL(t *testing.T) {
	// Given: one analyzed and one failed record
	var buf bytes.Buffer

	// When
	n, err := WriteJSONL(&buf, sampleRows(), exportedAt)

	// Then: one line with both blocks
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, SchemaJSONL, got["schema_version"])
	assert.Equal(t, "2026-02-03T04:05:06.789Z", got["exported_at"])

	rec := got["record"].(map[string]any)
	assert.Equal(t, "rec_1", rec["id"])
	assert.Equal(t, "bookmark", rec["source"])
	assert.Equal(t, "42", rec["bookmark_id"])
	assert.Equal(t, "Bookmarks bar/Go", rec["folder_path"])
	assert.NotContains(t, rec, "source_id")
	assert.NotContains(t, rec, "source_label")
	assert.Equal(t, float64(1_700_000_000_000), rec["date_added"])

	an := got["analysis"].(map[string]any)
	assert.Equal(t, "Go home page", an["summary_short_en"])
	assert.Equal(t, "language docs", an["why_relevant_en"])
	assert.Equal(t, float64(200), an["http_status"])
	assert.Equal(t, "sha256:abc", an["content_hash"])
	assert.Equal(t, []any{}, an["topics"])
	assert.Equal(t, []any{0.5, -0.25}, an["embedding"])
	assert.Nil(t, an["token_usage_out"])
	assert.Equal(t, "2026-01-02T03:04:05.000Z", an["analyzed_at"])
}

func TestWriteJSONL_NoAnalyzedRows(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteJSONL(&buf, sampleRows()[1:], exportedAt)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, buf.String())
}

func TestWriteTXT(t *testing.T) {
	var buf bytes.Buffer

	n, err := WriteTXT(&buf, sampleRows(), exportedAt)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "PAGEMIND - KNOWLEDGE EXPORT\nExported at: 2026-02-03T04:05:06.789Z\n"))
	assert.Contains(t, out, "Schema: tab_knowledge.v2-txt\n")
	assert.Contains(t, out, "Total records: 2\nAnalyzed records: 1\n")
	assert.Contains(t, out, "BEGIN RECORDS\n\n## Record 1\nURL: https://go.dev\nTitle: Go\nSource: Bookmarks bar/Go\nStatus: done\n")
	assert.Contains(t, out, "HTTP Status: 200\n")
	assert.Contains(t, out, "Token Usage In: 100\nToken Usage Out: unknown\n")
	assert.Contains(t, out, "Detailed Summary (EN):\nGo home page\n", "detailed falls back to short")
	assert.Contains(t, out, "Topics:\n- none\n")
	assert.Contains(t, out, "Tags:\n- go\n- golang\n")
	assert.Contains(t, out, "Extracted Links (first 50):\n- https://go.dev/doc\n")
	assert.True(t, strings.HasSuffix(out, "-----\n\nEND RECORDS"))
	assert.NotContains(t, out, "bad.example")
}

func TestWriteTXT_CapsLists(t *testing.T) {
	rows := sampleRows()[:1]
	links := make([]string, 80)
	for i := range links {
		links[i] = "https://l/" + string(rune('a'+i%26))
	}
	rows[0].Analysis.Links = links

	var buf bytes.Buffer
	_, err := WriteTXT(&buf, rows, exportedAt)
	require.NoError(t, err)

	section := buf.String()[strings.Index(buf.String(), "Extracted Links"):]
	count := 0
	sc := bufio.NewScanner(strings.NewReader(section))
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "- https://l/") {
			count++
		}
	}
	assert.Equal(t, 50, count)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "bookmark-knowledge-export-2026-02-03T04-05-06-789Z.jsonl", Filename(FormatJSONL, exportedAt))
	assert.Equal(t, "tab-knowledge-export-2026-02-03T04-05-06-789Z.txt", Filename(FormatTXT, exportedAt))
}

func TestToDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")

	res, err := ToDir(dir, FormatJSONL, sampleRows(), exportedAt)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, filepath.Join(dir, Filename(FormatJSONL, exportedAt)), res.Path)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"schema_version":"bookmark_knowledge.v1"`)
}

func TestWrite_UnknownFormat(t *testing.T) {
	_, err := Write(&bytes.Buffer{}, Format("xml"), nil, exportedAt)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

	_, err = ToDir(t.TempDir(), Format("xml"), nil, exportedAt)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
}
