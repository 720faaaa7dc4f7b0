package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Aman-CERP/pagemind/internal/store"
)

// List caps for the text export.
const (
	maxTopics = 50
	maxTags   = 100
	maxLinks  = 50
)

// WriteTXT writes the human and LLM readable export.
func WriteTXT(w io.Writer, rows []store.KnowledgeRow, exportedAt time.Time) (int, error) {
	done := Analyzed(rows)
	tw := &textWriter{w: bufio.NewWriter(w)}

	tw.line("PAGEMIND - KNOWLEDGE EXPORT")
	tw.linef("Exported at: %s", isoTime(exportedAt))
	tw.linef("Schema: %s", SchemaTXT)
	tw.linef("Total records: %d", len(rows))
	tw.linef("Analyzed records: %d", len(done))
	tw.line("")
	tw.line("This file is designed to be easy to read by both humans and LLMs.")
	tw.line("Each item contains the page URL, metadata, summaries, topics, tags, and extracted links.")
	tw.line("")
	tw.line("BEGIN RECORDS")
	tw.line("")

	for i, kr := range done {
		r, a := kr.Record, kr.Analysis
		tw.linef("## Record %d", i+1)
		tw.linef("URL: %s", r.URL)
		tw.linef("Title: %s", r.Title)
		tw.linef("Source: %s", sourceLabel(r))
		tw.linef("Status: %s", r.Status)
		tw.linef("Captured At (epoch ms): %d", r.CreatedAt.UnixMilli())
		tw.linef("Analyzed At: %s", isoTime(a.CreatedAt))
		tw.linef("HTTP Status: %s", optInt(a.HTTPStatus))
		tw.linef("Fetch Status: %s", a.FetchStatus)
		tw.linef("Model (chat): %s", a.ModelChat)
		tw.linef("Model (embedding): %s", a.ModelEmbedding)
		tw.linef("Prompt Version: %s", a.PromptVersion)
		tw.linef("Token Usage In: %s", optInt(a.TokensIn))
		tw.linef("Token Usage Out: %s", optInt(a.TokensOut))
		tw.line("")
		tw.section("Short Summary (EN):", orEmpty(a.SummaryShort))
		tw.section("Detailed Summary (EN):", orEmpty(firstNonEmpty(a.SummaryDetailed, a.SummaryShort)))
		tw.section("Why Relevant (EN):", orEmpty(a.WhyRelevant))
		tw.list("Topics:", a.Topics, maxTopics)
		tw.list("Tags:", a.Tags, maxTags)
		tw.list(fmt.Sprintf("Extracted Links (first %d):", maxLinks), a.Links, maxLinks)
		tw.line("-----")
		tw.line("")
	}

	tw.raw("END RECORDS")
	if tw.err == nil {
		tw.err = tw.w.Flush()
	}
	return len(done), tw.err
}

// textWriter keeps the first write error so callers check once.
type textWriter struct {
	w   *bufio.Writer
	err error
}

func (t *textWriter) raw(s string) {
	if t.err == nil {
		_, t.err = t.w.WriteString(s)
	}
}

func (t *textWriter) line(s string) {
	t.raw(s)
	t.raw("\n")
}

func (t *textWriter) linef(format string, args ...any) {
	t.line(fmt.Sprintf(format, args...))
}

func (t *textWriter) section(title, body string) {
	t.line(title)
	t.line(body)
	t.line("")
}

func (t *textWriter) list(title string, items []string, limit int) {
	t.line(title)
	if len(items) == 0 {
		t.line("- none")
	}
	for i, item := range items {
		if i == limit {
			break
		}
		t.line("- " + item)
	}
	t.line("")
}

func sourceLabel(r *store.Record) string {
	if r.SourceLabel != "" {
		return r.SourceLabel
	}
	return string(r.Source)
}

func optInt(v *int) string {
	if v == nil {
		return "unknown"
	}
	return strconv.Itoa(*v)
}

func orEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
