package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_StatusLines(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"icon", func(w *Writer) { w.Status("🔍", "scanning tabs") }, "🔍 scanning tabs\n"},
		{"indented", func(w *Writer) { w.Status("", "detail") }, "   detail\n"},
		{"formatted", func(w *Writer) { w.Statusf("📥", "%d new", 3) }, "📥 3 new\n"},
		{"success", func(w *Writer) { w.Successf("exported %d rows", 2) }, "✅ exported 2 rows\n"},
		{"warning", func(w *Writer) { w.Warningf("missing %s", "apiKey") }, "⚠️  missing apiKey\n"},
		{"error", func(w *Writer) { w.Errorf("boom") }, "❌ boom\n"},
		{"text", func(w *Writer) { w.Text("answer") }, "answer\n"},
		{"text keeps newline", func(w *Writer) { w.Text("answer\n") }, "answer\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(New(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_KeyValuesAligned(t *testing.T) {
	// Given
	buf := &bytes.Buffer{}

	// When
	New(buf).KeyValues(KV{"Total", 5}, KV{"Restricted", 1})

	// Then
	assert.Equal(t, "  Total:       5\n  Restricted:  1\n", buf.String())
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, New(buf).JSON(map[string]int{"total": 2}))

	assert.Equal(t, "{\n  \"total\": 2\n}\n", buf.String())
}

func TestWriter_CodeAndNewline(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Code("a\nb")
	w.Newline()

	assert.Equal(t, "\n  a\n  b\n\n\n", buf.String())
}
