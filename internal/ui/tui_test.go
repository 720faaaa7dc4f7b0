package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestAnalysisModel_ViewShowsProgress(t *testing.T) {
	// Given
	tracker := NewProgressTracker(nil)
	tracker.SetStage(StageAnalyzing, 8)
	tracker.Update(2, "https://go.dev/doc/effective_go")
	tracker.AddError(ErrorEvent{Err: "HTTP 403", IsWarn: true})
	m := newAnalysisModel(tracker, "")
	m.styles = NoColorStyles()

	// When
	view := m.View()

	// Then
	assert.Contains(t, view, "pagemind analysis")
	assert.Contains(t, view, "2 / 8 pages")
	assert.Contains(t, view, "25%")
	assert.Contains(t, view, "https://go.dev/doc/effective_go")
	assert.Contains(t, view, "1 restricted")
	assert.Contains(t, view, "q to detach")
}

func TestAnalysisModel_Lifecycle(t *testing.T) {
	m := newAnalysisModel(NewProgressTracker(nil), "title")
	m.styles = NoColorStyles()
	assert.NotNil(t, m.Init())

	// Window resizes widen the bar.
	_, _ = m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 100, m.bar.Width)

	// Completion quits with a summary.
	_, cmd := m.Update(completeMsg(CompletionStats{Processed: 3, Done: 2, Failed: 1, Duration: 75 * time.Second}))
	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Analysis complete")
	assert.Contains(t, view, "1m 15s")
	assert.Contains(t, view, "1 failed")
}

func TestAnalysisModel_QuitKey(t *testing.T) {
	m := newAnalysisModel(NewProgressTracker(nil), "")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Detached")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", formatDuration(5*time.Second))
	assert.Equal(t, "2m", formatDuration(2*time.Minute))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 1m", formatDuration(61*time.Minute))
}

func TestTruncateURL(t *testing.T) {
	assert.Equal(t, "https://a.b", truncateURL("https://a.b", 20))
	assert.Equal(t, "...efg", truncateURL("abcdefg", 6))
	assert.Equal(t, "...", truncateURL("abcdefg", 2))
}
