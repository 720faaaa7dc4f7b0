package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/internal/store"
)

func TestStatusRenderer_Render(t *testing.T) {
	// Given
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := pipeline.RunResult{Processed: 4, Done: 3, Failed: 1, StartedAt: now.Add(-2 * time.Hour), FinishedAt: now.Add(-2*time.Hour + 90*time.Second)}
	rep := service.StatusReport{
		Status:   pipeline.StatusWaitingForConfiguration,
		Missing:  []string{"endpoint", "apiKey"},
		Stats:    store.Stats{Total: 5, Pending: 1, Done: 3, Failed: 1, Analyses: 3},
		LastRun:  &last,
		Progress: pipeline.ProgressSnapshot{LastError: "HTTP 500"},
	}
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)
	r.now = func() time.Time { return now }

	// When
	require.NoError(t, r.Render(rep))

	// Then
	out := buf.String()
	assert.Contains(t, out, "Status:       waiting_for_configuration")
	assert.Contains(t, out, "missing endpoint, apiKey")
	assert.Contains(t, out, "Total:      5")
	assert.Contains(t, out, "Analyses:   3")
	assert.Contains(t, out, "Last run:     1 hour ago, 4 processed (3 done, 1 failed, 0 restricted) in 1m 30s")
	assert.Contains(t, out, "Last error:   HTTP 500")
	assert.NotContains(t, out, "Progress:")
}

func TestStatusRenderer_RunningShowsProgress(t *testing.T) {
	started := time.Now().Add(-30 * time.Second)
	rep := service.StatusReport{
		Status:     pipeline.StatusAnalyzing,
		Running:    true,
		RunStarted: &started,
		Configured: true,
		Progress:   pipeline.ProgressSnapshot{Total: 4, Processed: 1, Workers: 2, ProgressPct: 25},
	}
	buf := &bytes.Buffer{}

	require.NoError(t, NewStatusRenderer(buf, true).Render(rep))

	assert.Contains(t, buf.String(), "Settings:     complete")
	assert.Contains(t, buf.String(), "Run started:  just now")
	assert.Contains(t, buf.String(), "Progress:     1/4 (25%) with 2 workers")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rep := service.StatusReport{Status: pipeline.StatusIdle, Stats: store.Stats{Total: 2}}

	require.NoError(t, NewStatusRenderer(buf, false).RenderJSON(rep))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "idle", got["status"])
	assert.Equal(t, float64(2), got["stats"].(map[string]any)["total"])
}

func TestFormatTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{30 * 24 * time.Hour, "2026-02-08 12:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTime(now.Add(-tt.ago), now))
	}
}
