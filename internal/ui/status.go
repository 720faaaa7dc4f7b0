package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/service"
)

// StatusRenderer prints a service status report.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor), now: time.Now}
}

// Render prints rep as aligned text.
func (r *StatusRenderer) Render(rep service.StatusReport) error {
	w := r.out
	_, _ = fmt.Fprintf(w, "%s\n\n", r.styles.Header.Render("pagemind status"))
	_, _ = fmt.Fprintf(w, "  Status:       %s\n", r.renderStatus(rep.Status))
	if rep.RunStarted != nil {
		_, _ = fmt.Fprintf(w, "  Run started:  %s\n", formatTime(*rep.RunStarted, r.now()))
	}
	if rep.Configured {
		_, _ = fmt.Fprintf(w, "  Settings:     %s\n", r.styles.Success.Render("complete"))
	} else {
		_, _ = fmt.Fprintf(w, "  Settings:     %s\n", r.styles.Warning.Render("missing "+strings.Join(rep.Missing, ", ")))
	}
	_, _ = fmt.Fprintln(w)

	s := rep.Stats
	_, _ = fmt.Fprintln(w, "  Records:")
	_, _ = fmt.Fprintf(w, "    Total:      %d\n", s.Total)
	_, _ = fmt.Fprintf(w, "    Pending:    %d\n", s.Pending)
	_, _ = fmt.Fprintf(w, "    Processing: %d\n", s.Processing)
	_, _ = fmt.Fprintf(w, "    Done:       %d\n", s.Done)
	_, _ = fmt.Fprintf(w, "    Failed:     %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "    Restricted: %d\n", s.Restricted)
	_, _ = fmt.Fprintf(w, "    Analyses:   %d\n", s.Analyses)

	if rep.Running {
		p := rep.Progress
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintf(w, "  Progress:     %d/%d (%.0f%%) with %d workers\n", p.Processed, p.Total, p.ProgressPct, p.Workers)
	}
	if last := rep.LastRun; last != nil {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintf(w, "  Last run:     %s, %d processed (%d done, %d failed, %d restricted) in %s\n",
			formatTime(last.FinishedAt, r.now()), last.Processed, last.Done, last.Failed, last.Restricted,
			formatDuration(last.Duration()))
	}
	if rep.Progress.LastError != "" {
		_, _ = fmt.Fprintf(w, "  Last error:   %s\n", r.styles.Error.Render(rep.Progress.LastError))
	}
	return nil
}

// RenderJSON prints rep as indented JSON.
func (r *StatusRenderer) RenderJSON(rep service.StatusReport) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func (r *StatusRenderer) renderStatus(s pipeline.RuntimeStatus) string {
	switch s {
	case pipeline.StatusIdle, pipeline.StatusAnalysisComplete:
		return r.styles.Success.Render(string(s))
	case pipeline.StatusAnalyzing, pipeline.StatusScanning:
		return r.styles.Active.Render(string(s))
	case pipeline.StatusWaitingForConfiguration, pipeline.StatusScanCompletePending, pipeline.StatusBusy:
		return r.styles.Warning.Render(string(s))
	default:
		return string(s)
	}
}

func formatTime(t, now time.Time) string {
	diff := now.Sub(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}
