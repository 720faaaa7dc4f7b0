package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/config"
	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/output"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/ui"
)

func newScanCmd() *cobra.Command {
	var (
		tabs      string
		chrome    string
		netscape  string
		folders   []string
		noAnalyze bool
		plain     bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Import tabs or bookmarks and analyze the new pages",
		Long: `Read a tab snapshot or a bookmark file, insert every URL not seen
before as a pending record, then analyze pending records.

With no source flag every source under server.watch in the config is
scanned. When a daemon is running the analysis continues there in the
background; otherwise progress is shown here until the run finishes.`,
		Example: `  pagemind scan --tabs ~/Downloads/tabs.json
  pagemind scan --chrome ~/.config/google-chrome/Default/Bookmarks --folder Reading
  pagemind scan --netscape bookmarks.html --no-analyze`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := daemon.ScanParams{Folders: folders, NoAnalyze: noAnalyze}
			switch {
			case tabs != "":
				params.Kind, params.Path = config.SourceTabs, tabs
			case chrome != "":
				params.Kind, params.Path = config.SourceChrome, chrome
			case netscape != "":
				params.Kind, params.Path = config.SourceNetscape, netscape
			}
			if params.Path != "" {
				abs, err := filepath.Abs(params.Path)
				if err != nil {
					return fmt.Errorf("invalid path: %w", err)
				}
				params.Path = abs
			}
			return runScan(cmd.Context(), cmd, params, plain)
		},
	}

	cmd.Flags().StringVar(&tabs, "tabs", "", "Tab snapshot JSON file")
	cmd.Flags().StringVar(&chrome, "chrome", "", "Chrome Bookmarks JSON file")
	cmd.Flags().StringVar(&netscape, "netscape", "", "Netscape bookmarks HTML export")
	cmd.Flags().StringSliceVar(&folders, "folder", nil, "Only import bookmarks under these folders (repeatable)")
	cmd.Flags().BoolVar(&noAnalyze, "no-analyze", false, "Insert records without starting analysis")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain progress output instead of the interactive panel")
	cmd.MarkFlagsMutuallyExclusive("tabs", "chrome", "netscape")

	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, params daemon.ScanParams, plain bool) error {
	out := output.New(cmd.OutOrStdout())
	reporter, renderer := newProgress(cmd, plain)

	sess, err := connect(appOptions{observers: []pipeline.ProgressObserver{reporter}})
	if err != nil {
		return err
	}
	defer sess.Close()

	// Locally the scan and the run are separate calls so progress renders
	// here instead of in a detached job.
	local := params
	if !sess.remote {
		local.NoAnalyze = true
	}

	var reply daemon.ScanReply
	if err := sess.call(ctx, daemon.MethodStartScan, local, &reply); err != nil {
		return err
	}
	printScans(out, reply.Scans)

	switch {
	case params.NoAnalyze:
		out.Status("", "Analysis skipped. Run 'pagemind analyze' when ready.")
		return nil
	case sess.remote:
		out.Successf("Analysis running in the daemon (job %s)", reply.JobID)
		out.Status("", "Follow it with 'pagemind status'.")
		return nil
	}
	return analyzeWithProgress(ctx, sess, out, renderer, false)
}

func printScans(out *output.Writer, scans []daemon.ScanSummary) {
	if len(scans) == 0 {
		out.Warningf("No sources to scan. Pass --tabs, --chrome or --netscape, or add server.watch to the config.")
		return
	}
	for _, s := range scans {
		label := s.Kind
		if s.Path != "" {
			label += " " + s.Path
		}
		out.Successf("Scanned %s: %d found, %d new, %d already known", label, s.Found, s.Inserted, s.Existing)
	}
}

// newProgress builds the renderer for a foreground run and the observer
// that feeds it.
func newProgress(cmd *cobra.Command, plain bool) (*ui.Reporter, ui.Renderer) {
	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: plain,
		NoColor:    ui.DetectNoColor(),
		Title:      "pagemind analysis",
	})
	return ui.NewReporter(renderer), renderer
}

// analyzeWithProgress runs analysis in this process and renders progress
// until it finishes.
func analyzeWithProgress(ctx context.Context, sess *session, out *output.Writer, renderer ui.Renderer, rerun bool) error {
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	var res pipeline.RunResult
	err := sess.call(ctx, daemon.MethodRunAnalysis, daemon.AnalysisParams{Wait: true, Rerun: rerun}, &res)
	_ = renderer.Stop()
	if err != nil {
		return err
	}
	printRunOutcome(out, res)
	return nil
}

func printRunOutcome(out *output.Writer, res pipeline.RunResult) {
	switch res.Status {
	case pipeline.StatusWaitingForConfiguration:
		out.Warningf("Azure OpenAI settings are incomplete. Run 'pagemind settings set' first.")
	case pipeline.StatusBusy:
		out.Warningf("Another process is analyzing. Try again when it finishes.")
	default:
		if res.Processed == 0 {
			out.Status("", "Nothing pending.")
		}
	}
}
