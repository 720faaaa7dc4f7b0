package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/output"
	"github.com/Aman-CERP/pagemind/internal/pipeline"
	"github.com/Aman-CERP/pagemind/internal/service"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		rerun bool
		wait  bool
		plain bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fetch and summarize pending records",
		Long: `Run the analysis loop over every pending record. A run already in
progress is joined rather than duplicated; --rerun waits for it and then
starts a fresh run so records added meanwhile are picked up.

With a daemon running the run is started there and this command returns
its job id, unless --wait is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())
			reporter, renderer := newProgress(cmd, plain)

			sess, err := connect(appOptions{observers: []pipeline.ProgressObserver{reporter}})
			if err != nil {
				return err
			}
			defer sess.Close()

			if !sess.remote {
				return analyzeWithProgress(ctx, sess, out, renderer, rerun)
			}

			if !wait && !rerun {
				var job service.Job
				if err := sess.call(ctx, daemon.MethodRunAnalysis, daemon.AnalysisParams{}, &job); err != nil {
					return err
				}
				out.Successf("Analysis running in the daemon (job %s)", job.ID)
				out.Status("", "Follow it with 'pagemind status'.")
				return nil
			}

			out.Status("⏳", "Waiting for the daemon's analysis run...")
			var res pipeline.RunResult
			if err := sess.call(ctx, daemon.MethodRunAnalysis, daemon.AnalysisParams{Wait: true, Rerun: rerun}, &res); err != nil {
				return err
			}
			out.Successf("%d processed (%d done, %d failed, %d restricted) in %s",
				res.Processed, res.Done, res.Failed, res.Restricted, res.Duration().Round(time.Millisecond))
			printRunOutcome(out, res)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rerun, "rerun", false, "Wait for an active run, then start a new one")
	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the daemon's run finishes")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain progress output instead of the interactive panel")

	return cmd
}
