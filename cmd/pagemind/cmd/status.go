package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/output"
	"github.com/Aman-CERP/pagemind/internal/service"
	"github.com/Aman-CERP/pagemind/internal/store"
	"github.com/Aman-CERP/pagemind/internal/telemetry"
	"github.com/Aman-CERP/pagemind/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the runtime status and record counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := connect(appOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			var rep service.StatusReport
			if err := sess.call(cmd.Context(), daemon.MethodGetStatus, nil, &rep); err != nil {
				return err
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(rep)
			}
			if err := r.Render(rep); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n  Served by:    %s\n", sess.mode())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		queries    bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts, or question telemetry with --queries",
		Long: `Show how many records are in each status. With --queries, show the
question telemetry collected by the daemon since it started: volume,
latency buckets, repeated questions and the most common terms.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := connect(appOptions{})
			if err != nil {
				return err
			}
			defer sess.Close()

			out := output.New(cmd.OutOrStdout())
			if queries {
				var snap telemetry.QuerySnapshot
				if err := sess.call(cmd.Context(), daemon.MethodQueryStats, nil, &snap); err != nil {
					return err
				}
				if jsonOutput {
					return out.JSON(snap)
				}
				printQueryStats(out, snap, sess.remote)
				return nil
			}

			var st store.Stats
			if err := sess.call(cmd.Context(), daemon.MethodGetStats, nil, &st); err != nil {
				return err
			}
			if jsonOutput {
				return out.JSON(st)
			}
			out.Text("Records")
			out.KeyValues(
				output.KV{Key: "Total", Value: st.Total},
				output.KV{Key: "Pending", Value: st.Pending},
				output.KV{Key: "Processing", Value: st.Processing},
				output.KV{Key: "Done", Value: st.Done},
				output.KV{Key: "Failed", Value: st.Failed},
				output.KV{Key: "Restricted", Value: st.Restricted},
				output.KV{Key: "Analyses", Value: st.Analyses},
			)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&queries, "queries", false, "Show question telemetry instead of record counts")
	return cmd
}

func printQueryStats(out *output.Writer, snap telemetry.QuerySnapshot, remote bool) {
	if !remote {
		out.Warningf("No daemon is running; telemetry only covers this process.")
	}
	out.Text(fmt.Sprintf("Questions since %s", snap.Since.Local().Format(time.DateTime)))
	out.KeyValues(
		output.KV{Key: "Total", Value: snap.TotalQueries},
		output.KV{Key: "Ask", Value: snap.ByKind[telemetry.QueryAsk]},
		output.KV{Key: "Search", Value: snap.ByKind[telemetry.QuerySearch]},
		output.KV{Key: "Failed", Value: snap.Failed},
		output.KV{Key: "No match", Value: snap.NoMatchCount},
		output.KV{Key: "Repeat rate", Value: fmt.Sprintf("%.0f%%", snap.ExactRepeatRate*100)},
	)

	out.Newline()
	out.Text("Latency")
	buckets := []struct {
		key   telemetry.LatencyBucket
		label string
	}{
		{telemetry.BucketP500, "< 500ms"},
		{telemetry.BucketP1000, "500ms-1s"},
		{telemetry.BucketP3000, "1-3s"},
		{telemetry.BucketP10000, "3-10s"},
		{telemetry.BucketSlow, ">= 10s"},
	}
	rows := make([]output.KV, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, output.KV{Key: b.label, Value: snap.Latency[b.key]})
	}
	out.KeyValues(rows...)

	if len(snap.TopTerms) > 0 {
		terms := append([]telemetry.TermCount(nil), snap.TopTerms...)
		sort.SliceStable(terms, func(i, j int) bool { return terms[i].Count > terms[j].Count })
		out.Newline()
		out.Text("Top terms")
		rows = rows[:0]
		for _, t := range terms[:min(10, len(terms))] {
			rows = append(rows, output.KV{Key: t.Term, Value: t.Count})
		}
		out.KeyValues(rows...)
	}
	if len(snap.NoMatchQueries) > 0 {
		out.Newline()
		out.Text("Recent questions with no match")
		for _, q := range snap.NoMatchQueries {
			out.Status("", q)
		}
	}
}
