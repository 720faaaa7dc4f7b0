package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/logging"
	"github.com/Aman-CERP/pagemind/internal/output"
	"github.com/Aman-CERP/pagemind/internal/ui"
)

type logsOptions struct {
	follow     bool
	lines      int
	level      string
	filter     string
	noColor    bool
	clear      bool
	jsonOutput bool
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log entries",
		Long: `Show recent log entries. With a daemon running they come from its
in-memory debug buffer; otherwise from the log file. --follow tails the
log file, which the daemon and every local command write to.`,
		Example: `  pagemind logs                 # last 50 entries
  pagemind logs -f              # follow new entries
  pagemind logs --level warn    # warnings and errors only
  pagemind logs --filter fetch  # entries matching a regex
  pagemind logs --clear         # empty the daemon's buffer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of entries to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only entries matching this regex")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "Empty the daemon's debug buffer")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output entries as JSON")
	cmd.MarkFlagsMutuallyExclusive("follow", "clear")
	cmd.MarkFlagsMutuallyExclusive("follow", "json")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()),
	}, cmd.OutOrStdout())

	if opts.follow {
		return followLogs(ctx, cmd, viewer, cfg.LogPath())
	}

	client := daemon.NewClient(daemon.ConfigFrom(cfg))
	remote := client.IsRunning()

	if opts.clear {
		if !remote {
			out.Status("", "Daemon is not running; nothing to clear")
			return nil
		}
		if _, err := client.Call(ctx, daemon.MethodClearLogs, nil, nil); err != nil {
			return err
		}
		out.Successf("Debug buffer cleared")
		return nil
	}

	var entries []logging.Entry
	if remote {
		var all []logging.Entry
		if _, err := client.Call(ctx, daemon.MethodGetLogs, nil, &all); err != nil {
			return err
		}
		entries = viewer.Filter(all, opts.lines)
	} else {
		entries, err = viewer.Tail(cfg.LogPath(), opts.lines)
		if errors.Is(err, fs.ErrNotExist) {
			out.Status("", "No log file yet at "+cfg.LogPath())
			return nil
		}
		if err != nil {
			return err
		}
	}

	if opts.jsonOutput {
		if entries == nil {
			entries = []logging.Entry{}
		}
		return out.JSON(entries)
	}
	viewer.Print(entries)
	return nil
}

func followLogs(ctx context.Context, cmd *cobra.Command, viewer *logging.Viewer, path string) error {
	errOut := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(errOut, "Log file: %s\nFollowing... (Ctrl+C to stop)\n---\n", path)

	entries := make(chan logging.Entry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case e := <-entries:
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), viewer.FormatEntry(e))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			_, _ = fmt.Fprintln(errOut, "\n---\nStopped.")
			return nil
		}
	}
}
