package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/httpapi"
	"github.com/Aman-CERP/pagemind/internal/output"
	"github.com/Aman-CERP/pagemind/internal/watcher"
)

// serveOptions selects the daemon's extra surfaces.
type serveOptions struct {
	httpAddr string
	noHTTP   bool
	noWatch  bool
	poll     bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		Long: `Run the daemon in this terminal: the Unix socket used by the CLI,
the HTTP API with /metrics, and the watcher that rescans server.watch
sources when they change. Stop it with Ctrl+C.

'pagemind daemon start' runs the same thing in the background.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.httpAddr, "http", "", "HTTP listen address (default server.http_addr)")
	cmd.Flags().BoolVar(&opts.noHTTP, "no-http", false, "Do not start the HTTP API")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not watch sources for changes")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll source files instead of using fsnotify")
	cmd.MarkFlagsMutuallyExclusive("http", "no-http")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())

	dcfg := daemon.ConfigFrom(cfg)
	if daemon.NewClient(dcfg).IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	a, err := newApp(cfg, appOptions{logToStderr: true})
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		d       *daemon.Daemon
		runners []daemon.Runner
	)
	addr := cfg.Server.HTTPAddr
	if opts.httpAddr != "" {
		addr = opts.httpAddr
	}
	if !opts.noHTTP && addr != "" {
		runners = append(runners, daemon.RunnerFunc(func(ctx context.Context) error {
			// d is assigned before Start runs any runner.
			return httpapi.New(addr, a.svc, d.Server(), a.metrics, a.logger).Run(ctx)
		}))
	}
	if !opts.noWatch {
		wopts := watcher.DefaultOptions()
		if cfg.Server.DebounceMS > 0 {
			wopts.DebounceWindow = time.Duration(cfg.Server.DebounceMS) * time.Millisecond
		}
		wopts.ForcePolling = opts.poll
		sw := watcher.NewSourceWatcher(a.svc, cfg.Server.Watch, wopts, a.logger)
		runners = append(runners, sw)
	}

	d, err = daemon.New(dcfg, a.svc, a.logger, runners...)
	if err != nil {
		return err
	}

	out.Status("", "Starting daemon in foreground...")
	out.Statusf("", "Socket: %s", dcfg.SocketPath)
	if !opts.noHTTP && addr != "" {
		out.Statusf("", "HTTP:   http://%s", addr)
	}
	out.Statusf("", "Logs:   %s", cfg.LogPath())
	out.Status("", "Press Ctrl+C to stop")
	out.Newline()

	a.logger.Info("serve_starting",
		slog.String("socket", dcfg.SocketPath),
		slog.String("http", addr),
		slog.Int("watch_sources", len(cfg.Server.Watch)))
	return d.Start(ctx)
}
