package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/output"
	"github.com/Aman-CERP/pagemind/internal/service"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background daemon",
		Long: `The daemon owns the analysis loop, watches your tab and bookmark
sources, and serves the HTTP API. CLI commands use it automatically
when it is running.

Commands:
  start   Start the daemon (runs in background by default)
  stop    Stop the running daemon
  status  Show whether the daemon is running

Examples:
  pagemind daemon start      # Start daemon in background
  pagemind daemon start -f   # Run in foreground (same as 'pagemind serve')
  pagemind daemon status     # Check if daemon is running
  pagemind daemon stop       # Stop the daemon`,
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())

	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	var (
		foreground bool
		opts       serveOptions
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the background daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if foreground {
				return runServe(cmd.Context(), cmd, opts)
			}
			return runDaemonStart(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (don't daemonize)")
	cmd.Flags().BoolVar(&opts.noHTTP, "no-http", false, "Do not start the HTTP API")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not watch sources for changes")
	cmd.Flags().BoolVar(&opts.poll, "poll", false, "Poll source files instead of using fsnotify")
	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Stop the running daemon.

Sends SIGTERM for a graceful shutdown, which lets an active analysis run
finish its current records, then SIGKILL if the process is still alive
after five seconds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStop(cmd)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runDaemonStart(cmd *cobra.Command, opts serveOptions) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := daemon.NewClient(daemon.ConfigFrom(cfg))
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	out.Status("", "Starting daemon in background...")

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := []string{"serve"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	if debugMode {
		args = append(args, "--debug")
	}
	if opts.noHTTP {
		args = append(args, "--no-http")
	}
	if opts.noWatch {
		args = append(args, "--no-watch")
	}
	if opts.poll {
		args = append(args, "--poll")
	}

	bgCmd := exec.Command(execPath, args...)
	bgCmd.Stdout = nil
	bgCmd.Stderr = nil
	bgCmd.Stdin = nil
	bgCmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := bgCmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Reap the child and catch an early exit.
	done := make(chan error, 1)
	go func() { done <- bgCmd.Wait() }()

	for range 30 {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w (see %s)", err, cfg.LogPath())
			}
			return fmt.Errorf("daemon process exited unexpectedly with code 0")
		default:
		}

		time.Sleep(100 * time.Millisecond)
		if client.IsRunning() {
			out.Successf("Daemon started (pid: %d)", bgCmd.Process.Pid)
			return nil
		}
	}

	return fmt.Errorf("daemon failed to start within timeout (see %s)", cfg.LogPath())
}

func runDaemonStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidFile := daemon.NewPIDFile(cfg.PIDPath())
	if !pidFile.IsRunning() {
		out.Status("", "Daemon is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}

	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for range 50 {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Successf("Daemon stopped (was pid: %d)", pid)
			return nil
		}
	}

	out.Status("", "Daemon not responding, sending SIGKILL...")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}

	out.Successf("Daemon killed")
	return nil
}

// daemonStatus is the JSON shape of 'daemon status'.
type daemonStatus struct {
	Running bool                  `json:"running"`
	PID     int                   `json:"pid,omitempty"`
	Socket  string                `json:"socket"`
	Report  *service.StatusReport `json:"report,omitempty"`
}

func runDaemonStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dcfg := daemon.ConfigFrom(cfg)
	client := daemon.NewClient(dcfg)
	status := daemonStatus{Socket: dcfg.SocketPath}

	if client.IsRunning() {
		rep, err := client.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}
		status.Running = true
		status.Report = &rep
		status.PID, _ = daemon.NewPIDFile(dcfg.PIDPath).Read()
	}

	if jsonOutput {
		return out.JSON(status)
	}
	if !status.Running {
		out.Status("", "Daemon is not running")
		out.Status("", "Run 'pagemind daemon start' to start it")
		return nil
	}

	out.Status("", "Daemon is running")
	out.KeyValues(
		output.KV{Key: "PID", Value: status.PID},
		output.KV{Key: "Socket", Value: status.Socket},
		output.KV{Key: "Status", Value: status.Report.Status},
		output.KV{Key: "Records", Value: status.Report.Stats.Total},
		output.KV{Key: "Pending", Value: status.Report.Stats.Pending},
	)
	return nil
}
