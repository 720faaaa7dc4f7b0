// Package cmd provides the CLI commands for pagemind.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	apperrors "github.com/Aman-CERP/pagemind/internal/errors"
	"github.com/Aman-CERP/pagemind/internal/profiling"
	"github.com/Aman-CERP/pagemind/pkg/version"
)

// Global flags.
var (
	configPath string
	debugMode  bool
	profile    profiling.Options
)

// NewRootCmd creates the root command for the pagemind CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagemind",
		Short: "Turn saved tabs and bookmarks into a searchable knowledge base",
		Long: `pagemind imports browser tabs and bookmarks, fetches each page, and asks
Azure OpenAI for a structured summary and an embedding. You can then ask
questions answered from your own saved pages.

Commands talk to the daemon when it is running and work in-process
otherwise.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var session *profiling.Session
	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if !profile.Enabled() {
			return nil
		}
		var err error
		session, err = profiling.Start(profile)
		return err
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		if session == nil {
			return nil
		}
		return session.Stop()
	}
	cmd.SetVersionTemplate("pagemind version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/pagemind/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging, mirrored to stderr")
	cmd.PersistentFlags().StringVar(&profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		printError(os.Stderr, err)
	}
	return err
}

// printError writes err with its hint and code when it carries them.
func printError(w io.Writer, err error) {
	var werr *daemon.Error
	if errors.As(err, &werr) && werr.Details != nil {
		_, _ = fmt.Fprintf(w, "Error: %s\n", werr.Message)
		if werr.Details.Suggestion != "" {
			_, _ = fmt.Fprintf(w, "  Hint: %s\n", werr.Details.Suggestion)
		}
		_, _ = fmt.Fprintf(w, "  Code: %s\n", werr.Details.Code)
		return
	}
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		_, _ = fmt.Fprint(w, apperrors.FormatForCLI(err))
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
}
