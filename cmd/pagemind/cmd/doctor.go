package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/config"
	"github.com/Aman-CERP/pagemind/internal/output"
	"github.com/Aman-CERP/pagemind/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and settings",
		Long: `Run diagnostics before a scan or a long analysis.

Checks:
  - Data directory exists and is writable
  - Disk space
  - File descriptor limit
  - Azure OpenAI settings are complete
  - Watched sources are readable
  - Embedding cache backend is reachable

Only the data directory, disk and settings checks are fatal.`,
		Example: `  pagemind doctor
  pagemind doctor --verbose
  pagemind doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			settings, err := config.NewSettingsFile(cfg.SettingsPath(), cfg.Azure).Settings(cmd.Context())
			if err != nil {
				return err
			}

			checker := preflight.New(
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()),
			)
			rep := checker.Run(cmd.Context(), preflight.TargetFrom(cfg, settings))

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(rep); err != nil {
					return err
				}
			} else {
				checker.Print(rep)
			}

			if rep.Failed() {
				return errors.New("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
