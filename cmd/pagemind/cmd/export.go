package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/daemon"
	"github.com/Aman-CERP/pagemind/internal/export"
	"github.com/Aman-CERP/pagemind/internal/output"
)

func newExportCmd() *cobra.Command {
	var (
		format     string
		dir        string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the knowledge base to a JSONL or text file",
		Long: `Export every analyzed page. JSONL writes one object per page for
tooling; txt writes a readable digest. Files are named with the export
time, for example pagemind-knowledge-2026-01-02T03-04-05-000Z.jsonl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			method, err := exportMethod(format)
			if err != nil {
				return err
			}

			absDir := ""
			if dir != "" {
				if absDir, err = filepath.Abs(dir); err != nil {
					return fmt.Errorf("invalid directory: %w", err)
				}
			}

			sess, err := connect(appOptions{exportDir: absDir})
			if err != nil {
				return err
			}
			defer sess.Close()

			var reply daemon.ExportReply
			if err := sess.call(cmd.Context(), method, nil, &reply); err != nil {
				return err
			}

			// The daemon writes to its own export directory.
			if sess.remote && absDir != "" && filepath.Dir(reply.Path) != absDir {
				dst := filepath.Join(absDir, reply.Filename)
				if err := copyFile(reply.Path, dst); err != nil {
					return err
				}
				reply.Path = dst
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(reply)
			}
			out.Successf("Exported %d pages to %s", reply.Rows, reply.Path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatJSONL), "Export format: jsonl or txt")
	cmd.Flags().StringVar(&dir, "dir", "", "Output directory (default <data_dir>/exports)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func exportMethod(format string) (daemon.Method, error) {
	switch export.Format(format) {
	case export.FormatJSONL:
		return daemon.MethodExportJSONL, nil
	case export.FormatTXT:
		return daemon.MethodExportTXT, nil
	default:
		return "", fmt.Errorf("unknown export format %q (use jsonl or txt)", format)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy export: %w", err)
	}
	return out.Close()
}
