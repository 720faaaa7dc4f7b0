package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pagemind/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the knowledge base to AI assistants over MCP stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
ask_knowledge, search_knowledge and knowledge_stats tools.

Stdout carries only protocol messages; logs go to the log file.`,
		Example: `  # Claude Desktop / Cursor entry
  {"command": "pagemind", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := mcp.NewServer(a.svc, a.logger)
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context(), "stdio")
		},
	}
}
