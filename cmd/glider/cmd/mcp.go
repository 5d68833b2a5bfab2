package cmd

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/wesm/glider/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets Claude Desktop (or any MCP client) ingest and triage mail with
the ingest_emails, run_analysis, get_dashboard, and analysis_status tools.
Tools whose configuration is missing return an error when called.

Add to Claude Desktop config:
  {
    "mcpServers": {
      "glider": {
        "command": "glider",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(0)
		if err != nil {
			return err
		}
		defer a.Close()

		var in mcpserver.Ingester
		if a.syncer != nil {
			in = a.syncer
		}
		var an mcpserver.Analyzer
		if a.runner != nil {
			an = a.runner
		}

		return mcpserver.Serve(cmd.Context(), in, an, a.store, Version)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
