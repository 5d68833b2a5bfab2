package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/glider/internal/config"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <owner>",
	Short: "Analyze an owner's unanalyzed emails",
	Long: `Send an owner's cached but unanalyzed emails to the language model in
batches and store the summaries, priorities, and action items it returns.

Emails whose batch fails stay unanalyzed and are retried on the next run.

Examples:
  glider analyze you@gmail.com
  glider analyze you@gmail.com --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner := args[0]

		a, err := newApp(config.ForAnalysis)
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := a.runner.UnanalyzedCount(cmd.Context(), owner)
		if err != nil {
			return fmt.Errorf("count unanalyzed: %w", err)
		}
		logger.Info("starting analysis", "owner", owner, "pending", pending)

		summary, err := a.runner.RunAnalysis(cmd.Context(), owner)
		if err != nil {
			return fmt.Errorf("analyze %s: %w", owner, err)
		}

		out := cmd.OutOrStdout()
		if analyzeJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		fmt.Fprintf(out, "Analyzed: %d\n", summary.AnalyzedCount)
		fmt.Fprintf(out, "Failed:   %d\n", summary.FailedCount)
		if len(summary.FailedIDs) > 0 {
			fmt.Fprintf(out, "  %s\n", strings.Join(summary.FailedIDs, ", "))
		}
		if remaining := pending - summary.AnalyzedCount; remaining > 0 {
			fmt.Fprintf(out, "Remaining: %d (run again to continue)\n", remaining)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
