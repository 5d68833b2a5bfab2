package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesm/glider/internal/store"
	"github.com/wesm/glider/internal/textutil"
)

var (
	dashboardLimit int
	dashboardJSON  bool
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <owner>",
	Short: "Show recent emails with their analyses",
	Long: `Show an owner's most recent cached emails alongside the stored analysis
for each: sentiment, recommended action, and summary.

Examples:
  glider dashboard you@gmail.com
  glider dashboard you@gmail.com --limit 20 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner := args[0]
		if dashboardLimit < 1 {
			return fmt.Errorf("--limit must be positive")
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		dash, err := s.Dashboard(cmd.Context(), owner, dashboardLimit)
		if err != nil {
			return fmt.Errorf("load dashboard: %w", err)
		}

		out := cmd.OutOrStdout()
		if dashboardJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(dash)
		}
		printDashboard(out, dash)
		return nil
	},
}

func printDashboard(out io.Writer, dash *store.Dashboard) {
	if len(dash.Emails) == 0 {
		fmt.Fprintln(out, "No emails cached. Run 'glider ingest <owner>' first.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tFROM\tSUBJECT\tSENTIMENT\tACTION\tSUMMARY")
	for _, e := range dash.Emails {
		sentiment, action, summary := "-", "-", "(not analyzed)"
		if e.Analysis != nil {
			an := e.Analysis.Analysis
			sentiment = string(an.Sentiment)
			action = string(an.RecommendedAction)
			summary = textutil.TruncateRunes(textutil.FirstLine(an.Summary), 60)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Date.Local().Format("2006-01-02 15:04"),
			textutil.TruncateRunes(e.SenderEmail, 28),
			textutil.TruncateRunes(e.Subject, 40),
			sentiment, action, summary,
		)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d email(s), %d analyzed\n", dash.Total, dash.Analyzed)
}

func init() {
	dashboardCmd.Flags().IntVar(&dashboardLimit, "limit", 50, "Maximum emails to show")
	dashboardCmd.Flags().BoolVar(&dashboardJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(dashboardCmd)
}
