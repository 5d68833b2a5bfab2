package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesm/glider/internal/config"
	"github.com/wesm/glider/internal/mime"
	"github.com/wesm/glider/internal/sync"
	"github.com/wesm/glider/internal/textutil"
)

var (
	ingestRefresh   bool
	ingestPageToken string
	ingestJSON      bool
	ingestAnalyze   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <owner>",
	Short: "Fetch recent mail for an owner",
	Long: `Fetch recent mail for a mailbox owner.

Without flags this prints the locally cached emails, fetching from Gmail
only when the cache is empty. --refresh always fetches the most recent page
and --page-token continues a previous listing.

Examples:
  glider ingest you@gmail.com
  glider ingest you@gmail.com --refresh --analyze
  glider ingest you@gmail.com --page-token TOKEN --json`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestRefresh, "refresh", false, "Bypass the cache and fetch from Gmail")
	ingestCmd.Flags().StringVar(&ingestPageToken, "page-token", "", "Continue a previous listing")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "Output as JSON")
	ingestCmd.Flags().BoolVar(&ingestAnalyze, "analyze", false, "Analyze pending emails after fetching")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	owner := args[0]

	purpose := config.ForIngest
	if ingestAnalyze {
		purpose |= config.ForAnalysis
	}
	a, err := newApp(purpose)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.syncer.Ingest(cmd.Context(), owner, sync.IngestOptions{
		Refresh:   ingestRefresh,
		PageToken: ingestPageToken,
	})
	if err != nil {
		return fmt.Errorf("ingest %s: %w", owner, err)
	}

	out := cmd.OutOrStdout()
	if ingestJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printEmails(out, res.Emails)
		source := "Gmail"
		if res.FromCache {
			source = "cache"
		}
		fmt.Fprintf(out, "\n%d email(s) from %s\n", len(res.Emails), source)
		if res.HasMore {
			fmt.Fprintf(out, "More available: --page-token %s\n", res.NextPageToken)
		}
	}

	if !ingestAnalyze {
		return nil
	}
	summary, err := a.runner.RunAnalysis(cmd.Context(), owner)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", owner, err)
	}
	if !ingestJSON {
		fmt.Fprintf(out, "Analyzed %d, failed %d\n", summary.AnalyzedCount, summary.FailedCount)
	}
	return nil
}

func printEmails(out io.Writer, emails []*mime.Email) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tFROM\tSUBJECT")
	for _, e := range emails {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			e.Date.Local().Format("2006-01-02 15:04"),
			textutil.TruncateRunes(e.SenderEmail, 32),
			textutil.TruncateRunes(e.Subject, 60),
		)
	}
	w.Flush()
}
