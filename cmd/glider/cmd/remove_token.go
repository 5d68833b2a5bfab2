package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var removeTokenYes bool

var removeTokenCmd = &cobra.Command{
	Use:   "remove-token <owner>",
	Short: "Remove an owner's stored credential",
	Long: `Remove the stored OAuth credential for a mailbox owner.

Cached emails and analyses are kept. Ingest for the owner fails until a new
token is imported with 'glider import-token'.

Examples:
  glider remove-token you@gmail.com
  glider remove-token you@gmail.com --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRemoveToken,
}

func init() {
	removeTokenCmd.Flags().BoolVarP(&removeTokenYes, "yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(removeTokenCmd)
}

func runRemoveToken(cmd *cobra.Command, args []string) error {
	owner := args[0]

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	creds, err := s.LoadCredential(cmd.Context(), owner)
	if err != nil {
		return err
	}
	if creds == nil {
		return fmt.Errorf("no credential stored for %s", owner)
	}

	out := cmd.OutOrStdout()
	if !removeTokenYes {
		fmt.Fprintf(out, "Remove the credential for %s? [y/N] ", owner)
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if err := s.DeleteCredential(cmd.Context(), owner); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	fmt.Fprintf(out, "Credential removed for %s\n", owner)
	if cfg.ScheduleFor(owner) != nil {
		fmt.Fprintf(out, "Note: %s is still scheduled in %s; scheduled runs will fail until a token is imported.\n",
			owner, cfg.ConfigFilePath())
	}
	return nil
}
