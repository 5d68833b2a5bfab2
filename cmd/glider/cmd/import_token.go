package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/glider/internal/oauth"
)

var (
	importTokenTo     string
	importTokenAPIKey string
)

var importTokenCmd = &cobra.Command{
	Use:   "import-token <owner> <token.json|->",
	Short: "Store an OAuth token as an owner's credential",
	Long: `Store an OAuth token document as the credential for a mailbox owner.

The document is the JSON written by golang.org/x/oauth2 (access_token,
refresh_token, expiry). It must carry a refresh_token. Pass - to read it
from stdin.

With --to the token is uploaded to a running glider server instead of the
local database, for headless deployments.

Examples:
  glider import-token you@gmail.com token.json
  cat token.json | glider import-token you@gmail.com -
  glider import-token you@gmail.com token.json --to http://nas:8080 --api-key KEY`,
	Args: cobra.ExactArgs(2),
	RunE: runImportToken,
}

func init() {
	importTokenCmd.Flags().StringVar(&importTokenTo, "to", "", "Remote glider URL to upload to")
	importTokenCmd.Flags().StringVar(&importTokenAPIKey, "api-key", "", "API key for the remote server")
	rootCmd.AddCommand(importTokenCmd)
}

func runImportToken(cmd *cobra.Command, args []string) error {
	owner, src := args[0], args[1]
	if !strings.Contains(owner, "@") {
		return fmt.Errorf("invalid owner %q: expected an email address", owner)
	}

	var data []byte
	var err error
	if src == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}

	creds, err := oauth.ParseToken(data)
	if err != nil {
		return err
	}

	if importTokenTo != "" {
		return uploadToken(cmd, owner, data)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SaveCredential(cmd.Context(), owner, *creds); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Credential stored for %s (access token expires %s)\n",
		owner, creds.Expiry.Local().Format(time.RFC3339))
	if cfg.ScheduleFor(owner) == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\nTo sync on a schedule, add to %s:\n", cfg.ConfigFilePath())
		fmt.Fprintf(cmd.OutOrStdout(), "  [[owners]]\n  id = %q\n  schedule = \"*/15 * * * *\"\n  enabled = true\n", owner)
	}
	return nil
}

func uploadToken(cmd *cobra.Command, owner string, data []byte) error {
	reqURL := strings.TrimSuffix(importTokenTo, "/") + "/api/v1/owners/" + url.PathEscape(owner) + "/token"

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if importTokenAPIKey != "" {
		req.Header.Set("X-API-Key", importTokenAPIKey)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Uploading token to %s...\n", importTokenTo)
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to remote server: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("upload failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Token uploaded for %s\n", owner)
	return nil
}
