package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/glider/internal/api"
	"github.com/wesm/glider/internal/config"
	"github.com/wesm/glider/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run glider as a daemon with scheduled sync",
	Long: `Run glider as a long-running daemon.

The daemon runs in the foreground and provides:
  - HTTP API server on the configured port (default: 8080)
  - Scheduled ingest and analysis for each enabled owner
  - Prometheus metrics at /metrics

Configure schedules in config.toml:
  [[owners]]
  id = "you@gmail.com"
  schedule = "*/15 * * * *"   # every 15 minutes (cron format)
  enabled = true

Cron format: minute hour day-of-month month day-of-week
  Examples:
    */15 * * * *  = Every 15 minutes
    0 8,18 * * *  = 8 AM and 6 PM daily
    0 7 * * 1-5   = 7 AM on weekdays

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	scheduled := cfg.ScheduledOwners()

	purpose := config.ForServe
	if len(scheduled) > 0 {
		purpose |= config.ForIngest | config.ForAnalysis
	}
	a, err := newApp(purpose)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := api.Deps{
		Store:   a.store,
		Metrics: a.metrics.Handler(),
	}
	if a.syncer != nil {
		deps.Ingester = a.syncer
	} else {
		logger.Warn("no OAuth client configured; ingest endpoints disabled")
	}
	if a.runner != nil {
		deps.Analyzer = a.runner
	} else {
		logger.Warn("no analysis api_key configured; analysis endpoints disabled")
	}

	var sched *scheduler.Scheduler
	if len(scheduled) > 0 {
		sched = scheduler.New(scheduler.IngestAndAnalyze(a.syncer, a.runner, logger)).WithLogger(logger)
		count, errs := sched.AddOwnersFromConfig(cfg)
		for _, err := range errs {
			logger.Error("failed to schedule owner", "error", err)
		}
		if count == 0 {
			return fmt.Errorf("no owners could be scheduled")
		}
		sched.Start()
		deps.Scheduler = sched
	}

	apiServer := api.NewServer(cfg, deps, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "glider daemon started\n")
	fmt.Fprintf(out, "  API server: http://%s\n", apiServer.Addr())
	fmt.Fprintf(out, "  Scheduled owners: %d\n", len(scheduled))
	fmt.Fprintf(out, "  Data directory: %s\n", cfg.Data.DataDir)
	if sched != nil {
		fmt.Fprintln(out)
		for _, status := range sched.Status() {
			fmt.Fprintf(out, "  %s: next sync at %s\n", status.Owner, status.NextRun.Local().Format("2006-01-02 15:04:05"))
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	ctx := cmd.Context()
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		shutdown(apiServer, sched)
		return err
	}

	shutdown(apiServer, sched)
	return nil
}

// shutdown stops the API server and waits for running syncs.
func shutdown(apiServer *api.Server, sched *scheduler.Scheduler) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	if sched == nil {
		return
	}
	logger.Info("waiting for running syncs to complete")
	select {
	case <-sched.Stop().Done():
		logger.Info("shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timed out after 30 seconds")
	}
}
