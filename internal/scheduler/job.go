package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wesm/glider/internal/analysis"
	"github.com/wesm/glider/internal/sync"
)

// Ingester fetches new mail for an owner.
type Ingester interface {
	Ingest(ctx context.Context, owner string, opts sync.IngestOptions) (*sync.IngestResult, error)
}

// Analyzer analyzes an owner's pending mail.
type Analyzer interface {
	RunAnalysis(ctx context.Context, owner string) (*analysis.RunSummary, error)
}

// IngestAndAnalyze returns a SyncFunc that refreshes the owner's mailbox and
// then analyzes whatever is pending. An analysis run already in progress for
// the owner is not an error.
func IngestAndAnalyze(in Ingester, an Analyzer, logger *slog.Logger) SyncFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, owner string) error {
		res, err := in.Ingest(ctx, owner, sync.IngestOptions{Refresh: true})
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}

		summary, err := an.RunAnalysis(ctx, owner)
		if errors.Is(err, analysis.ErrAnalysisInProgress) {
			logger.Info("analysis already running, skipping", "owner", owner)
			return nil
		}
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}

		logger.Info("sync run finished",
			"owner", owner,
			"fetched", len(res.Emails),
			"analyzed", summary.AnalyzedCount,
			"failed", summary.FailedCount)
		return nil
	}
}
