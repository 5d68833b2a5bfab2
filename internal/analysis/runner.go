package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wesm/glider/internal/mime"
)

// DefaultRunLimit is how many unanalyzed emails one run picks up.
const DefaultRunLimit = 50

// Repository is the persistence the runner needs.
type Repository interface {
	LoadUnanalyzed(ctx context.Context, owner string, limit int) ([]*mime.Email, error)
	CountUnanalyzed(ctx context.Context, owner string) (int, error)
	SaveAnalysisResults(ctx context.Context, owner string, results []Result, modelVersion string) error
}

// RunSummary reports the outcome of one analysis run.
type RunSummary struct {
	AnalyzedCount int      `json:"analyzed"`
	FailedCount   int      `json:"failed"`
	FailedIDs     []string `json:"failedEmailIds"`
}

// Runner analyzes an owner's pending emails and saves the successes.
// At most one run per owner is active at a time.
type Runner struct {
	pipeline     *Pipeline
	repo         Repository
	modelVersion string
	limit        int
	logger       *slog.Logger

	mu      sync.Mutex
	running map[string]bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithModelVersion records the model id alongside saved analyses.
func WithModelVersion(v string) RunnerOption {
	return func(r *Runner) { r.modelVersion = v }
}

// WithRunLimit overrides DefaultRunLimit.
func WithRunLimit(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a runner.
func NewRunner(p *Pipeline, repo Repository, opts ...RunnerOption) *Runner {
	r := &Runner{
		pipeline:     p,
		repo:         repo,
		modelVersion: DefaultModel,
		limit:        DefaultRunLimit,
		logger:       slog.Default(),
		running:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunAnalysis loads up to the run limit of unanalyzed emails, analyzes them
// and persists the successful results. Failed emails stay unanalyzed and
// are picked up again by a later run.
func (r *Runner) RunAnalysis(ctx context.Context, owner string) (*RunSummary, error) {
	if !r.begin(owner) {
		return nil, ErrAnalysisInProgress
	}
	defer r.end(owner)

	emails, err := r.repo.LoadUnanalyzed(ctx, owner, r.limit)
	if err != nil {
		return nil, fmt.Errorf("load unanalyzed emails: %w", err)
	}
	summary := &RunSummary{FailedIDs: []string{}}
	if len(emails) == 0 {
		r.logger.Info("no unanalyzed emails", "owner", owner)
		return summary, nil
	}

	results := r.pipeline.Analyze(ctx, emails)

	successes := make([]Result, 0, len(results))
	for _, res := range results {
		if res.Failed() {
			summary.FailedIDs = append(summary.FailedIDs, res.EmailID)
			continue
		}
		successes = append(successes, res)
	}
	summary.AnalyzedCount = len(successes)
	summary.FailedCount = len(summary.FailedIDs)

	if len(successes) > 0 {
		// Results already paid for are saved even if the run was cancelled.
		if err := r.repo.SaveAnalysisResults(context.WithoutCancel(ctx), owner, successes, r.modelVersion); err != nil {
			return nil, fmt.Errorf("save analysis results: %w", err)
		}
	}

	r.logger.Info("analysis run complete", "owner", owner,
		"analyzed", summary.AnalyzedCount, "failed", summary.FailedCount)
	return summary, nil
}

// UnanalyzedCount returns how many of the owner's emails await analysis.
func (r *Runner) UnanalyzedCount(ctx context.Context, owner string) (int, error) {
	return r.repo.CountUnanalyzed(ctx, owner)
}

// IsRunning reports whether a run for owner is active.
func (r *Runner) IsRunning(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[owner]
}

func (r *Runner) begin(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[owner] {
		return false
	}
	r.running[owner] = true
	return true
}

func (r *Runner) end(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, owner)
}
