package cmd

import (
	"fmt"

	"github.com/wesm/glider/internal/analysis"
	"github.com/wesm/glider/internal/config"
	"github.com/wesm/glider/internal/gmail"
	"github.com/wesm/glider/internal/metrics"
	"github.com/wesm/glider/internal/oauth"
	"github.com/wesm/glider/internal/ratelimit"
	"github.com/wesm/glider/internal/store"
	"github.com/wesm/glider/internal/sync"
)

// app is the wired component graph shared by the commands. syncer is nil
// without an OAuth client and runner is nil without a model API key.
type app struct {
	store   *store.Store
	metrics *metrics.Metrics
	syncer  *sync.Syncer
	runner  *analysis.Runner
}

// openStore opens the database and brings the schema up to date.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// newRefresher builds the OAuth refresher from a client secrets file or an
// inline client id and secret.
func newRefresher(c *config.Config) (oauth.Refresher, error) {
	if c.OAuth.ClientSecrets != "" {
		r, err := oauth.NewRefresherFromFile(c.OAuth.ClientSecrets)
		if err != nil {
			return nil, fmt.Errorf("load client secrets: %w%s", err, oauthSetupHint())
		}
		return r, nil
	}
	return oauth.NewRefresherFromClient(c.OAuth.ClientID, c.OAuth.ClientSecret), nil
}

// newApp validates the configuration for purpose and wires every component
// the configuration allows.
func newApp(purpose config.Purpose) (*app, error) {
	if err := cfg.Validate(purpose); err != nil {
		if purpose&config.ForIngest != 0 && !cfg.HasOAuthClient() {
			return nil, fmt.Errorf("%w\n%s", err, oauthSetupHint())
		}
		return nil, err
	}

	s, err := openStore()
	if err != nil {
		return nil, err
	}
	a := &app{store: s, metrics: metrics.New()}

	if cfg.HasOAuthClient() {
		if a.syncer, err = a.newSyncer(); err != nil {
			s.Close()
			return nil, err
		}
	}
	if cfg.Analysis.APIKey != "" {
		a.runner = a.newRunner()
	}
	return a, nil
}

func (a *app) newSyncer() (*sync.Syncer, error) {
	refresher, err := newRefresher(cfg)
	if err != nil {
		return nil, err
	}

	mailbox := ratelimit.New(ratelimit.Policy{
		MaxConcurrent:  cfg.Gmail.MaxConcurrent,
		TasksPerWindow: cfg.Gmail.TasksPerWindow,
		Window:         cfg.Gmail.Window,
	}, ratelimit.WithName("mailbox"))

	opts := sync.DefaultOptions()
	opts.Fetch.MaxResults = cfg.Gmail.MaxResults
	opts.Fetch.DaysBack = cfg.Gmail.DaysBack
	opts.ChunkSize = cfg.Gmail.FetchChunkSize

	factory := func(owner string, tokens gmail.TokenProvider) gmail.API {
		return gmail.NewClient(tokens,
			gmail.WithLogger(logger.With("owner", owner)),
			gmail.WithRequestTimeout(cfg.Gmail.RequestTimeout),
			gmail.WithObserver(a.metrics.ObserveRequest),
		)
	}

	return sync.New(a.store, refresher, mailbox, opts).
		WithLogger(logger).
		WithClientFactory(factory).
		WithFetchObserver(a.metrics.ObserveFetch).
		WithGuardOptions(
			oauth.WithSafetyMargin(cfg.OAuth.SafetyMargin),
			oauth.WithRefreshObserver(a.metrics.ObserveRefresh),
		), nil
}

func (a *app) newRunner() *analysis.Runner {
	model := analysis.NewAnthropicClient(cfg.Analysis.APIKey,
		analysis.WithModel(cfg.Analysis.Model),
		analysis.WithBaseURL(cfg.Analysis.BaseURL),
		analysis.WithClientLogger(logger),
	)

	sched := ratelimit.New(ratelimit.Policy{
		MaxConcurrent: cfg.Analysis.Concurrency,
	}, ratelimit.WithName("analysis"))

	pipeline := analysis.NewPipeline(model, sched,
		analysis.WithBatchSize(cfg.Analysis.BatchSize),
		analysis.WithTaskTimeout(cfg.Analysis.TaskTimeout),
		analysis.WithTemperature(cfg.Analysis.Temperature),
		analysis.WithMaxTokens(cfg.Analysis.MaxTokens, cfg.Analysis.SingleMaxTokens),
		analysis.WithPromptBudget(cfg.Analysis.BodyWordLimit, cfg.Analysis.PromptCharLimit),
		analysis.WithLogger(logger),
		analysis.WithMetrics(a.metrics),
	)

	return analysis.NewRunner(pipeline, a.store,
		analysis.WithModelVersion(model.ModelName()),
		analysis.WithRunLimit(cfg.Analysis.UnanalyzedLimit),
		analysis.WithRunnerLogger(logger),
	)
}

func (a *app) Close() error {
	return a.store.Close()
}
