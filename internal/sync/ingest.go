package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wesm/glider/internal/gmail"
	"github.com/wesm/glider/internal/mime"
	"github.com/wesm/glider/internal/oauth"
	"github.com/wesm/glider/internal/ratelimit"
)

// Store is the persistence the Syncer needs.
type Store interface {
	oauth.CredentialStore
	LoadCachedEmails(ctx context.Context, owner string, limit int) ([]*mime.Email, error)
	SaveEmails(ctx context.Context, owner string, emails []*mime.Email) error
}

// ClientFactory builds a mailbox API for one owner. tokens must be consulted
// before every request.
type ClientFactory func(owner string, tokens gmail.TokenProvider) gmail.API

// IngestOptions controls a single Ingest call.
type IngestOptions struct {
	// Refresh bypasses the cache.
	Refresh bool
	// PageToken continues a previous listing and also bypasses the cache.
	PageToken string
}

// IngestResult is the outcome of Ingest.
type IngestResult struct {
	Emails        []*mime.Email `json:"emails"`
	HasMore       bool          `json:"hasMore"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
	FromCache     bool          `json:"fromCache"`
}

// Syncer ingests mail for owners whose credentials live in the store.
type Syncer struct {
	store     Store
	refresher oauth.Refresher
	sched     *ratelimit.Scheduler
	logger    *slog.Logger
	opts      *Options

	newClient ClientFactory
	guardOpts []oauth.GuardOption
	refreshes *singleflight.Group
	observe   FetchObserver
	now       func() time.Time
}

// New creates a new Syncer. Mailbox clients default to the REST client.
func New(store Store, refresher oauth.Refresher, sched *ratelimit.Scheduler, opts *Options) *Syncer {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.CacheLimit <= 0 {
		opts.CacheLimit = DefaultOptions().CacheLimit
	}

	s := &Syncer{
		store:     store,
		refresher: refresher,
		sched:     sched,
		logger:    slog.Default(),
		opts:      opts,
		refreshes: &singleflight.Group{},
		observe:   func(int, int) {},
		now:       time.Now,
	}
	s.newClient = func(_ string, tokens gmail.TokenProvider) gmail.API {
		return gmail.NewClient(tokens, gmail.WithLogger(s.logger))
	}
	return s
}

// WithLogger sets the logger for the syncer.
func (s *Syncer) WithLogger(logger *slog.Logger) *Syncer {
	s.logger = logger
	return s
}

// WithClientFactory overrides how mailbox clients are built.
func (s *Syncer) WithClientFactory(f ClientFactory) *Syncer {
	s.newClient = f
	return s
}

// WithGuardOptions adds options applied to every credential guard the
// syncer creates.
func (s *Syncer) WithGuardOptions(opts ...oauth.GuardOption) *Syncer {
	s.guardOpts = append(s.guardOpts, opts...)
	return s
}

// WithFetchObserver registers a callback for fetch counts.
func (s *Syncer) WithFetchObserver(fn FetchObserver) *Syncer {
	s.observe = fn
	return s
}

// WithClock sets the clock used to build listing queries.
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// Ingest returns recent mail for owner. Without Refresh or a PageToken a
// non-empty cache is returned as is; otherwise a page is fetched from the
// mailbox and saved.
func (s *Syncer) Ingest(ctx context.Context, owner string, opts IngestOptions) (*IngestResult, error) {
	if !opts.Refresh && opts.PageToken == "" {
		cached, err := s.store.LoadCachedEmails(ctx, owner, s.opts.CacheLimit)
		if err != nil {
			return nil, fmt.Errorf("load cached emails: %w", err)
		}
		if len(cached) > 0 {
			return &IngestResult{Emails: cached, FromCache: true}, nil
		}
	}

	guardOpts := append([]oauth.GuardOption{
		oauth.WithLogger(s.logger),
		oauth.WithRefreshGroup(s.refreshes),
	}, s.guardOpts...)
	guard, err := oauth.LoadGuard(ctx, owner, s.store, s.refresher, guardOpts...)
	if err != nil {
		return nil, err
	}

	fetcher := s.Fetcher(s.newClient(owner, guard))
	fetchOpts := s.opts.Fetch
	fetchOpts.PageToken = opts.PageToken

	res, err := fetcher.FetchRecentEmails(ctx, fetchOpts)
	if err != nil {
		return nil, err
	}
	for _, f := range res.Failed {
		s.logger.Debug("message skipped", "owner", owner, "id", f.ID, "error", f.Err)
	}

	if len(res.Emails) > 0 {
		if err := s.store.SaveEmails(ctx, owner, res.Emails); err != nil {
			return nil, fmt.Errorf("save emails: %w", err)
		}
	}

	s.logger.Info("ingest complete",
		"owner", owner,
		"fetched", len(res.Emails),
		"failed", len(res.Failed),
		"has_more", res.NextPageToken != "",
	)

	return &IngestResult{
		Emails:        res.Emails,
		HasMore:       res.NextPageToken != "",
		NextPageToken: res.NextPageToken,
	}, nil
}

// Fetcher returns a Fetcher for api that shares the syncer's scheduler,
// clock and observer.
func (s *Syncer) Fetcher(api gmail.API) *Fetcher {
	f := NewFetcher(api, s.sched,
		gmail.WithIngestLogger(s.logger),
		gmail.WithChunkSize(s.opts.ChunkSize),
	)
	f.now = s.now
	f.observe = s.observe
	return f
}
