// Package sync composes listing, fetching and decoding into mailbox
// ingestion workflows.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/wesm/glider/internal/gmail"
	"github.com/wesm/glider/internal/mime"
	"github.com/wesm/glider/internal/ratelimit"
)

// FetchOptions controls a single FetchRecentEmails call.
type FetchOptions struct {
	// MaxResults is the page size requested from the listing. Defaults to 50.
	MaxResults int
	// DaysBack bounds the listing to messages newer than this many days.
	// Defaults to 7.
	DaysBack int
	// PageToken resumes a previous listing.
	PageToken string
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.MaxResults <= 0 {
		o.MaxResults = gmail.DefaultMaxResults
	}
	if o.DaysBack <= 0 {
		o.DaysBack = gmail.DefaultDaysBack
	}
	return o
}

// FetchResult is one page of decoded messages.
type FetchResult struct {
	Emails        []*mime.Email
	NextPageToken string
	// Failed lists ids that were listed but could not be retrieved.
	Failed []gmail.FailedFetch
}

// FetchObserver is told how many messages a fetch retrieved and skipped.
type FetchObserver func(fetched, failed int)

// Fetcher lists and retrieves recent messages from one mailbox.
type Fetcher struct {
	ingestor *gmail.Ingestor
	now      func() time.Time
	observe  FetchObserver
}

// NewFetcher creates a Fetcher over api. Every call goes through sched.
func NewFetcher(api gmail.API, sched *ratelimit.Scheduler, opts ...gmail.IngestorOption) *Fetcher {
	return &Fetcher{
		ingestor: gmail.NewIngestor(api, sched, opts...),
		now:      time.Now,
		observe:  func(int, int) {},
	}
}

// FetchRecentEmails lists one page of recent message ids, retrieves them and
// decodes each into an Email. Listing errors are returned; per-message
// failures are reported in FetchResult.Failed and otherwise skipped.
func (f *Fetcher) FetchRecentEmails(ctx context.Context, opts FetchOptions) (*FetchResult, error) {
	opts = opts.withDefaults()

	query := gmail.BuildQuery(f.now(), opts.DaysBack)
	ids, next, err := f.ingestor.ListMessageIDs(ctx, query, opts.PageToken, opts.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	result := &FetchResult{
		Emails:        []*mime.Email{},
		NextPageToken: next,
	}
	if len(ids) == 0 {
		return result, nil
	}

	raws, failed := f.ingestor.FetchMessagesDetailed(ctx, ids)
	for _, raw := range raws {
		result.Emails = append(result.Emails, mime.Decode(raw))
	}
	result.Failed = failed
	f.observe(len(result.Emails), len(failed))
	return result, nil
}

// Options configures a Syncer.
type Options struct {
	// CacheLimit is how many cached emails Ingest returns on a cache hit.
	CacheLimit int
	// Fetch holds the listing defaults applied to every Ingest.
	Fetch FetchOptions
	// ChunkSize is the number of messages fetched per round.
	ChunkSize int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		CacheLimit: 50,
		Fetch: FetchOptions{
			MaxResults: gmail.DefaultMaxResults,
			DaysBack:   gmail.DefaultDaysBack,
		},
		ChunkSize: gmail.DefaultChunkSize,
	}
}
