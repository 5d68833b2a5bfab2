package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wesm/glider/internal/ratelimit"
)

const (
	// DefaultChunkSize is the number of ids fetched per round.
	DefaultChunkSize = 10
	// MaxBatchSize is the Gmail batch-get ceiling.
	MaxBatchSize = 100

	DefaultMaxResults = 50
	DefaultDaysBack   = 7
)

// FailedFetch records a message that could not be retrieved.
type FailedFetch struct {
	ID  string
	Err error
}

// Ingestor lists and fetches messages through a rate-limited scheduler.
type Ingestor struct {
	api       API
	sched     *ratelimit.Scheduler
	logger    *slog.Logger
	chunkSize int
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithIngestLogger sets the logger.
func WithIngestLogger(logger *slog.Logger) IngestorOption {
	return func(in *Ingestor) {
		in.logger = logger
	}
}

// WithChunkSize sets how many ids are fetched per round, capped at MaxBatchSize.
func WithChunkSize(n int) IngestorOption {
	return func(in *Ingestor) {
		in.chunkSize = n
	}
}

// NewIngestor creates an Ingestor. sched bounds every API call it makes.
func NewIngestor(api API, sched *ratelimit.Scheduler, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		api:       api,
		sched:     sched,
		logger:    slog.Default(),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.chunkSize <= 0 {
		in.chunkSize = DefaultChunkSize
	}
	if in.chunkSize > MaxBatchSize {
		in.chunkSize = MaxBatchSize
	}
	return in
}

// BuildQuery returns a search query matching messages newer than daysBack
// days before now.
func BuildQuery(now time.Time, daysBack int) string {
	since := now.UTC().AddDate(0, 0, -daysBack)
	return fmt.Sprintf("after:%04d/%02d/%02d", since.Year(), int(since.Month()), since.Day())
}

// ListMessageIDs returns one page of message ids for query.
func (in *Ingestor) ListMessageIDs(ctx context.Context, query, pageToken string, maxResults int) ([]string, string, error) {
	resp, err := ratelimit.Do(ctx, in.sched, "list", func(ctx context.Context) (*MessageListResponse, error) {
		return in.api.ListMessages(ctx, query, pageToken, maxResults)
	})
	if err != nil {
		return nil, "", err
	}
	if resp == nil {
		return []string{}, "", nil
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.ID)
	}
	return ids, resp.NextPageToken, nil
}

// FetchMessages retrieves ids, skipping any that fail. Returned messages keep
// the relative order of ids.
func (in *Ingestor) FetchMessages(ctx context.Context, ids []string) []*RawMessage {
	msgs, _ := in.FetchMessagesDetailed(ctx, ids)
	return msgs
}

// FetchMessagesDetailed is FetchMessages that also reports the ids that
// could not be fetched.
func (in *Ingestor) FetchMessagesDetailed(ctx context.Context, ids []string) ([]*RawMessage, []FailedFetch) {
	var (
		msgs   = make([]*RawMessage, 0, len(ids))
		failed []FailedFetch
	)

	for start := 0; start < len(ids); start += in.chunkSize {
		end := min(start+in.chunkSize, len(ids))

		tasks := make([]ratelimit.Task[*RawMessage], 0, end-start)
		for _, id := range ids[start:end] {
			tasks = append(tasks, ratelimit.Task[*RawMessage]{
				Key: id,
				Fn: func(ctx context.Context) (*RawMessage, error) {
					return in.api.GetMessage(ctx, id)
				},
			})
		}

		for _, r := range ratelimit.Run(ctx, in.sched, tasks) {
			err := r.Err
			if err == nil && r.Value == nil {
				err = fmt.Errorf("empty response for message %s", r.Key)
			}
			if err != nil {
				in.logger.Warn("failed to fetch message", "id", r.Key, "error", err)
				failed = append(failed, FailedFetch{ID: r.Key, Err: err})
				continue
			}
			msgs = append(msgs, r.Value)
		}
	}

	return msgs, failed
}
