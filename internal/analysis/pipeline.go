package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wesm/glider/internal/mime"
	"github.com/wesm/glider/internal/ratelimit"
)

const (
	DefaultBatchSize       = 10
	DefaultTaskTimeout     = 2 * time.Minute
	DefaultTemperature     = 0.3
	DefaultBatchMaxTokens  = 8192
	DefaultSingleMaxTokens = 4096
)

// Observer receives one call per analyzed chunk.
type Observer interface {
	ChunkAnalyzed(emails int, elapsed time.Duration, err error)
}

// Pipeline analyzes emails in chunks, one model call per chunk, with chunk
// calls bounded by a scheduler.
type Pipeline struct {
	model           Model
	sched           *ratelimit.Scheduler
	batchSize       int
	taskTimeout     time.Duration
	temperature     float64
	maxTokens       int
	singleMaxTokens int
	budget          promptBudget
	logger          *slog.Logger
	observer        Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets the number of emails per model call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithTaskTimeout bounds each chunk's model call. Expiry counts as a chunk
// failure.
func WithTaskTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.taskTimeout = d
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Pipeline) { p.temperature = t }
}

// WithMaxTokens sets the output budgets for batch and single-email calls.
func WithMaxTokens(batch, single int) Option {
	return func(p *Pipeline) {
		if batch > 0 {
			p.maxTokens = batch
		}
		if single > 0 {
			p.singleMaxTokens = single
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics registers a chunk observer.
func WithMetrics(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithPromptBudget sets the per-email word cap and the per-email rune cut
// applied inside the batch prompt. Non-positive values keep the defaults.
func WithPromptBudget(words, chars int) Option {
	return func(p *Pipeline) {
		if words > 0 {
			p.budget.words = words
		}
		if chars > 0 {
			p.budget.chars = chars
		}
	}
}

// NewPipeline creates a pipeline over model, scheduling chunk calls on sched.
func NewPipeline(model Model, sched *ratelimit.Scheduler, opts ...Option) *Pipeline {
	p := &Pipeline{
		model:           model,
		sched:           sched,
		batchSize:       DefaultBatchSize,
		taskTimeout:     DefaultTaskTimeout,
		temperature:     DefaultTemperature,
		maxTokens:       DefaultBatchMaxTokens,
		singleMaxTokens: DefaultSingleMaxTokens,
		budget:          defaultBudget,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Analyze returns exactly one result per input email, in input order. A
// chunk that fails for any reason yields synthetic failures for its emails
// only. Once ctx is cancelled no further chunks are started; their emails
// get failures carrying the cancellation error.
func (p *Pipeline) Analyze(ctx context.Context, emails []*mime.Email) []Result {
	if len(emails) == 0 {
		return []Result{}
	}

	chunks := chunkEmails(emails, p.batchSize)
	p.logger.Info("starting batch analysis", "emails", len(emails), "chunks", len(chunks))

	tasks := make([]ratelimit.Task[[]Result], len(chunks))
	for i, chunk := range chunks {
		tasks[i] = ratelimit.Task[[]Result]{
			Key: fmt.Sprintf("chunk-%d", i),
			Fn: func(ctx context.Context) ([]Result, error) {
				return p.analyzeChunk(ctx, chunk, p.maxTokens), nil
			},
		}
	}

	out := make([]Result, 0, len(emails))
	failed := 0
	for i, r := range ratelimit.Run(ctx, p.sched, tasks) {
		if r.Err != nil {
			for _, e := range chunks[i] {
				out = append(out, failedResult(e.ID, r.Err))
			}
			failed += len(chunks[i])
			continue
		}
		for _, res := range r.Value {
			if res.Failed() {
				failed++
			}
		}
		out = append(out, r.Value...)
	}

	p.logger.Info("batch analysis complete", "analyzed", len(out)-failed, "failed", failed)
	return out
}

// AnalyzeSingle analyzes one email with the single-email token budget.
func (p *Pipeline) AnalyzeSingle(ctx context.Context, email *mime.Email) Result {
	results, err := ratelimit.Do(ctx, p.sched, email.ID, func(ctx context.Context) ([]Result, error) {
		return p.analyzeChunk(ctx, []*mime.Email{email}, p.singleMaxTokens), nil
	})
	if err != nil {
		return failedResult(email.ID, err)
	}
	return results[0]
}

func (p *Pipeline) analyzeChunk(ctx context.Context, emails []*mime.Email, maxTokens int) []Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.taskTimeout)
	defer cancel()

	views := make([]promptEmail, len(emails))
	for i, e := range emails {
		views[i] = newPromptEmail(e, p.budget.words)
	}

	parsed, err := p.complete(ctx, buildBatchPrompt(views, p.budget.chars), maxTokens)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("analysis timed out after %s: %w", p.taskTimeout, err)
	}
	if p.observer != nil {
		p.observer.ChunkAnalyzed(len(emails), time.Since(start), err)
	}

	if err != nil {
		p.logger.Warn("chunk analysis failed", "emails", len(emails), "error", err)
		out := make([]Result, len(emails))
		for i, e := range emails {
			out[i] = failedResult(e.ID, err)
		}
		return out
	}
	return reconcile(emails, parsed)
}

func (p *Pipeline) complete(ctx context.Context, prompt string, maxTokens int) ([]Result, error) {
	text, err := p.model.Complete(ctx, prompt, CompleteOptions{
		Temperature: p.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}
	return ParseResponse(text)
}

// reconcile matches parsed results to inputs by echoed email id. Inputs
// the model skipped get a failure; unknown ids are dropped and the first
// of duplicate ids wins.
func reconcile(emails []*mime.Email, parsed []Result) []Result {
	byID := make(map[string]Result, len(parsed))
	for _, r := range parsed {
		if _, dup := byID[r.EmailID]; !dup {
			byID[r.EmailID] = r
		}
	}

	out := make([]Result, len(emails))
	for i, e := range emails {
		if r, ok := byID[e.ID]; ok {
			out[i] = r
			continue
		}
		out[i] = failedResult(e.ID, errNoAnalysis)
	}
	return out
}

func chunkEmails(emails []*mime.Email, size int) [][]*mime.Email {
	var chunks [][]*mime.Email
	for i := 0; i < len(emails); i += size {
		end := min(i+size, len(emails))
		chunks = append(chunks, emails[i:end])
	}
	return chunks
}
