// Package ratelimit runs batches of tasks under a concurrency cap and an
// optional sliding-window start rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// realClock implements Clock using the standard time package.
type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Policy bounds how tasks are started.
type Policy struct {
	// MaxConcurrent is the number of tasks allowed in flight. Values below 1 are treated as 1.
	MaxConcurrent int
	// TasksPerWindow is the number of task starts allowed in any sliding
	// Window. Zero (or a zero Window) disables the window.
	TasksPerWindow int
	Window         time.Duration
}

func (p Policy) windowed() bool {
	return p.TasksPerWindow > 0 && p.Window > 0
}

// Task is a unit of work submitted to a Scheduler. Key correlates the task
// with its Result.
type Task[T any] struct {
	Key string
	Fn  func(ctx context.Context) (T, error)
}

// Result holds the outcome of one Task.
type Result[T any] struct {
	Key   string
	Value T
	Err   error
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	InFlight int
	Started  int64
	InWindow int
}

// Scheduler enforces a Policy across every Run call made against it. It is
// safe for concurrent use.
type Scheduler struct {
	name   string
	policy Policy
	clock  Clock
	slots  chan struct{}

	mu       sync.Mutex
	starts   []time.Time // start instants still inside the window, oldest first
	inFlight int
	started  int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used for the sliding window.
func WithClock(clk Clock) Option {
	return func(s *Scheduler) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithName labels the scheduler.
func WithName(name string) Option {
	return func(s *Scheduler) { s.name = name }
}

// New creates a Scheduler for the given policy.
func New(policy Policy, opts ...Option) *Scheduler {
	if policy.MaxConcurrent < 1 {
		policy.MaxConcurrent = 1
	}
	s := &Scheduler{
		policy: policy,
		clock:  realClock{},
		slots:  make(chan struct{}, policy.MaxConcurrent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the scheduler label.
func (s *Scheduler) Name() string { return s.name }

// Policy returns the policy the scheduler enforces.
func (s *Scheduler) Policy() Policy { return s.policy }

// reserve records a start if the window allows one. Returns 0 on success, or
// how long to wait before the oldest start leaves the window.
func (s *Scheduler) reserve() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.policy.windowed() {
		s.started++
		return 0
	}

	now := s.clock.Now()
	s.expire(now)

	if len(s.starts) < s.policy.TasksPerWindow {
		s.starts = append(s.starts, now)
		s.started++
		return 0
	}
	return s.starts[0].Add(s.policy.Window).Sub(now)
}

// expire drops starts that are no longer inside (now-Window, now]. Must be
// called with lock held.
func (s *Scheduler) expire(now time.Time) {
	cutoff := now.Add(-s.policy.Window)
	i := 0
	for i < len(s.starts) && !s.starts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.starts = append(s.starts[:0], s.starts[i:]...)
	}
}

// acquire blocks until a concurrency slot is held and a start has been
// recorded in the window. Returns ctx.Err() without holding a slot if the
// context ends first.
func (s *Scheduler) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		wait := s.reserve()
		if wait <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			<-s.slots
			return ctx.Err()
		case <-s.clock.After(wait):
		}
	}

	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	<-s.slots
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.policy.windowed() {
		s.expire(s.clock.Now())
	}
	return Stats{InFlight: s.inFlight, Started: s.started, InWindow: len(s.starts)}
}

// Run submits tasks in order and waits for every started task to finish.
//
// The returned slice has one Result per task, at the task's index, carrying
// the task's Key. A task error is recorded in its own slot and never stops
// other tasks. Once ctx is done no further tasks are started and their slots
// hold ctx.Err(); tasks already running are allowed to finish with a context
// that is detached from ctx's cancellation.
func Run[T any](ctx context.Context, s *Scheduler, tasks []Task[T]) []Result[T] {
	results := make([]Result[T], len(tasks))
	runCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, task := range tasks {
		results[i].Key = task.Key
		if err := s.acquire(ctx); err != nil {
			for j := i; j < len(tasks); j++ {
				results[j] = Result[T]{Key: tasks[j].Key, Err: err}
			}
			break
		}
		g.Go(func() error {
			defer s.release()
			v, err := task.Fn(runCtx)
			results[i].Value = v
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Do runs a single function under the scheduler's policy.
func Do[T any](ctx context.Context, s *Scheduler, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	r := Run(ctx, s, []Task[T]{{Key: key, Fn: fn}})[0]
	return r.Value, r.Err
}
