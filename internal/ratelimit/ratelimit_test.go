package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockClock provides deterministic time control for tests.
type mockClock struct {
	mu          sync.Mutex
	current     time.Time
	timers      []mockTimer
	timerNotify chan struct{}
}

type mockTimer struct {
	deadline time.Time
	ch       chan time.Time
}

func newMockClock() *mockClock {
	return &mockClock{
		current:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		timerNotify: make(chan struct{}, 1),
	}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *mockClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	deadline := c.current.Add(d)
	if !c.current.Before(deadline) {
		ch <- c.current
		return ch
	}
	c.timers = append(c.timers, mockTimer{deadline: deadline, ch: ch})
	select {
	case c.timerNotify <- struct{}{}:
	default:
	}
	return ch
}

// Advance moves the clock forward and fires any pending timers.
func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	var remaining []mockTimer
	for _, t := range c.timers {
		if !now.Before(t.deadline) {
			t.ch <- now
		} else {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	c.mu.Unlock()
}

func noop(key string) Task[string] {
	return Task[string]{Key: key, Fn: func(context.Context) (string, error) { return key, nil }}
}

func TestRun_SlidingWindow(t *testing.T) {
	clk := newMockClock()
	s := New(Policy{MaxConcurrent: 25, TasksPerWindow: 10, Window: time.Second}, WithClock(clk))

	var mu sync.Mutex
	var starts []time.Time
	tasks := make([]Task[int], 25)
	for i := range tasks {
		tasks[i] = Task[int]{
			Key: fmt.Sprintf("t%d", i),
			Fn: func(context.Context) (int, error) {
				mu.Lock()
				starts = append(starts, clk.Now())
				mu.Unlock()
				return i, nil
			},
		}
	}

	done := make(chan []Result[int])
	go func() { done <- Run(context.Background(), s, tasks) }()

	var results []Result[int]
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case results = <-done:
			break loop
		case <-clk.timerNotify:
			// Let every started task record its start before time moves.
			for deadline := time.Now().Add(2 * time.Second); ; {
				mu.Lock()
				n := int64(len(starts))
				mu.Unlock()
				if n == s.Stats().Started {
					break
				}
				if time.Now().After(deadline) {
					t.Fatal("timed out waiting for started tasks")
				}
				time.Sleep(time.Millisecond)
			}
			clk.Advance(time.Second)
		case <-timeout:
			t.Fatal("timed out waiting for Run")
		}
	}

	for i, r := range results {
		if r.Err != nil {
			t.Errorf("results[%d].Err = %v, want nil", i, r.Err)
		}
		if r.Value != i {
			t.Errorf("results[%d].Value = %d, want %d", i, r.Value, i)
		}
	}

	if len(starts) != 25 {
		t.Fatalf("started %d tasks, want 25", len(starts))
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i := 0; i+10 < len(starts); i++ {
		if gap := starts[i+10].Sub(starts[i]); gap < time.Second {
			t.Fatalf("11 starts within %v (starts[%d]..starts[%d])", gap, i, i+10)
		}
	}
}

func TestRun_MaxConcurrent(t *testing.T) {
	s := New(Policy{MaxConcurrent: 3})

	var inFlight, peak atomic.Int32
	tasks := make([]Task[struct{}], 12)
	for i := range tasks {
		tasks[i] = Task[struct{}]{
			Key: fmt.Sprintf("t%d", i),
			Fn: func(context.Context) (struct{}, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return struct{}{}, nil
			},
		}
	}

	results := Run(context.Background(), s, tasks)
	if len(results) != len(tasks) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(tasks))
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("peak in-flight = %d, want <= 3", got)
	}
	if got := s.Stats(); got.InFlight != 0 || got.Started != 12 {
		t.Errorf("Stats() = %+v, want InFlight=0 Started=12", got)
	}
}

func TestRun_ErrorIsolation(t *testing.T) {
	s := New(Policy{MaxConcurrent: 2})
	boom := errors.New("boom")

	tasks := []Task[string]{
		noop("a"),
		{Key: "b", Fn: func(context.Context) (string, error) { return "", boom }},
		noop("c"),
	}
	results := Run(context.Background(), s, tasks)

	want := []struct {
		key, value string
		err        error
	}{
		{"a", "a", nil},
		{"b", "", boom},
		{"c", "c", nil},
	}
	for i, w := range want {
		r := results[i]
		if r.Key != w.key || r.Value != w.value || !errors.Is(r.Err, w.err) {
			t.Errorf("results[%d] = {%q %q %v}, want {%q %q %v}", i, r.Key, r.Value, r.Err, w.key, w.value, w.err)
		}
	}
}

func TestRun_CancelStopsSubmission(t *testing.T) {
	s := New(Policy{MaxConcurrent: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran atomic.Int32
	tasks := []Task[string]{
		{Key: "first", Fn: func(taskCtx context.Context) (string, error) {
			ran.Add(1)
			cancel()
			if taskCtx.Err() != nil {
				return "", taskCtx.Err()
			}
			return "done", nil
		}},
		{Key: "second", Fn: func(context.Context) (string, error) { ran.Add(1); return "x", nil }},
		{Key: "third", Fn: func(context.Context) (string, error) { ran.Add(1); return "y", nil }},
	}

	results := Run(ctx, s, tasks)

	if got := ran.Load(); got != 1 {
		t.Errorf("tasks run = %d, want 1", got)
	}
	if results[0].Err != nil || results[0].Value != "done" {
		t.Errorf("in-flight result = {%q %v}, want {\"done\" nil}", results[0].Value, results[0].Err)
	}
	for _, r := range results[1:] {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("result %s Err = %v, want context.Canceled", r.Key, r.Err)
		}
	}
}

func TestRun_AlreadyCancelled(t *testing.T) {
	s := New(Policy{MaxConcurrent: 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Run(ctx, s, []Task[string]{noop("a"), noop("b")})
	for _, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("result %s Err = %v, want context.Canceled", r.Key, r.Err)
		}
	}
	if got := s.Stats().Started; got != 0 {
		t.Errorf("Started = %d, want 0", got)
	}
}

func TestRun_Empty(t *testing.T) {
	results := Run(context.Background(), New(Policy{}), []Task[int]{})
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestScheduler_WindowSharedAcrossRuns(t *testing.T) {
	clk := newMockClock()
	s := New(Policy{MaxConcurrent: 10, TasksPerWindow: 2, Window: time.Second}, WithClock(clk))

	Run(context.Background(), s, []Task[string]{noop("a"), noop("b")})
	if got := s.Stats().InWindow; got != 2 {
		t.Fatalf("InWindow = %d, want 2", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []Result[string])
	go func() { done <- Run(ctx, s, []Task[string]{noop("c")}) }()

	// The third start must wait on the window.
	select {
	case <-clk.timerNotify:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to wait on the window")
	}
	cancel()
	results := <-done
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", results[0].Err)
	}

	clk.Advance(time.Second)
	if got := s.Stats().InWindow; got != 0 {
		t.Errorf("InWindow after advance = %d, want 0", got)
	}
}

func TestDo(t *testing.T) {
	s := New(Policy{MaxConcurrent: 1})
	got, err := Do(context.Background(), s, "list", func(context.Context) (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Errorf("Do() = %d, %v, want 42, nil", got, err)
	}

	boom := errors.New("boom")
	if _, err := Do(context.Background(), s, "list", func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want %v", err, boom)
	}
}
