// Package scheduler runs periodic ingest and analysis for configured owners.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wesm/glider/internal/config"
)

// ErrAlreadyRunning is returned by TriggerSync when a run for the owner is
// in progress.
var ErrAlreadyRunning = errors.New("sync already running")

// ErrNotScheduled is returned by TriggerSync for an owner without a schedule.
var ErrNotScheduled = errors.New("owner is not scheduled")

// ErrStopped is returned by TriggerSync after Stop.
var ErrStopped = errors.New("scheduler is stopped")

// SyncFunc is the callback invoked when a scheduled run should happen.
type SyncFunc func(ctx context.Context, owner string) error

// OwnerStatus represents the run status of a scheduled owner.
type OwnerStatus struct {
	Owner     string    `json:"owner"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"lastRun,omitempty"`
	NextRun   time.Time `json:"nextRun"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"lastError,omitempty"`
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler manages cron-based runs, at most one in flight per owner.
type Scheduler struct {
	cron     *cron.Cron
	syncFunc SyncFunc
	logger   *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID
	schedules map[string]string
	running   map[string]bool
	lastRun   map[string]time.Time
	lastErr   map[string]error

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// New creates a new Scheduler with the given callback.
func New(syncFunc SyncFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(cron.WithParser(cronParser)),
		syncFunc:  syncFunc,
		logger:    slog.Default(),
		jobs:      make(map[string]cron.EntryID),
		schedules: make(map[string]string),
		running:   make(map[string]bool),
		lastRun:   make(map[string]time.Time),
		lastErr:   make(map[string]error),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddOwner schedules runs for owner, replacing an existing schedule.
func (s *Scheduler) AddOwner(owner, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[owner]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, owner)
		delete(s.schedules, owner)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		if !s.claim(owner) {
			s.logger.Debug("skipping scheduled run", "owner", owner)
			return
		}
		s.run(owner)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.jobs[owner] = entryID
	s.schedules[owner] = cronExpr
	s.logger.Info("scheduled sync",
		"owner", owner,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entryID).Next)
	return nil
}

// AddOwnersFromConfig schedules every enabled owner with a schedule.
func (s *Scheduler) AddOwnersFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	scheduled := 0
	for _, o := range cfg.ScheduledOwners() {
		if err := s.AddOwner(o.ID, o.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.ID, err))
			continue
		}
		scheduled++
	}
	return scheduled, errs
}

// RemoveOwner removes the schedule for owner.
func (s *Scheduler) RemoveOwner(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[owner]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, owner)
		delete(s.schedules, owner)
		s.logger.Info("removed schedule", "owner", owner)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	jobs := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", jobs)
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop stops scheduling, cancels running jobs and returns a context that is
// done once they have all returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// claim marks owner as running. It reports false when a run is already in
// progress or the scheduler is stopped.
func (s *Scheduler) claim(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.running[owner] {
		return false
	}
	s.running[owner] = true
	s.wg.Add(1)
	return true
}

// run executes one run for owner. The caller must have claimed it.
func (s *Scheduler) run(owner string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[owner] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled sync", "owner", owner)
	start := time.Now()

	err := s.syncFunc(s.ctx, owner)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr[owner] = err
		s.logger.Error("scheduled sync failed",
			"owner", owner,
			"duration", time.Since(start),
			"error", err)
		return
	}
	s.lastRun[owner] = time.Now()
	s.lastErr[owner] = nil
	s.logger.Info("scheduled sync completed",
		"owner", owner,
		"duration", time.Since(start))
}

// IsScheduled returns true if owner has been added to the scheduler.
func (s *Scheduler) IsScheduled(owner string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[owner]
	return exists
}

// TriggerSync starts a run for owner outside its schedule.
func (s *Scheduler) TriggerSync(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, exists := s.jobs[owner]; !exists {
		return fmt.Errorf("%s: %w", owner, ErrNotScheduled)
	}
	if s.running[owner] {
		return fmt.Errorf("%s: %w", owner, ErrAlreadyRunning)
	}

	s.running[owner] = true
	s.wg.Add(1)
	go s.run(owner)
	return nil
}

// Status returns the status of every scheduled owner, sorted by owner.
func (s *Scheduler) Status() []OwnerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]OwnerStatus, 0, len(s.jobs))
	for owner, entryID := range s.jobs {
		status := OwnerStatus{
			Owner:    owner,
			Running:  s.running[owner],
			LastRun:  s.lastRun[owner],
			NextRun:  s.cron.Entry(entryID).Next,
			Schedule: s.schedules[owner],
		}
		if err := s.lastErr[owner]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Owner < statuses[j].Owner })
	return statuses
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
