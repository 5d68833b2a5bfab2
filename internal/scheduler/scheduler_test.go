package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesm/glider/internal/config"
)

const testOwner = "test@example.com"

func noop(ctx context.Context, owner string) error { return nil }

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func statusFor(s *Scheduler, owner string) (OwnerStatus, bool) {
	for _, st := range s.Status() {
		if st.Owner == owner {
			return st, true
		}
	}
	return OwnerStatus{}, false
}

func TestAddOwner(t *testing.T) {
	s := New(noop)

	if err := s.AddOwner(testOwner, "0 2 * * *"); err != nil {
		t.Fatalf("AddOwner() = %v, want nil", err)
	}
	if !s.IsScheduled(testOwner) {
		t.Error("owner was not scheduled")
	}

	if err := s.AddOwner(testOwner, "invalid cron"); err == nil {
		t.Error("AddOwner() with invalid cron = nil, want error")
	}
}

func TestAddOwnerReplacesExisting(t *testing.T) {
	s := New(noop)

	if err := s.AddOwner(testOwner, "0 2 * * *"); err != nil {
		t.Fatalf("AddOwner() = %v", err)
	}
	s.mu.RLock()
	firstID := s.jobs[testOwner]
	s.mu.RUnlock()

	if err := s.AddOwner(testOwner, "0 3 * * *"); err != nil {
		t.Fatalf("AddOwner() replacement = %v", err)
	}
	s.mu.RLock()
	secondID := s.jobs[testOwner]
	schedule := s.schedules[testOwner]
	s.mu.RUnlock()

	if firstID == secondID {
		t.Error("job ID was not updated after replacement")
	}
	if schedule != "0 3 * * *" {
		t.Errorf("schedule = %q, want %q", schedule, "0 3 * * *")
	}
	if n := len(s.cron.Entries()); n != 1 {
		t.Errorf("cron entries = %d, want 1", n)
	}
}

func TestRemoveOwner(t *testing.T) {
	s := New(noop)

	if err := s.AddOwner(testOwner, "0 2 * * *"); err != nil {
		t.Fatalf("AddOwner: %v", err)
	}
	s.RemoveOwner(testOwner)
	s.RemoveOwner("nobody@example.com")

	if s.IsScheduled(testOwner) {
		t.Error("owner still scheduled after RemoveOwner()")
	}
}

func TestAddOwnersFromConfig(t *testing.T) {
	s := New(noop)

	cfg := &config.Config{
		Owners: []config.OwnerSchedule{
			{ID: "user1@example.com", Schedule: "0 1 * * *", Enabled: true},
			{ID: "user2@example.com", Schedule: "0 2 * * *", Enabled: true},
			{ID: "disabled@example.com", Schedule: "0 3 * * *", Enabled: false},
			{ID: "noschedule@example.com", Schedule: "", Enabled: true},
			{ID: "broken@example.com", Schedule: "not a cron", Enabled: true},
		},
	}

	scheduled, errs := s.AddOwnersFromConfig(cfg)

	if scheduled != 2 {
		t.Errorf("scheduled = %d, want 2", scheduled)
	}
	if len(errs) != 1 {
		t.Errorf("len(errs) = %d, want 1", len(errs))
	}
	for owner, want := range map[string]bool{
		"user1@example.com":      true,
		"user2@example.com":      true,
		"disabled@example.com":   false,
		"noschedule@example.com": false,
		"broken@example.com":     false,
	} {
		if got := s.IsScheduled(owner); got != want {
			t.Errorf("IsScheduled(%s) = %v, want %v", owner, got, want)
		}
	}
}

func TestStartStop(t *testing.T) {
	s := New(noop)

	if s.IsRunning() {
		t.Error("IsRunning() = true before Start()")
	}
	s.Start()
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}

	ctx := s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("Stop() did not complete in time")
	}
}

func TestStopCancelsRunningSync(t *testing.T) {
	started := make(chan struct{})
	s := New(func(ctx context.Context, owner string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	if err := s.AddOwner(testOwner, "0 0 1 1 *"); err != nil {
		t.Fatalf("AddOwner: %v", err)
	}
	if err := s.TriggerSync(testOwner); err != nil {
		t.Fatalf("TriggerSync: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("sync did not start")
	}

	ctx := s.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not complete after cancelling sync")
	}

	st, ok := statusFor(s, testOwner)
	if !ok {
		t.Fatal("owner missing from status")
	}
	if st.LastError == "" {
		t.Error("expected an error after cancelled sync")
	}
}

func TestTriggerSyncRejectsConcurrentRun(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	s := New(func(ctx context.Context, owner string) error {
		calls.Add(1)
		<-release
		return nil
	})

	if err := s.AddOwner(testOwner, "0 0 1 1 *"); err != nil {
		t.Fatalf("AddOwner: %v", err)
	}
	if err := s.TriggerSync(testOwner); err != nil {
		t.Fatalf("TriggerSync() = %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := s.TriggerSync(testOwner); !errors.Is(err, ErrAlreadyRunning) {
			t.Errorf("TriggerSync() while running = %v, want ErrAlreadyRunning", err)
		}
	}

	close(release)
	waitFor(t, "run to finish", func() bool {
		st, _ := statusFor(s, testOwner)
		return !st.Running && !st.LastRun.IsZero()
	})

	if n := calls.Load(); n != 1 {
		t.Errorf("syncFunc called %d times, want 1", n)
	}
	if err := s.TriggerSync(testOwner); err != nil {
		t.Errorf("TriggerSync() after completion = %v, want nil", err)
	}
	<-s.Stop().Done()
}

func TestTriggerSyncErrors(t *testing.T) {
	s := New(noop)

	if err := s.TriggerSync("nobody@example.com"); !errors.Is(err, ErrNotScheduled) {
		t.Errorf("TriggerSync(unscheduled) = %v, want ErrNotScheduled", err)
	}

	if err := s.AddOwner(testOwner, "0 0 1 1 *"); err != nil {
		t.Fatalf("AddOwner: %v", err)
	}
	<-s.Stop().Done()

	if err := s.TriggerSync(testOwner); !errors.Is(err, ErrStopped) {
		t.Errorf("TriggerSync() after Stop() = %v, want ErrStopped", err)
	}
}

func TestStatus(t *testing.T) {
	s := New(noop)

	if err := s.AddOwner("b@example.com", "0 2 * * *"); err != nil {
		t.Fatalf("AddOwner: %v", err)
	}
	if err := s.AddOwner("a@example.com", "0 3 * * *"); err != nil {
		t.Fatalf("AddOwner: %v", err)
	}
	s.Start()
	defer s.Stop()

	statuses := s.Status()
	if len(statuses) != 2 {
		t.Fatalf("len(Status()) = %d, want 2", len(statuses))
	}
	if statuses[0].Owner != "a@example.com" || statuses[1].Owner != "b@example.com" {
		t.Errorf("owners = [%s %s], want sorted", statuses[0].Owner, statuses[1].Owner)
	}
	for _, st := range statuses {
		if st.Running {
			t.Errorf("%s: Running = true, want false", st.Owner)
		}
		if st.NextRun.IsZero() {
			t.Errorf("%s: NextRun is zero", st.Owner)
		}
	}
}

func TestStatusAfterRun(t *testing.T) {
	tests := []struct {
		name    string
		fn      SyncFunc
		wantErr bool
	}{
		{"success", noop, false},
		{"failure", func(context.Context, string) error { return errors.New("sync failed") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.fn)
			if err := s.AddOwner(testOwner, "0 0 1 1 *"); err != nil {
				t.Fatalf("AddOwner: %v", err)
			}
			if err := s.TriggerSync(testOwner); err != nil {
				t.Fatalf("TriggerSync: %v", err)
			}
			<-s.Stop().Done()

			st, ok := statusFor(s, testOwner)
			if !ok {
				t.Fatal("owner missing from status")
			}
			if got := st.LastError != ""; got != tt.wantErr {
				t.Errorf("LastError = %q, wantErr %v", st.LastError, tt.wantErr)
			}
			if got := !st.LastRun.IsZero(); got == tt.wantErr {
				t.Errorf("LastRun = %v, wantErr %v", st.LastRun, tt.wantErr)
			}
		})
	}
}

func TestValidateCronExpr(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 2 * * *", false},
		{"*/15 * * * *", false},
		{"0 0 1 * *", false},
		{"0 0 * * 0", false},
		{"invalid", true},
		{"* * * * * *", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpr(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpr(%q) error = %v, wantErr = %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}
