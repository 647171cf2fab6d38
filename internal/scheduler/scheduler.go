// Package scheduler drives periodic background sync for accounts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mailpod/mailpod/internal/model"
	"github.com/mailpod/mailpod/internal/store"
)

// SyncFunc is the callback invoked when a scheduled sync fires. It receives
// the account ID and should refresh that account's folders and messages.
type SyncFunc func(ctx context.Context, accountID string) error

// AccountStatus reports the scheduling state of one account.
type AccountStatus struct {
	AccountID string        `json:"accountId"`
	Running   bool          `json:"running"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	NextRun   time.Time     `json:"next_run"`
	Interval  time.Duration `json:"interval"`
	LastError string        `json:"last_error,omitempty"`
}

// Scheduler runs account syncs on a fixed interval per account.
type Scheduler struct {
	cron     *cron.Cron
	syncFunc SyncFunc
	logger   *slog.Logger

	mu        sync.RWMutex
	jobs      map[string]cron.EntryID  // account ID -> cron entry
	intervals map[string]time.Duration // account ID -> interval
	running   map[string]bool          // account ID -> sync in flight
	lastRun   map[string]time.Time     // account ID -> last successful run
	lastErr   map[string]error         // account ID -> last failure

	ctx     context.Context    // cancelled on Stop
	cancel  context.CancelFunc // cancels ctx
	wg      sync.WaitGroup     // tracks running sync goroutines
	started bool
	stopped bool
}

// New creates a scheduler with the given sync callback.
func New(syncFunc SyncFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(),
		syncFunc:  syncFunc,
		logger:    slog.Default(),
		jobs:      make(map[string]cron.EntryID),
		intervals: make(map[string]time.Duration),
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

// AddAccount schedules sync for an account at the given interval, replacing
// any existing schedule for that account.
func (s *Scheduler) AddAccount(accountID string, interval time.Duration) error {
	if interval < time.Minute {
		return fmt.Errorf("sync interval %s too short, minimum is 1m", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[accountID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, accountID)
		delete(s.intervals, accountID)
	}

	entryID := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		s.mu.Lock()
		if s.stopped || s.running[accountID] {
			s.mu.Unlock()
			return
		}
		s.running[accountID] = true
		s.wg.Add(1)
		s.mu.Unlock()
		s.runSync(accountID)
	}))

	s.jobs[accountID] = entryID
	s.intervals[accountID] = interval
	s.logger.Info("scheduled sync",
		"account", accountID,
		"interval", interval,
		"next_run", s.cron.Entry(entryID).Next)

	return nil
}

// ApplySettings reconciles the schedule with the stored preferences: when
// auto sync is on, every stored account runs at the configured interval;
// when off, all schedules are removed. Returns how many accounts ended up
// scheduled.
func (s *Scheduler) ApplySettings(st store.Store) (int, error) {
	settings, err := st.Settings()
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}
	accounts, err := st.Accounts()
	if err != nil {
		return 0, fmt.Errorf("load accounts: %w", err)
	}

	if !settings.AutoSync {
		for _, acc := range accounts {
			s.RemoveAccount(acc.ID)
		}
		return 0, nil
	}

	interval := time.Duration(settings.SyncInterval) * time.Minute
	if interval < time.Minute {
		interval = time.Duration(model.DefaultSettings().SyncInterval) * time.Minute
	}

	scheduled := 0
	for _, acc := range accounts {
		if err := s.AddAccount(acc.ID, interval); err != nil {
			return scheduled, fmt.Errorf("%s: %w", acc.Email, err)
		}
		scheduled++
	}
	return scheduled, nil
}

// RemoveAccount removes the schedule for an account.
func (s *Scheduler) RemoveAccount(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[accountID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, accountID)
		delete(s.intervals, accountID)
		s.logger.Info("removed schedule", "account", accountID)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop gracefully stops the scheduler, cancels running sync jobs, and waits
// for them to finish. Returns a context that is done when all work completes.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel() // signal running syncs to stop

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-done
		cancel()
	}()
	return ctx
}

// runSync executes sync for an account. The caller must have already called
// wg.Add(1) and set running[accountID] = true.
func (s *Scheduler) runSync(accountID string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.running[accountID] = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting scheduled sync", "account", accountID)
	start := time.Now()

	err := s.syncFunc(s.ctx, accountID)

	s.mu.Lock()
	if err != nil {
		s.lastErr[accountID] = err
		s.logger.Error("scheduled sync failed",
			"account", accountID,
			"duration", time.Since(start),
			"error", err)
	} else {
		s.lastRun[accountID] = time.Now()
		s.lastErr[accountID] = nil
		s.logger.Info("scheduled sync completed",
			"account", accountID,
			"duration", time.Since(start))
	}
	s.mu.Unlock()
}

// IsScheduled reports whether the account has been added to the scheduler.
func (s *Scheduler) IsScheduled(accountID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.jobs[accountID]
	return exists
}

// TriggerSync manually starts a sync for an account outside its schedule.
// Fails when a sync is already running, the account is not scheduled, or the
// scheduler has been stopped.
func (s *Scheduler) TriggerSync(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}

	if _, exists := s.jobs[accountID]; !exists {
		return fmt.Errorf("account %s is not scheduled", accountID)
	}
	if s.running[accountID] {
		return fmt.Errorf("sync already running for %s", accountID)
	}

	s.running[accountID] = true
	s.wg.Add(1)
	go s.runSync(accountID)
	return nil
}

// Status returns the current state of every scheduled account.
func (s *Scheduler) Status() []AccountStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses []AccountStatus
	for accountID, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		status := AccountStatus{
			AccountID: accountID,
			Running:   s.running[accountID],
			LastRun:   s.lastRun[accountID],
			NextRun:   entry.Next,
			Interval:  s.intervals[accountID],
		}
		if err := s.lastErr[accountID]; err != nil {
			status.LastError = err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}
