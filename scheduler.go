package access

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/robfig/cron/v3"
)

// DefaultSyncSchedule runs the staff sync at 03:15 every day.
const DefaultSyncSchedule = "15 3 * * *"

// StaffSyncScheduler runs SyncStaffStatus on a cron schedule. It covers
// membership writes that bypassed the event bus.
type StaffSyncScheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	handler *SyncStaffStatusHandler
	timeout time.Duration
	logger  Logger
	entry   cron.EntryID
	running bool
}

// SchedulerOption customizes a StaffSyncScheduler.
type SchedulerOption func(*StaffSyncScheduler)

func WithSchedulerLogger(logger Logger) SchedulerOption {
	return func(s *StaffSyncScheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSchedulerTimeout bounds each run.
func WithSchedulerTimeout(d time.Duration) SchedulerOption {
	return func(s *StaffSyncScheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewStaffSyncScheduler(handler *SyncStaffStatusHandler, opts ...SchedulerOption) *StaffSyncScheduler {
	_, logger := ResolveLogger("access.scheduler", nil, nil)
	s := &StaffSyncScheduler{
		cron:    cron.New(),
		handler: handler,
		timeout: 5 * time.Minute,
		logger:  logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Schedule registers the sync job. Calling it again replaces the schedule.
func (s *StaffSyncScheduler) Schedule(schedule string) error {
	if schedule == "" {
		schedule = DefaultSyncSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, s.run)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sync schedule").
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"schedule": schedule})
	}
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	s.entry = id
	s.logger.Info("staff sync scheduled", "schedule", schedule)
	return nil
}

func (s *StaffSyncScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.handler.Execute(ctx, SyncStaffStatusMessage{})
	if err != nil {
		s.logger.Error("scheduled staff sync failed", "error", err)
		return
	}
	s.logger.Info("scheduled staff sync finished",
		"examined", res.Examined,
		"updated", res.Updated,
		"failed", res.Failed,
		"duration", time.Since(start).String(),
	)
}

// RunNow runs one sync outside the schedule.
func (s *StaffSyncScheduler) RunNow() { s.run() }

// Next returns the next scheduled run, zero when nothing is scheduled.
func (s *StaffSyncScheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

func (s *StaffSyncScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop stops the scheduler and waits for a running job to finish or ctx to
// expire.
func (s *StaffSyncScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
