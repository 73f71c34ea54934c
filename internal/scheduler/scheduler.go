package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/MuhdNihalCY/wpdebuglog/internal/debuglog"
	"github.com/MuhdNihalCY/wpdebuglog/internal/logger"
	"github.com/robfig/cron/v3"
)

// Sweeper runs a retention pass over a log series.
type Sweeper interface {
	EnforceRetention(policy debuglog.RetentionPolicy) (int, []error)
	Policy() debuglog.RetentionPolicy
}

// Status describes the most recent retention sweep.
type Status struct {
	Running     bool
	LastRun     *time.Time
	NextRun     *time.Time
	LastRemoved int
	LastErrors  []string
}

// Service runs retention sweeps on a cron schedule.
type Service struct {
	sweeper Sweeper
	cron    *cron.Cron
	logger  *logger.AppLogger

	mu           sync.Mutex // protects the fields below
	running      bool
	isProcessing bool
	entryID      cron.EntryID
	lastRun      *time.Time
	lastRemoved  int
	lastErrors   []string
}

// NewService creates a scheduler for sweeper. Nothing runs until Start.
func NewService(sweeper Sweeper, appLogger *logger.AppLogger) *Service {
	if appLogger == nil {
		appLogger = logger.GetAppLogger()
	}
	return &Service{
		sweeper: sweeper,
		cron:    cron.New(),
		logger:  appLogger,
	}
}

// Start schedules the sweep with a standard cron expression or a
// descriptor such as "@every 1h".
func (s *Service) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if schedule == "" {
		return fmt.Errorf("retention schedule cannot be empty")
	}

	id, err := s.cron.AddFunc(schedule, func() { s.RunNow() })
	if err != nil {
		return fmt.Errorf("failed to add retention job '%s': %w", schedule, err)
	}
	s.entryID = id
	s.cron.Start()
	s.running = true

	s.logger.Info("Retention scheduler started (schedule: %s)", schedule)
	return nil
}

// Stop halts the scheduler and waits for a sweep in progress.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Retention scheduler stopped")
}

// RunNow performs one sweep with the sweeper's policy. A sweep that starts
// while another is in progress is skipped and reports false.
func (s *Service) RunNow() bool {
	s.mu.Lock()
	if s.isProcessing {
		s.mu.Unlock()
		s.logger.Debug("Retention sweep already in progress, skipping")
		return false
	}
	s.isProcessing = true
	s.mu.Unlock()

	removed, errs := s.sweeper.EnforceRetention(s.sweeper.Policy())

	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
		s.logger.Error("Retention sweep: %v", err)
	}
	if removed > 0 {
		s.logger.Info("Retention sweep removed %d sealed file(s)", removed)
	}

	now := time.Now()
	s.mu.Lock()
	s.isProcessing = false
	s.lastRun = &now
	s.lastRemoved = removed
	s.lastErrors = messages
	s.mu.Unlock()
	return true
}

// Status reports the outcome of the last sweep and the next scheduled run.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:     s.running,
		LastRun:     s.lastRun,
		LastRemoved: s.lastRemoved,
		LastErrors:  append([]string(nil), s.lastErrors...),
	}
	if s.running {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			st.NextRun = &next
		}
	}
	return st
}
