// Package scheduler fires the daily pipeline run on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// Service implements SchedulerService. A single cron entry drives the
// daily run; a mutex guarantees at most one run at a time.
type Service struct {
	pipeline interfaces.PipelineService
	location *time.Location
	cron     *cron.Cron
	logger   arbor.ILogger

	mu        sync.Mutex // protects the fields below
	runMu     sync.Mutex // serializes pipeline runs
	entryID   cron.EntryID
	schedule  string
	lastRun   *time.Time
	isRunning bool
	lastError string
	started   bool
}

// NewService creates a scheduler bound to the configured timezone.
// An unknown zone falls back to UTC.
func NewService(cfg common.ScheduleConfig, pipeline interfaces.PipelineService, logger arbor.ILogger) interfaces.SchedulerService {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn().
			Str("timezone", cfg.Timezone).
			Err(err).
			Msg("Unknown timezone, scheduling in UTC")
		loc = time.UTC
	}

	return &Service{
		pipeline: pipeline,
		location: loc,
		cron:     cron.New(cron.WithLocation(loc)),
		logger:   logger,
	}
}

// Start begins the scheduler with the given cron expression.
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("scheduler already running")
	}

	if cronExpr == "" {
		cronExpr = "30 7 * * *"
	}

	entryID, err := s.cron.AddFunc(cronExpr, s.runScheduled)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.entryID = entryID
	s.schedule = cronExpr
	s.cron.Start()
	s.started = true

	s.logger.Info().
		Str("cron_expr", cronExpr).
		Str("timezone", s.location.String()).
		Msg("Scheduler started")

	return nil
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Run did not finish within shutdown timeout")
	}

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// TriggerNow manually triggers the daily run in the background.
func (s *Service) TriggerNow() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("run already in progress")
	}
	s.mu.Unlock()

	s.logger.Info().Msg("Manual run trigger requested")
	common.SafeGo(s.logger, "manual-run", s.runScheduled)
	return nil
}

// IsRunning returns true if the scheduler has been started.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Status returns the current schedule state.
func (s *Service) Status() *interfaces.ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &interfaces.ScheduleStatus{
		Schedule:  s.schedule,
		LastRun:   s.lastRun,
		IsRunning: s.isRunning,
		LastError: s.lastError,
	}

	if s.started {
		for _, entry := range s.cron.Entries() {
			if entry.ID == s.entryID {
				next := entry.Next
				status.NextRun = &next
				break
			}
		}
	}

	return status
}

// runScheduled wraps a pipeline run with panic recovery and status
// tracking. The run mutex makes an overlapping cron fire wait rather
// than stack a second run.
func (s *Service) runScheduled() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in scheduled run")

			s.mu.Lock()
			s.isRunning = false
			s.lastError = fmt.Sprintf("panic: %v", r)
			s.mu.Unlock()
		}
	}()

	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	s.isRunning = true
	s.mu.Unlock()

	started := time.Now().In(s.location)
	s.logger.Info().
		Str("local_time", started.Format("2006-01-02 15:04:05 MST")).
		Msg("Scheduled run started")

	ctx := context.Background()
	summary, err := s.pipeline.Run(ctx, models.RunOptions{Date: started})

	completed := time.Now()
	s.mu.Lock()
	s.isRunning = false
	s.lastRun = &completed
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Err(err).
			Dur("duration", completed.Sub(started)).
			Msg("Scheduled run failed")
		return
	}

	s.logger.Info().
		Int("published", summary.Published()).
		Int("withheld", summary.Withheld()).
		Dur("duration", completed.Sub(started)).
		Msg("Scheduled run completed")
}
