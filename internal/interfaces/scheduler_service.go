package interfaces

import "time"

// ScheduleStatus reports the daily job's state.
type ScheduleStatus struct {
	Schedule  string
	LastRun   *time.Time
	NextRun   *time.Time
	IsRunning bool
	LastError string
}

// SchedulerService manages the cron-based daily trigger.
type SchedulerService interface {
	// Start the scheduler with a cron expression
	Start(cronExpr string) error

	// Stop the scheduler
	Stop() error

	// TriggerNow manually triggers the daily run
	TriggerNow() error

	// IsRunning returns true if the scheduler is active
	IsRunning() bool

	// Status returns the current schedule state
	Status() *ScheduleStatus
}
