package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a job is submitted to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidSchedule is returned for cron expressions outside the supported subset
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrUnknownJobKind is returned by executors for kinds they do not run
	ErrUnknownJobKind = errors.New("unknown job kind")
)
