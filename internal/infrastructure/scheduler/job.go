package scheduler

import (
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/google/uuid"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobKind is the billing run a job performs
type JobKind string

const (
	// JobGenerateBills bills every billable account for Job.Period
	JobGenerateBills JobKind = "GENERATE_BILLS"
	// JobMarkOverdue sweeps bills past their due date as of Job.AsOf
	JobMarkOverdue JobKind = "MARK_OVERDUE"
	// JobExpireCredits expires carry-forward credits as of Job.AsOf
	JobExpireCredits JobKind = "EXPIRE_CREDITS"
)

// Job is one scheduled billing run
type Job struct {
	ID          uuid.UUID
	Kind        JobKind
	Period      billing.Period
	AsOf        time.Time
	Status      JobStatus
	Error       string
	Summary     string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a pending job
func NewJob(kind JobKind, asOf time.Time, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       kind,
		AsOf:       asOf,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// NewGenerationJob creates a pending bill generation job for period
func NewGenerationJob(period billing.Period, asOf time.Time, maxRetries int) *Job {
	j := NewJob(JobGenerateBills, asOf, maxRetries)
	j.Period = period
	return j
}

// Start marks the job as running
func (j *Job) Start(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.CompletedAt = nil
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete(now time.Time, summary string) {
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
	j.Summary = summary
}

// Fail marks the job as failed
func (j *Job) Fail(now time.Time, err string) {
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry reports whether a failed job has attempts left
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry puts the job back to pending, due after delay
func (j *Job) ScheduleRetry(now time.Time, delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	next := now.Add(delay)
	j.NextRetryAt = &next
}

// Label names the job in logs and records
func (j *Job) Label() string {
	if j.Kind == JobGenerateBills {
		return string(j.Kind) + " " + j.Period.String()
	}
	return string(j.Kind) + " " + j.AsOf.Format(time.DateOnly)
}
