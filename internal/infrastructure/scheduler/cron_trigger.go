package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"go.uber.org/zap"
)

// Entry submits the job built by Build whenever Schedule matches
type Entry struct {
	Name     string
	Schedule Schedule
	Build    func(now time.Time) *Job
}

// CronTriggerConfig holds configuration for the cron trigger
type CronTriggerConfig struct {
	// CheckInterval is how often the clock is compared to the schedules
	CheckInterval time.Duration
	Location      *time.Location
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{CheckInterval: 30 * time.Second, Location: time.UTC}
}

// Submitter accepts jobs; *Scheduler implements it
type Submitter interface {
	Submit(job *Job) error
}

// CronTrigger fires entries at their scheduled minute, at most once per minute
type CronTrigger struct {
	config    CronTriggerConfig
	submitter Submitter
	entries   []Entry
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastFired map[string]time.Time
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(config CronTriggerConfig, submitter Submitter, entries []Entry, logger *zap.Logger) *CronTrigger {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultCronTriggerConfig().CheckInterval
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{
		config:    config,
		submitter: submitter,
		entries:   entries,
		logger:    logger.Named("cron"),
		lastFired: make(map[string]time.Time),
	}
}

// Start starts the trigger loop
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.runLoop(ctx)

	now := time.Now().In(c.config.Location)
	for _, e := range c.entries {
		c.logger.Info("Job scheduled",
			zap.String("entry", e.Name),
			zap.String("schedule", e.Schedule.String()),
			zap.Time("next_run_at", e.Schedule.Next(now)),
		)
	}
	return nil
}

// Stop stops the trigger loop
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.tick(now)
		}
	}
}

// tick submits every entry due at now that has not fired in this minute.
// It returns the number of jobs submitted.
func (c *CronTrigger) tick(now time.Time) int {
	now = now.In(c.config.Location)
	minute := now.Truncate(time.Minute)

	c.mu.Lock()
	defer c.mu.Unlock()

	fired := 0
	for _, e := range c.entries {
		if !e.Schedule.Matches(now) || c.lastFired[e.Name].Equal(minute) {
			continue
		}
		c.lastFired[e.Name] = minute

		job := e.Build(now)
		if err := c.submitter.Submit(job); err != nil {
			c.logger.Error("Failed to submit scheduled job",
				zap.String("entry", e.Name),
				zap.Error(err),
			)
			continue
		}
		fired++
		c.logger.Info("Scheduled job submitted",
			zap.String("entry", e.Name),
			zap.String("job_id", job.ID.String()),
			zap.String("job", job.Label()),
		)
	}
	return fired
}

// BillingSchedules are the cron expressions of the billing jobs
type BillingSchedules struct {
	GenerateBills string
	MarkOverdue   string
	ExpireCredits string
}

// DefaultBillingSchedules bills on the first of the month and sweeps nightly
func DefaultBillingSchedules() BillingSchedules {
	return BillingSchedules{
		GenerateBills: "0 3 1 * *",
		MarkOverdue:   "0 2 * * *",
		ExpireCredits: "30 2 * * *",
	}
}

// BillingEntries builds the cron entries of the billing jobs. Generation
// bills the month that just ended.
func BillingEntries(s BillingSchedules, maxRetries int) ([]Entry, error) {
	generate, err := ParseSchedule(s.GenerateBills)
	if err != nil {
		return nil, err
	}
	overdue, err := ParseSchedule(s.MarkOverdue)
	if err != nil {
		return nil, err
	}
	expire, err := ParseSchedule(s.ExpireCredits)
	if err != nil {
		return nil, err
	}

	return []Entry{
		{
			Name:     "generate_bills",
			Schedule: generate,
			Build: func(now time.Time) *Job {
				return NewGenerationJob(billing.PeriodOf(now).AddMonths(-1), now, maxRetries)
			},
		},
		{
			Name:     "mark_overdue",
			Schedule: overdue,
			Build:    func(now time.Time) *Job { return NewJob(JobMarkOverdue, now, maxRetries) },
		},
		{
			Name:     "expire_credits",
			Schedule: expire,
			Build:    func(now time.Time) *Job { return NewJob(JobExpireCredits, now, maxRetries) },
		},
	}, nil
}
