package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appevent "github.com/erp/utilitybilling/internal/application/event"
	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/infrastructure/event"
	"github.com/erp/utilitybilling/internal/infrastructure/scheduler"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

// newOutboxRelay builds the processor that publishes committed events to an
// in-process bus with the log handler subscribed.
func (a *app) newOutboxRelay() (*event.OutboxProcessor, *event.InMemoryEventBus) {
	bus := event.NewInMemoryEventBus(a.log)
	bus.Subscribe(event.NewLogHandler(a.log))
	processor := event.NewOutboxProcessor(
		event.NewGormOutboxRepository(a.db.DB),
		bus,
		a.serializer,
		event.OutboxProcessorConfig{
			BatchSize:        a.cfg.Event.BatchSize,
			PollInterval:     a.cfg.Event.PollInterval,
			CleanupEnabled:   a.cfg.Event.CleanupEnabled,
			CleanupRetention: a.cfg.Event.CleanupRetention,
			CleanupInterval:  a.cfg.Event.CleanupInterval,
		},
		a.log,
	)
	return processor, bus
}

type service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// runServices starts every service in order, blocks until ctx is done and
// stops them in reverse order.
func runServices(ctx context.Context, log *zap.Logger, services ...service) error {
	started := make([]service, 0, len(services))
	stopAll := func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for i := len(started) - 1; i >= 0; i-- {
			errs = append(errs, started[i].Stop(stopCtx))
		}
		return errors.Join(errs...)
	}

	for _, s := range services {
		if err := s.Start(ctx); err != nil {
			return errors.Join(err, stopAll())
		}
		started = append(started, s)
	}
	log.Info("Running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info("Shutting down")
	return stopAll()
}

func runOutbox(ctx context.Context, a *app, _ string, args []string) error {
	fs := newFlagSet("outbox")
	stats := fs.Bool("stats", false, "Print entry counts by status")
	dead := fs.Bool("dead", false, "List dead letter entries")
	page := fs.Int("page", 1, "Dead letter page")
	retry := fs.String("retry", "", "Requeue a dead entry by ID, or all of them")
	once := fs.Bool("once", false, "Process one batch and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *stats:
		s, err := a.outbox.GetStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(s)
	case *dead:
		list, err := a.outbox.GetDeadLetterEntries(ctx, appevent.OutboxFilter{Page: *page})
		if err != nil {
			return err
		}
		return printJSON(list)
	case *retry == "all":
		n, err := a.outbox.RetryAllDeadEntries(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]int64{"requeued": n})
	case *retry != "":
		id, err := requireID("retry", *retry)
		if err != nil {
			return err
		}
		entry, err := a.outbox.RetryDeadEntry(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(entry)
	}

	processor, bus := a.newOutboxRelay()
	if *once {
		result, err := processor.ProcessOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(result)
	}
	a.metrics.StartPeriodicCollection(ctx, a.cfg.Telemetry.MetricsExportInterval)
	return runServices(ctx, a.log, bus, processor)
}

func parseJobKind(value string) (scheduler.JobKind, error) {
	kind := scheduler.JobKind(strings.ToUpper(value))
	switch kind {
	case scheduler.JobGenerateBills, scheduler.JobMarkOverdue, scheduler.JobExpireCredits:
		return kind, nil
	}
	return "", fmt.Errorf("%w: %s", scheduler.ErrUnknownJobKind, value)
}

func runSchedule(ctx context.Context, a *app, _ string, args []string) error {
	fs := newFlagSet("schedule")
	run := fs.String("run", "", "Run one job now: GENERATE_BILLS, MARK_OVERDUE or EXPIRE_CREDITS")
	period := fs.String("period", "", "Period for -run GENERATE_BILLS (default: last month)")
	history := fs.Bool("history", false, "List recent job runs")
	limit := fs.Int("limit", 20, "Entries for -history")
	if err := fs.Parse(args); err != nil {
		return err
	}

	recorder := scheduler.NewGormJobRecorder(a.db.DB)
	if *history {
		runs, err := recorder.History(ctx, *limit)
		if err != nil {
			return err
		}
		return printJSON(runs)
	}

	executor := scheduler.NewBillingJobExecutor(a.billing, a.billing, a.reconciliation, a.cfg.Billing.BulkConcurrency, a.log)
	loc, err := a.cfg.Scheduler.Location()
	if err != nil {
		return err
	}

	if *run != "" {
		kind, err := parseJobKind(*run)
		if err != nil {
			return err
		}
		now := time.Now().In(loc)
		job := scheduler.NewJob(kind, now, 0)
		if kind == scheduler.JobGenerateBills {
			job.Period = billing.PeriodOf(now).AddMonths(-1)
			if *period != "" {
				if job.Period, err = billing.ParsePeriod(*period); err != nil {
					return fmt.Errorf("-period: %w", err)
				}
			}
		}
		return runJobOnce(ctx, recorder, executor, job)
	}

	entries, err := scheduler.BillingEntries(scheduler.BillingSchedules{
		GenerateBills: a.cfg.Scheduler.GenerateBills,
		MarkOverdue:   a.cfg.Scheduler.MarkOverdue,
		ExpireCredits: a.cfg.Scheduler.ExpireCredits,
	}, a.cfg.Scheduler.RetryAttempts)
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		MaxConcurrentJobs: a.cfg.Scheduler.Workers,
		QueueSize:         a.cfg.Scheduler.QueueSize,
		JobTimeout:        a.cfg.Scheduler.JobTimeout,
		RetryAttempts:     a.cfg.Scheduler.RetryAttempts,
		RetryDelay:        a.cfg.Scheduler.RetryDelay,
	}, executor, a.log)
	sched.SetRecorder(recorder)
	trigger := scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
		CheckInterval: a.cfg.Scheduler.CheckInterval,
		Location:      loc,
	}, sched, entries, a.log)

	services := []service{sched, trigger}
	if a.cfg.Event.ProcessorEnabled {
		processor, bus := a.newOutboxRelay()
		services = append(services, bus, processor)
	}
	a.metrics.StartPeriodicCollection(ctx, a.cfg.Telemetry.MetricsExportInterval)
	return runServices(ctx, a.log, services...)
}

// runJobOnce executes job in the foreground and records the run like the
// scheduler does.
func runJobOnce(ctx context.Context, recorder *scheduler.GormJobRecorder, executor *scheduler.BillingJobExecutor, job *scheduler.Job) error {
	job.Start(time.Now())
	if err := recorder.RecordStart(ctx, job); err != nil {
		return err
	}
	summary, err := executor.Execute(ctx, job)
	if err != nil {
		job.Fail(time.Now(), err.Error())
	} else {
		job.Complete(time.Now(), summary)
	}
	// The run row is written even when ctx was cancelled mid-run
	if recErr := recorder.RecordFinish(context.WithoutCancel(ctx), job); recErr != nil {
		err = errors.Join(err, recErr)
	}
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"run_id":  job.ID,
		"job":     job.Label(),
		"summary": summary,
	})
}
