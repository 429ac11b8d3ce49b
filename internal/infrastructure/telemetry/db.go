package telemetry

import (
	"context"
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// DBInstrumentation configures InstrumentDatabase
type DBInstrumentation struct {
	// Trace registers the otelgorm plugin
	Trace          bool
	TracerProvider trace.TracerProvider
	// FullSQL keeps bound values in span statements. Never in production.
	FullSQL bool
	// Meter receives connection pool gauges; nil skips them
	Meter metric.Meter
}

// InstrumentDatabase adds statement spans and pool gauges to db
func InstrumentDatabase(db *gorm.DB, opts DBInstrumentation) error {
	if opts.Trace {
		pluginOpts := []otelgorm.Option{otelgorm.WithDBName(db.Dialector.Name())}
		if opts.TracerProvider != nil {
			pluginOpts = append(pluginOpts, otelgorm.WithTracerProvider(opts.TracerProvider))
		}
		if !opts.FullSQL {
			pluginOpts = append(pluginOpts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(pluginOpts...)); err != nil {
			return fmt.Errorf("failed to register otelgorm plugin: %w", err)
		}
	}

	if opts.Meter != nil {
		if err := registerPoolGauges(db, opts.Meter); err != nil {
			return err
		}
	}
	return nil
}

// registerPoolGauges observes sql.DBStats on every collection
func registerPoolGauges(db *gorm.DB, meter metric.Meter) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	connections, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Open connections by state"),
		metric.WithUnit("{connections}"))
	if err != nil {
		return fmt.Errorf("failed to create pool gauge: %w", err)
	}
	maxOpen, err := meter.Int64ObservableGauge("db_pool_max_open_connections",
		metric.WithDescription("Configured connection limit"),
		metric.WithUnit("{connections}"))
	if err != nil {
		return fmt.Errorf("failed to create pool gauge: %w", err)
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_total",
		metric.WithDescription("Connections waited for"),
		metric.WithUnit("{waits}"))
	if err != nil {
		return fmt.Errorf("failed to create pool counter: %w", err)
	}
	waitTime, err := meter.Float64ObservableCounter("db_pool_wait_seconds_total",
		metric.WithDescription("Time spent waiting for a connection"),
		metric.WithUnit("s"))
	if err != nil {
		return fmt.Errorf("failed to create pool counter: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(connections, int64(stats.InUse), metric.WithAttributes(AttrDBPoolState.String("in_use")))
		o.ObserveInt64(connections, int64(stats.Idle), metric.WithAttributes(AttrDBPoolState.String("idle")))
		o.ObserveInt64(maxOpen, int64(stats.MaxOpenConnections))
		o.ObserveInt64(waits, stats.WaitCount)
		o.ObserveFloat64(waitTime, stats.WaitDuration.Seconds())
		return nil
	}, connections, maxOpen, waits, waitTime)
	if err != nil {
		return fmt.Errorf("failed to register pool callback: %w", err)
	}
	return nil
}
