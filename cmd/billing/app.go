package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	appbilling "github.com/erp/utilitybilling/internal/application/billing"
	appevent "github.com/erp/utilitybilling/internal/application/event"
	"github.com/erp/utilitybilling/internal/application/reconciliation"
	"github.com/erp/utilitybilling/internal/infrastructure/cache"
	"github.com/erp/utilitybilling/internal/infrastructure/config"
	"github.com/erp/utilitybilling/internal/infrastructure/event"
	"github.com/erp/utilitybilling/internal/infrastructure/logger"
	"github.com/erp/utilitybilling/internal/infrastructure/persistence"
	"github.com/erp/utilitybilling/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const meterName = "github.com/erp/utilitybilling"

// app holds the wired engines of one command run
type app struct {
	cfg *config.Config
	log *zap.Logger

	telemetry  *telemetry.Providers
	db         *persistence.Database
	cache      cache.Store
	metrics    *telemetry.BillingMetrics
	serializer *event.EventSerializer

	billing        *appbilling.BillingEngine
	distribution   *appbilling.DistributionService
	reconciliation *reconciliation.ReconciliationEngine
	balances       *reconciliation.BalanceService
	outbox         *appevent.OutboxService
}

// newApp connects to the database and builds every service. The caller owns
// the returned app and must Close it.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	// Telemetry first so the logger can tee into the OTLP log pipeline
	bootstrap, err := logger.New(logConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	a.telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, bootstrap)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	if core := a.telemetry.LogCore(); core != nil {
		if a.log, err = logger.New(logConfig(cfg), core); err != nil {
			return nil, fmt.Errorf("initialize logger: %w", err)
		}
	} else {
		a.log = bootstrap
	}
	a.log = a.log.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	gormLog := logger.NewGormLogger(a.log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithIgnoreRecordNotFoundError(true),
	)
	a.db, err = persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		return nil, err
	}
	if a.db.Driver() == "sqlite" {
		if err := a.db.AutoMigrate(ctx); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	instrumentation := telemetry.DBInstrumentation{
		Trace:          cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		TracerProvider: a.telemetry.TracerProvider(),
		FullSQL:        cfg.Telemetry.DBLogFullSQL,
	}
	if a.telemetry.MetricsEnabled() {
		instrumentation.Meter = a.telemetry.Meter(meterName)
		a.metrics, err = telemetry.NewBillingMetrics(telemetry.BillingMetricsConfig{
			Meter:         instrumentation.Meter,
			Logger:        a.log,
			StateProvider: telemetry.NewGormBillingStateProvider(a.db.DB),
		})
		if err != nil {
			return nil, fmt.Errorf("initialize billing metrics: %w", err)
		}
	}
	if err := telemetry.InstrumentDatabase(a.db.DB, instrumentation); err != nil {
		return nil, err
	}

	a.cache, err = cache.NewBalanceCacheFactory(cfg.Redis, cfg.Billing.BalanceCacheTTL, cache.WithLogger(a.log)).CreateStore()
	if err != nil {
		return nil, fmt.Errorf("initialize balance cache: %w", err)
	}

	engineCfg, err := cfg.Billing.EngineConfig()
	if err != nil {
		return nil, err
	}
	a.serializer = event.NewEngineEventSerializer()
	billingScope := persistence.NewGormBillingTransactionScope(a.db.DB, a.serializer, cfg.Database.LockTimeout)
	reconScope := persistence.NewGormReconciliationTransactionScope(a.db.DB, a.serializer, cfg.Database.LockTimeout)

	a.billing, err = appbilling.NewBillingEngine(billingScope, engineCfg, a.log)
	if err != nil {
		return nil, err
	}
	a.billing.SetMetrics(a.metrics)
	a.billing.SetCacheInvalidator(a.cache)
	a.billing.SetOverdueBatchSize(cfg.Billing.OverdueBatchSize)

	a.distribution = appbilling.NewDistributionService(billingScope, engineCfg.FullAllocationRequired, a.log)
	a.distribution.SetMetrics(a.metrics)

	a.reconciliation, err = reconciliation.NewReconciliationEngine(reconScope, engineCfg, a.log)
	if err != nil {
		return nil, err
	}
	a.reconciliation.SetMetrics(a.metrics)
	a.reconciliation.SetBalanceCache(a.cache)
	a.reconciliation.SetCreditExpiryDays(cfg.Billing.CreditExpiryDays)
	a.reconciliation.SetExpiryBatchSize(cfg.Billing.OverdueBatchSize)

	a.balances = reconciliation.NewBalanceService(reconScope, a.cache, a.log)
	a.outbox = appevent.NewOutboxService(event.NewGormOutboxRepository(a.db.DB), a.log)
	return a, nil
}

// Close releases resources in reverse order of creation
func (a *app) Close(ctx context.Context) {
	var errs []error
	a.metrics.Stop()
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil && a.log != nil {
		a.log.Warn("Shutdown finished with errors", zap.Error(err))
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func logConfig(cfg *config.Config) *logger.Config {
	return &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: time.RFC3339Nano,
	}
}
