package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/policy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"ERP_APP_NAME",
	"ERP_APP_ENV",
	"ERP_DATABASE_DRIVER",
	"ERP_DATABASE_HOST",
	"ERP_DATABASE_PORT",
	"ERP_DATABASE_USER",
	"ERP_DATABASE_PASSWORD",
	"ERP_DATABASE_DBNAME",
	"ERP_DATABASE_SSLMODE",
	"ERP_DATABASE_MAX_OPEN_CONNS",
	"ERP_DATABASE_MAX_IDLE_CONNS",
	"ERP_DATABASE_LOCK_TIMEOUT",
	"ERP_EVENT_PROCESSOR_ENABLED",
	"ERP_BILLING_MIN_ALLOCATION_EPSILON",
	"ERP_BILLING_PREVENT_DUPLICATE_BILLS",
	"ERP_BILLING_ESTIMATION_METHOD",
	"ERP_BILLING_ESTIMATION_WINDOW_MONTHS",
	"ERP_BILLING_LATE_FEE_PERCENTAGE",
	"ERP_BILLING_LATE_FEE_MINIMUM",
	"ERP_BILLING_LATE_FEE_MAXIMUM",
	"ERP_BILLING_BULK_CONCURRENCY",
	"ERP_TELEMETRY_SAMPLING_RATIO",
	"ERP_TELEMETRY_DB_LOG_FULL_SQL",
	"ERP_SCHEDULER_WORKERS",
	"ERP_SCHEDULER_RETRY_ATTEMPTS",
	"ERP_SCHEDULER_TIMEZONE",
	"ERP_SCHEDULER_GENERATE_BILLS",
}

// withCleanEnv saves and clears every config variable, restoring them when
// the test finishes
func withCleanEnv(t *testing.T) {
	t.Helper()
	original := make(map[string]string, len(configEnvKeys))
	for _, k := range configEnvKeys {
		original[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for k, v := range original {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		withCleanEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "utility-billing", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "billing", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, 5*time.Second, cfg.Database.LockTimeout)
		assert.True(t, cfg.Event.ProcessorEnabled)
		assert.Equal(t, 100, cfg.Event.BatchSize)
		assert.Equal(t, "utility-billing", cfg.Telemetry.ServiceName)
		assert.True(t, cfg.Billing.PreventDuplicateBills)
		assert.True(t, cfg.Billing.FullAllocationRequired)
		assert.Equal(t, 4, cfg.Billing.BulkConcurrency)
		assert.Equal(t, 2, cfg.Scheduler.Workers)
		assert.Equal(t, 3, cfg.Scheduler.RetryAttempts)
		assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
		assert.Equal(t, "0 3 1 * *", cfg.Scheduler.GenerateBills)
		assert.Equal(t, "0 2 * * *", cfg.Scheduler.MarkOverdue)
	})

	t.Run("loads scheduler settings", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_SCHEDULER_WORKERS", "4")
		os.Setenv("ERP_SCHEDULER_RETRY_ATTEMPTS", "0")
		os.Setenv("ERP_SCHEDULER_TIMEZONE", "Europe/Berlin")
		os.Setenv("ERP_SCHEDULER_GENERATE_BILLS", "15 4 2 * *")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Scheduler.Workers)
		assert.Equal(t, 0, cfg.Scheduler.RetryAttempts)
		assert.Equal(t, "15 4 2 * *", cfg.Scheduler.GenerateBills)
		loc, err := cfg.Scheduler.Location()
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", loc.String())
	})

	t.Run("rejects an unknown scheduler timezone", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_SCHEDULER_TIMEZONE", "Mars/Olympus")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scheduler.timezone")
	})

	t.Run("loads values from environment variables with ERP prefix", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_APP_NAME", "billing-test")
		os.Setenv("ERP_DATABASE_DRIVER", "sqlite")
		os.Setenv("ERP_DATABASE_HOST", "testdb.local")
		os.Setenv("ERP_DATABASE_PORT", "5433")
		os.Setenv("ERP_DATABASE_LOCK_TIMEOUT", "750ms")
		os.Setenv("ERP_EVENT_PROCESSOR_ENABLED", "false")
		os.Setenv("ERP_BILLING_PREVENT_DUPLICATE_BILLS", "false")
		os.Setenv("ERP_BILLING_ESTIMATION_METHOD", "repeat_last")
		os.Setenv("ERP_BILLING_BULK_CONCURRENCY", "8")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "billing-test", cfg.App.Name)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 750*time.Millisecond, cfg.Database.LockTimeout)
		assert.False(t, cfg.Event.ProcessorEnabled)
		assert.False(t, cfg.Billing.PreventDuplicateBills)
		assert.Equal(t, "repeat_last", cfg.Billing.EstimationMethod)
		assert.Equal(t, 8, cfg.Billing.BulkConcurrency)
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("ERP_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects an invalid billing policy", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_BILLING_ESTIMATION_METHOD", "guess")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid billing policy")
	})

	t.Run("rejects a malformed decimal", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_BILLING_LATE_FEE_PERCENTAGE", "two")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "late_fee_percentage")
	})

	t.Run("rejects sampling ratio out of range", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	t.Run("requires a database password", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_APP_ENV", "production")
		os.Setenv("ERP_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required")
	})

	t.Run("rejects disabled sslmode", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_APP_ENV", "production")
		os.Setenv("ERP_DATABASE_PASSWORD", "secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sslmode")
	})

	t.Run("rejects sqlite", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_APP_ENV", "production")
		os.Setenv("ERP_DATABASE_DRIVER", "sqlite")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sqlite")
	})

	t.Run("rejects full SQL logging", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_APP_ENV", "production")
		os.Setenv("ERP_DATABASE_PASSWORD", "secret")
		os.Setenv("ERP_DATABASE_SSLMODE", "require")
		os.Setenv("ERP_TELEMETRY_DB_LOG_FULL_SQL", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db_log_full_sql")
	})

	t.Run("accepts a complete production config", func(t *testing.T) {
		withCleanEnv(t)
		os.Setenv("ERP_APP_ENV", "production")
		os.Setenv("ERP_DATABASE_PASSWORD", "secret")
		os.Setenv("ERP_DATABASE_SSLMODE", "require")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestLoadFile(t *testing.T) {
	withCleanEnv(t)

	path := filepath.Join(t.TempDir(), "billing.toml")
	content := `
[database]
driver = "sqlite"
path = "/var/lib/billing/billing.db"

[billing]
min_allocation_epsilon = "0.05"
late_fee_percentage = "1.5"
late_fee_maximum = "500"
due_days = 21
full_allocation_required = false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/billing/billing.db", cfg.Database.DSN())
	assert.Equal(t, 21, cfg.Billing.DueDays)
	assert.False(t, cfg.Billing.FullAllocationRequired)

	t.Run("env overrides file", func(t *testing.T) {
		os.Setenv("ERP_BILLING_MIN_ALLOCATION_EPSILON", "0.10")
		t.Cleanup(func() { os.Unsetenv("ERP_BILLING_MIN_ALLOCATION_EPSILON") })

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "0.10", cfg.Billing.MinAllocationEpsilon)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
		require.Error(t, err)
	})
}

func TestBillingConfig_EngineConfig(t *testing.T) {
	t.Run("defaults round trip to the default policies", func(t *testing.T) {
		withCleanEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		engine, err := cfg.Billing.EngineConfig()
		require.NoError(t, err)

		defaults := policy.DefaultEngineConfig()
		assert.True(t, defaults.MinAllocationEpsilon.Equal(engine.MinAllocationEpsilon))
		assert.Equal(t, defaults.Estimation, engine.Estimation)
		assert.True(t, defaults.LateFee.Percentage.Equal(engine.LateFee.Percentage))
		assert.Equal(t, defaults.LateFee.GracePeriodDays, engine.LateFee.GracePeriodDays)
		assert.Equal(t, defaults.DueDays, engine.DueDays)
		assert.True(t, engine.PreventDuplicateBills)
		assert.True(t, engine.FullAllocationRequired)
	})

	t.Run("parses decimals", func(t *testing.T) {
		b := BillingConfig{
			MinAllocationEpsilon:   "0.02",
			EstimationMethod:       "none",
			LateFeePercentage:      "3",
			LateFeeMinimum:         "10",
			LateFeeMaximum:         "100",
			DueDays:                30,
			FullAllocationRequired: true,
		}
		engine, err := b.EngineConfig()
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("0.02").Equal(engine.MinAllocationEpsilon))
		assert.True(t, decimal.NewFromInt(10).Equal(engine.LateFee.Minimum))
		assert.True(t, decimal.NewFromInt(100).Equal(engine.LateFee.Maximum))
		assert.Equal(t, policy.EstimationNone, engine.Estimation.Method)
	})

	t.Run("minimum above maximum is rejected", func(t *testing.T) {
		b := BillingConfig{
			EstimationMethod: "none",
			LateFeeMinimum:   "200",
			LateFeeMaximum:   "100",
		}
		_, err := b.EngineConfig()
		require.Error(t, err)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid postgres DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})

	t.Run("sqlite uses the path", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: "sqlite", Path: ":memory:"}
		assert.Equal(t, ":memory:", cfg.DSN())
	})
}
