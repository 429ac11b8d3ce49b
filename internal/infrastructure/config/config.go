package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/erp/utilitybilling/internal/domain/policy"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Event     EventConfig
	Telemetry TelemetryConfig
	Billing   BillingConfig
	Scheduler SchedulerConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file, ":memory:" for a throwaway database
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	// LockTimeout bounds the wait for an account row lock (postgres only)
	LockTimeout time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// EventConfig holds outbox processing configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable tracing
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // 0.0-1.0
	ServiceName       string
	Insecure          bool // development only

	MetricsEnabled        bool
	MetricsExportInterval time.Duration

	LogsEnabled bool
	LogsLevel   string

	DBTraceEnabled    bool
	DBLogFullSQL      bool // dev only
	DBSlowQueryThresh time.Duration

	ProfilingEnabled bool
	ProfilingServer  string
}

// BillingConfig holds the engine policies plus operational knobs
type BillingConfig struct {
	MinAllocationEpsilon   string
	PreventDuplicateBills  bool
	EstimationMethod       string
	EstimationWindowMonths int
	FullAllocationRequired bool
	LateFeeGracePeriodDays int
	LateFeePercentage      string
	LateFeeMinimum         string
	LateFeeMaximum         string
	DueDays                int
	CreditExpiryDays       int // 0 keeps credits forever
	BalanceCacheTTL        time.Duration
	BulkConcurrency        int
	OverdueBatchSize       int
}

// SchedulerConfig holds the periodic job settings. Schedules are cron
// expressions of the form "minute hour day-of-month * *".
type SchedulerConfig struct {
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	CheckInterval time.Duration
	Timezone      string
	GenerateBills string
	MarkOverdue   string
	ExpireCredits string
}

// Location returns the time zone the schedules are evaluated in
func (s SchedulerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// EngineConfig converts the billing section into engine policies
func (b BillingConfig) EngineConfig() (policy.EngineConfig, error) {
	parse := func(key, raw string) (decimal.Decimal, error) {
		if raw == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("billing.%s: %w", key, err)
		}
		return d, nil
	}

	epsilon, err := parse("min_allocation_epsilon", b.MinAllocationEpsilon)
	if err != nil {
		return policy.EngineConfig{}, err
	}
	pct, err := parse("late_fee_percentage", b.LateFeePercentage)
	if err != nil {
		return policy.EngineConfig{}, err
	}
	minimum, err := parse("late_fee_minimum", b.LateFeeMinimum)
	if err != nil {
		return policy.EngineConfig{}, err
	}
	maximum, err := parse("late_fee_maximum", b.LateFeeMaximum)
	if err != nil {
		return policy.EngineConfig{}, err
	}

	cfg := policy.EngineConfig{
		MinAllocationEpsilon:  epsilon,
		PreventDuplicateBills: b.PreventDuplicateBills,
		Estimation: policy.EstimationConfig{
			Method:       policy.EstimationMethod(b.EstimationMethod),
			WindowMonths: b.EstimationWindowMonths,
		},
		FullAllocationRequired: b.FullAllocationRequired,
		LateFee: policy.LateFeeConfig{
			GracePeriodDays: b.LateFeeGracePeriodDays,
			Percentage:      pct,
			Minimum:         minimum,
			Maximum:         maximum,
		},
		DueDays: b.DueDays,
	}
	if err := cfg.Validate(); err != nil {
		return policy.EngineConfig{}, err
	}
	return cfg, nil
}

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with ERP_ prefix (e.g., ERP_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/utilitybilling")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return load(v)
}

// LoadFile loads configuration from an explicit TOML file
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("ERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans whose zero value is not the default
	v.SetDefault("event.processor_enabled", true)
	v.SetDefault("event.cleanup_enabled", true)
	v.SetDefault("billing.prevent_duplicate_bills", true)
	v.SetDefault("billing.full_allocation_required", true)
	v.SetDefault("scheduler.retry_attempts", 3)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LockTimeout:     v.GetDuration("database.lock_timeout"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			CleanupInterval:  v.GetDuration("event.cleanup_interval"),
		},
		Telemetry: TelemetryConfig{
			Enabled:               v.GetBool("telemetry.enabled"),
			CollectorEndpoint:     v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:         v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:           v.GetString("telemetry.service_name"),
			Insecure:              v.GetBool("telemetry.insecure"),
			MetricsEnabled:        v.GetBool("telemetry.metrics_enabled"),
			MetricsExportInterval: v.GetDuration("telemetry.metrics_export_interval"),
			LogsEnabled:           v.GetBool("telemetry.logs_enabled"),
			LogsLevel:             v.GetString("telemetry.logs_level"),
			DBTraceEnabled:        v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:          v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh:     v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:      v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:       v.GetString("telemetry.profiling_server"),
		},
		Billing: BillingConfig{
			MinAllocationEpsilon:   v.GetString("billing.min_allocation_epsilon"),
			PreventDuplicateBills:  v.GetBool("billing.prevent_duplicate_bills"),
			EstimationMethod:       v.GetString("billing.estimation_method"),
			EstimationWindowMonths: v.GetInt("billing.estimation_window_months"),
			FullAllocationRequired: v.GetBool("billing.full_allocation_required"),
			LateFeeGracePeriodDays: v.GetInt("billing.late_fee_grace_period_days"),
			LateFeePercentage:      v.GetString("billing.late_fee_percentage"),
			LateFeeMinimum:         v.GetString("billing.late_fee_minimum"),
			LateFeeMaximum:         v.GetString("billing.late_fee_maximum"),
			DueDays:                v.GetInt("billing.due_days"),
			CreditExpiryDays:       v.GetInt("billing.credit_expiry_days"),
			BalanceCacheTTL:        v.GetDuration("billing.balance_cache_ttl"),
			BulkConcurrency:        v.GetInt("billing.bulk_concurrency"),
			OverdueBatchSize:       v.GetInt("billing.overdue_batch_size"),
		},
		Scheduler: SchedulerConfig{
			Workers:       v.GetInt("scheduler.workers"),
			QueueSize:     v.GetInt("scheduler.queue_size"),
			JobTimeout:    v.GetDuration("scheduler.job_timeout"),
			RetryAttempts: v.GetInt("scheduler.retry_attempts"),
			RetryDelay:    v.GetDuration("scheduler.retry_delay"),
			CheckInterval: v.GetDuration("scheduler.check_interval"),
			Timezone:      v.GetString("scheduler.timezone"),
			GenerateBills: v.GetString("scheduler.generate_bills"),
			MarkOverdue:   v.GetString("scheduler.mark_overdue"),
			ExpireCredits: v.GetString("scheduler.expire_credits"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "utility-billing"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "billing"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "billing.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LockTimeout == 0 {
		cfg.Database.LockTimeout = 5 * time.Second
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 5 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.Event.CleanupInterval == 0 {
		cfg.Event.CleanupInterval = time.Hour
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsExportInterval == 0 {
		cfg.Telemetry.MetricsExportInterval = 60 * time.Second
	}
	if cfg.Telemetry.LogsLevel == "" {
		cfg.Telemetry.LogsLevel = "info"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.ProfilingServer == "" {
		cfg.Telemetry.ProfilingServer = "http://localhost:4040"
	}

	defaults := policy.DefaultEngineConfig()
	if cfg.Billing.MinAllocationEpsilon == "" {
		cfg.Billing.MinAllocationEpsilon = defaults.MinAllocationEpsilon.String()
	}
	if cfg.Billing.EstimationMethod == "" {
		cfg.Billing.EstimationMethod = string(defaults.Estimation.Method)
	}
	if cfg.Billing.EstimationWindowMonths == 0 {
		cfg.Billing.EstimationWindowMonths = defaults.Estimation.WindowMonths
	}
	if cfg.Billing.LateFeeGracePeriodDays == 0 {
		cfg.Billing.LateFeeGracePeriodDays = defaults.LateFee.GracePeriodDays
	}
	if cfg.Billing.LateFeePercentage == "" {
		cfg.Billing.LateFeePercentage = defaults.LateFee.Percentage.String()
	}
	if cfg.Billing.DueDays == 0 {
		cfg.Billing.DueDays = defaults.DueDays
	}
	if cfg.Billing.BalanceCacheTTL == 0 {
		cfg.Billing.BalanceCacheTTL = 5 * time.Minute
	}
	if cfg.Billing.BulkConcurrency == 0 {
		cfg.Billing.BulkConcurrency = 4
	}
	if cfg.Billing.OverdueBatchSize == 0 {
		cfg.Billing.OverdueBatchSize = 500
	}

	if cfg.Scheduler.Workers == 0 {
		cfg.Scheduler.Workers = 2
	}
	if cfg.Scheduler.QueueSize == 0 {
		cfg.Scheduler.QueueSize = 32
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = time.Hour
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 5 * time.Minute
	}
	if cfg.Scheduler.CheckInterval == 0 {
		cfg.Scheduler.CheckInterval = 30 * time.Second
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}
	if cfg.Scheduler.GenerateBills == "" {
		cfg.Scheduler.GenerateBills = "0 3 1 * *"
	}
	if cfg.Scheduler.MarkOverdue == "" {
		cfg.Scheduler.MarkOverdue = "0 2 * * *"
	}
	if cfg.Scheduler.ExpireCredits == "" {
		cfg.Scheduler.ExpireCredits = "30 2 * * *"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Database.LockTimeout < 0 {
		return fmt.Errorf("database.lock_timeout cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "sqlite" {
			return fmt.Errorf("database.driver sqlite is not supported in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.Billing.BulkConcurrency < 1 {
		return fmt.Errorf("billing.bulk_concurrency must be at least 1")
	}
	if c.Billing.CreditExpiryDays < 0 {
		return fmt.Errorf("billing.credit_expiry_days cannot be negative")
	}
	if _, err := c.Billing.EngineConfig(); err != nil {
		return fmt.Errorf("invalid billing policy: %w", err)
	}

	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be at least 1")
	}
	if c.Scheduler.RetryAttempts < 0 {
		return fmt.Errorf("scheduler.retry_attempts cannot be negative")
	}
	if _, err := c.Scheduler.Location(); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
