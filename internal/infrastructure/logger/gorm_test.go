package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGormLogger(level gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestNewGormLogger_Options(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info,
		WithSlowThreshold(time.Second),
		WithIgnoreRecordNotFoundError(false),
	)
	assert.Equal(t, time.Second, gl.slowThreshold)
	assert.False(t, gl.ignoreRecordNotFoundError)

	assert.NotNil(t, NewGormLogger(nil, gormlogger.Warn))
}

func TestGormLogger_LogModeCopies(t *testing.T) {
	gl, _ := newObservedGormLogger(gormlogger.Info)
	quiet, ok := gl.LogMode(gormlogger.Error).(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Error, quiet.logLevel)
	assert.Equal(t, gormlogger.Info, gl.logLevel)
}

func TestGormLogger_Trace(t *testing.T) {
	ctx, _ := WithRunID(context.Background(), zap.NewNop(), "run-42")

	t.Run("query carries the run id", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Info)
		gl.Trace(ctx, time.Now(), statement("SELECT * FROM bills", 3), nil)

		entries := recorded.All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		fields := entries[0].ContextMap()
		assert.Equal(t, "run-42", fields["run_id"])
		assert.Equal(t, "SELECT * FROM bills", fields["sql"])
		assert.Equal(t, int64(3), fields["rows"])
	})

	t.Run("errors are logged", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Error)
		gl.Trace(ctx, time.Now(), statement("UPDATE accounts", 0), errors.New("syntax error"))

		entries := recorded.FilterMessage("Statement failed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, "syntax error", entries[0].ContextMap()["error"])
	})

	t.Run("lock contention warns", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Error)
		for _, err := range []error{
			&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"},
			&pgconn.PgError{Code: "40P01", Message: "deadlock detected"},
			errors.New("database is locked (5) (SQLITE_BUSY)"),
		} {
			gl.Trace(ctx, time.Now(), statement("SELECT * FROM accounts FOR UPDATE", 0), err)
		}

		entries := recorded.FilterMessage("Lock contention").All()
		assert.Len(t, entries, 3)
		assert.Zero(t, recorded.FilterMessage("Statement failed").Len())
	})

	t.Run("record not found is ignored", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Info)
		gl.Trace(ctx, time.Now(), statement("SELECT 1", 0), gormlogger.ErrRecordNotFound)
		assert.Zero(t, recorded.Len())

		gl, recorded = newObservedGormLogger(gormlogger.Info, WithIgnoreRecordNotFoundError(false))
		gl.Trace(ctx, time.Now(), statement("SELECT 1", 0), gormlogger.ErrRecordNotFound)
		assert.Equal(t, 1, recorded.Len())
	})

	t.Run("slow statements warn", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Warn, WithSlowThreshold(time.Millisecond))
		gl.Trace(ctx, time.Now().Add(-time.Second), statement("SELECT pg_sleep(1)", 1), nil)

		entries := recorded.FilterMessage("Slow statement").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		gl, recorded := newObservedGormLogger(gormlogger.Silent)
		gl.Trace(ctx, time.Now(), statement("SELECT 1", 1), errors.New("boom"))
		assert.Zero(t, recorded.Len())
	})
}

func TestGormLogger_Messages(t *testing.T) {
	gl, recorded := newObservedGormLogger(gormlogger.Warn)
	ctx := context.Background()

	gl.Info(ctx, "migrated %d tables", 11)
	gl.Warn(ctx, "slow migration %s", "bills")
	gl.Error(ctx, "failed %s", "accounts")

	assert.Zero(t, recorded.FilterMessage("migrated 11 tables").Len(), "info is below warn")
	assert.Equal(t, 1, recorded.FilterMessage("slow migration bills").Len())
	assert.Equal(t, 1, recorded.FilterMessage("failed accounts").Len())
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"warning": gormlogger.Warn,
		"info":    gormlogger.Info,
		"debug":   gormlogger.Info,
		"bogus":   gormlogger.Warn,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapGormLogLevel(in), in)
	}
}
