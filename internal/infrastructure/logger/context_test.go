package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampledContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))
	FromContext(ctx).Info("attached")
	assert.Equal(t, 1, recorded.Len())
}

func TestWithRunID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, log := WithRunID(context.Background(), zap.New(core), "sweep-2026-10-01")
	assert.Equal(t, "sweep-2026-10-01", GetRunID(ctx))

	log.Info("direct")
	L(ctx).Info("through context")

	entries := recorded.All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "sweep-2026-10-01", e.ContextMap()["run_id"], e.Message)
	}
}

func TestWithRunID_GeneratesID(t *testing.T) {
	ctx, _ := WithRunID(context.Background(), zap.NewNop(), "")
	assert.Len(t, GetRunID(ctx), 36)
}

func TestWithActor(t *testing.T) {
	assert.Empty(t, GetActor(context.Background()))

	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithActor(WithContext(context.Background(), zap.New(core)), "clerk-7")
	assert.Equal(t, "clerk-7", GetActor(ctx))

	L(ctx).Info("Payment reversed")
	require.Equal(t, 1, recorded.Len())
	assert.Equal(t, "clerk-7", recorded.All()[0].ContextMap()["actor"])
}

func TestTraceFields(t *testing.T) {
	assert.Empty(t, TraceFields(context.Background()))

	ctx := sampledContext(t)
	core, recorded := observer.New(zapcore.InfoLevel)
	Enrich(ctx, zap.New(core)).Info("Bill generated")

	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
}

func TestEnrich_NilLogger(t *testing.T) {
	assert.NotNil(t, Enrich(context.Background(), nil))
}
