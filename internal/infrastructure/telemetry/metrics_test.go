package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newManualMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestCounter(t *testing.T) {
	mp, reader := newManualMeter(t)
	ctx := context.Background()

	counter, err := telemetry.NewCounter(mp.Meter("test"), "payments_total", "Payments", "{payments}")
	require.NoError(t, err)
	counter.Add(ctx, 5, attribute.String("method", "card"))
	counter.Inc(ctx, attribute.String("method", "card"))

	total, ok := int64Sum(t, reader, "payments_total")
	require.True(t, ok)
	assert.Equal(t, int64(6), total)
}

func TestHistogram(t *testing.T) {
	mp, reader := newManualMeter(t)
	ctx := context.Background()

	h, err := telemetry.NewHistogram(mp.Meter("test"), telemetry.HistogramOpts{
		Name:        "generate_seconds",
		Description: "Generation time",
		Unit:        "s",
		Boundaries:  telemetry.OperationDurationBuckets,
	})
	require.NoError(t, err)
	h.RecordDuration(ctx, 250*time.Millisecond)
	h.Record(ctx, 2)

	m, ok := collect(t, reader, "generate_seconds")
	require.True(t, ok)
	data, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, uint64(2), data.DataPoints[0].Count)
	assert.InDelta(t, 2.25, data.DataPoints[0].Sum, 1e-9)
	assert.Equal(t, telemetry.OperationDurationBuckets, data.DataPoints[0].Bounds)
}

func TestHistogram_DefaultBoundaries(t *testing.T) {
	h, err := telemetry.NewHistogram(noop.NewMeterProvider().Meter("test"), telemetry.HistogramOpts{Name: "plain"})
	require.NoError(t, err)
	h.Record(context.Background(), 1)
}

func TestGauges(t *testing.T) {
	mp, reader := newManualMeter(t)
	ctx := context.Background()
	meter := mp.Meter("test")

	g, err := telemetry.NewGauge(meter, "open_bills", "Open bills", "{bills}")
	require.NoError(t, err)
	g.Record(ctx, 7)
	g.Record(ctx, 4)

	fg, err := telemetry.NewFloatGauge(meter, "credit_balance", "Credit", "{currency}")
	require.NoError(t, err)
	fg.Record(ctx, 12.5)

	latest, ok := int64Sum(t, reader, "open_bills")
	require.True(t, ok)
	assert.Equal(t, int64(4), latest)

	m, ok := collect(t, reader, "credit_balance")
	require.True(t, ok)
	data, ok := m.Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	assert.Equal(t, 12.5, data.DataPoints[0].Value)
}
