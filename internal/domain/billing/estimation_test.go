package billing

import (
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/policy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monthlyHistory builds month-end readings from cumulative values, the first
// one dated at the end of the given month
func monthlyHistory(t *testing.T, year int, month time.Month, values ...string) []metering.MeterReading {
	t.Helper()
	meterID := uuid.New()
	out := make([]metering.MeterReading, 0, len(values))
	for i, v := range values {
		date := time.Date(year, month+time.Month(i)+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		r, err := metering.NewMeterReading(meterID, date, dec(v), metering.ReadingTypeActual)
		require.NoError(t, err)
		out = append(out, *r)
	}
	return out
}

func TestNewEstimator(t *testing.T) {
	e, err := NewEstimator(policy.EstimationConfig{Method: policy.EstimationNone})
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = NewEstimator(policy.EstimationConfig{Method: policy.EstimationTrailingAverage, WindowMonths: 3})
	require.NoError(t, err)
	assert.Equal(t, policy.EstimationTrailingAverage, e.Method())
	assert.Equal(t, "trailing_average", e.Name())
	assert.Equal(t, 4, e.HistoryDepth())

	_, err = NewEstimator(policy.EstimationConfig{Method: "magic"})
	assert.Error(t, err)
}

func TestTrailingAverageEstimator(t *testing.T) {
	e, err := NewEstimator(policy.EstimationConfig{Method: policy.EstimationTrailingAverage, WindowMonths: 3})
	require.NoError(t, err)

	// deltas 100, 10, 20, 30
	history := monthlyHistory(t, 2026, time.April, "0", "100", "110", "130", "160")
	units, ok := e.Estimate(history, Period{Year: 2026, Month: time.September})
	require.True(t, ok)
	assert.Equal(t, "20", units.String())

	_, ok = e.Estimate(history[:1], Period{Year: 2026, Month: time.September})
	assert.False(t, ok)
}

func TestTrailingAverageEstimator_SkipsResets(t *testing.T) {
	e, err := NewEstimator(policy.EstimationConfig{Method: policy.EstimationTrailingAverage, WindowMonths: 3})
	require.NoError(t, err)

	history := monthlyHistory(t, 2026, time.May, "900", "990", "5", "35")
	units, ok := e.Estimate(history, Period{Year: 2026, Month: time.September})
	require.True(t, ok)
	assert.Equal(t, "60", units.String())
}

func TestRepeatLastEstimator(t *testing.T) {
	e, err := NewEstimator(policy.EstimationConfig{Method: policy.EstimationRepeatLast, WindowMonths: 1})
	require.NoError(t, err)

	history := monthlyHistory(t, 2026, time.June, "10", "40", "45.5")
	// reverse order must not matter
	history[0], history[2] = history[2], history[0]
	units, ok := e.Estimate(history, Period{Year: 2026, Month: time.September})
	require.True(t, ok)
	assert.Equal(t, "5.5", units.String())
}

func TestSeasonalAdjustedEstimator(t *testing.T) {
	e, err := NewEstimator(policy.EstimationConfig{Method: policy.EstimationSeasonalAdjusted, WindowMonths: 2})
	require.NoError(t, err)

	// monthly deltas Aug 2025 .. Aug 2026:
	// 2025: Aug 10, Sep 40, Oct 10, Nov 10, Dec 10
	// 2026: Jan..Jun 10 each, Jul 20, Aug 20
	values := []string{"0", "10", "50", "60", "70", "80", "90", "100", "110", "120", "130", "140", "160", "180"}
	history := monthlyHistory(t, 2025, time.July, values...)

	units, ok := e.Estimate(history, Period{Year: 2026, Month: time.September})
	require.True(t, ok)
	// same month last year 40, baseline avg(Aug,Sep 2025) = 25, recent avg = 20
	assert.Equal(t, "32", units.String())

	// without a year of history it behaves like the trailing average
	units, ok = e.Estimate(history[len(history)-3:], Period{Year: 2026, Month: time.September})
	require.True(t, ok)
	assert.Equal(t, "20", units.String())
}
