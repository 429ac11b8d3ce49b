package billing

import (
	"sort"

	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/policy"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// Estimator estimates the consumption of a meter that has no reading in a
// billing period from the meter's reading history.
type Estimator interface {
	strategy.Strategy
	Method() policy.EstimationMethod
	// HistoryDepth is the number of past readings the estimator needs
	HistoryDepth() int
	// Estimate returns the estimated consumption for the period. history holds
	// readings dated before the period start, in any order. ok is false when
	// the history is too short to estimate from.
	Estimate(history []metering.MeterReading, period Period) (units decimal.Decimal, ok bool)
}

// NewEstimator returns the estimator for the configured method, or nil when
// estimation is disabled
func NewEstimator(cfg policy.EstimationConfig) (Estimator, error) {
	window := cfg.WindowMonths
	if window < 1 {
		window = 1
	}
	switch cfg.Method {
	case policy.EstimationNone:
		return nil, nil
	case policy.EstimationTrailingAverage:
		return &TrailingAverageEstimator{base: newEstimatorBase(cfg.Method, "Mean of recent reading intervals"), window: window}, nil
	case policy.EstimationRepeatLast:
		return &RepeatLastEstimator{base: newEstimatorBase(cfg.Method, "Consumption of the last reading interval")}, nil
	case policy.EstimationSeasonalAdjusted:
		return &SeasonalAdjustedEstimator{
			base:     newEstimatorBase(cfg.Method, "Same month last year scaled by the recent trend"),
			window:   window,
			fallback: &TrailingAverageEstimator{window: window},
		}, nil
	}
	return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unknown estimation method "+string(cfg.Method))
}

type base struct {
	strategy.Descriptor
	method policy.EstimationMethod
}

func newEstimatorBase(method policy.EstimationMethod, description string) base {
	return base{
		Descriptor: strategy.Describe(string(method), strategy.KindEstimation, description),
		method:     method,
	}
}

// Method returns the estimation method
func (b base) Method() policy.EstimationMethod { return b.method }

// interval is the consumption between two consecutive readings, dated by the later one
type interval struct {
	period Period
	units  decimal.Decimal
}

// intervals returns reading-to-reading consumption, oldest first. Intervals
// spanning a meter reset carry no usable consumption and are dropped.
func intervals(history []metering.MeterReading) []interval {
	readings := append([]metering.MeterReading(nil), history...)
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].ReadingDate.Before(readings[j].ReadingDate)
	})
	out := make([]interval, 0, len(readings))
	for i := 1; i < len(readings); i++ {
		c := metering.Consumption(&readings[i-1], &readings[i])
		if c.Reset {
			continue
		}
		out = append(out, interval{period: PeriodOf(readings[i].ReadingDate), units: c.Units})
	}
	return out
}

func mean(iv []interval) decimal.Decimal {
	sum := decimal.Zero
	for _, i := range iv {
		sum = sum.Add(i.units)
	}
	return sum.Div(decimal.NewFromInt(int64(len(iv))))
}

func lastN(iv []interval, n int) []interval {
	if len(iv) > n {
		return iv[len(iv)-n:]
	}
	return iv
}

// TrailingAverageEstimator uses the mean of the last N intervals
type TrailingAverageEstimator struct {
	base
	window int
}

// HistoryDepth returns window+1 readings
func (e *TrailingAverageEstimator) HistoryDepth() int { return e.window + 1 }

// Estimate implements Estimator
func (e *TrailingAverageEstimator) Estimate(history []metering.MeterReading, _ Period) (decimal.Decimal, bool) {
	iv := intervals(history)
	if len(iv) == 0 {
		return decimal.Zero, false
	}
	return mean(lastN(iv, e.window)).Round(2), true
}

// RepeatLastEstimator repeats the last interval
type RepeatLastEstimator struct {
	base
}

// HistoryDepth returns 2 readings
func (e *RepeatLastEstimator) HistoryDepth() int { return 2 }

// Estimate implements Estimator
func (e *RepeatLastEstimator) Estimate(history []metering.MeterReading, _ Period) (decimal.Decimal, bool) {
	iv := intervals(history)
	if len(iv) == 0 {
		return decimal.Zero, false
	}
	return iv[len(iv)-1].units.Round(2), true
}

// SeasonalAdjustedEstimator takes the interval of the same month one year
// earlier and scales it by the ratio of the recent average to the average
// around that month. Without a year of history it falls back to the trailing
// average.
type SeasonalAdjustedEstimator struct {
	base
	window   int
	fallback *TrailingAverageEstimator
}

// HistoryDepth covers a full year plus the comparison window
func (e *SeasonalAdjustedEstimator) HistoryDepth() int { return 13 + e.window }

// Estimate implements Estimator
func (e *SeasonalAdjustedEstimator) Estimate(history []metering.MeterReading, period Period) (decimal.Decimal, bool) {
	iv := intervals(history)
	target := period.AddMonths(-12)
	at := -1
	for i := len(iv) - 1; i >= 0; i-- {
		if iv[i].period == target {
			at = i
			break
		}
	}
	if at < 0 {
		return e.fallback.Estimate(history, period)
	}

	seasonal := iv[at].units
	baseline := mean(lastN(iv[:at+1], e.window))
	if !baseline.IsPositive() {
		return seasonal.Round(2), true
	}
	recent := mean(lastN(iv, e.window))
	return seasonal.Mul(recent).Div(baseline).Round(2), true
}
