package billing

import (
	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/domain/tariff"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ChargeContext carries the meter attributes that affect pricing
type ChargeContext struct {
	MeterType metering.MeterType
	Category  string
}

// TierCharge is the priced share of consumption falling into one tier
type TierCharge struct {
	MinUnits    decimal.Decimal
	MaxUnits    *decimal.Decimal
	Units       decimal.Decimal
	RatePerUnit decimal.Decimal
	Amount      decimal.Decimal
}

// ChargeResult is the rounded outcome of pricing one meter's consumption
type ChargeResult struct {
	Consumption       decimal.Decimal
	ConsumptionCharge decimal.Decimal
	FixedCharge       decimal.Decimal
	Subtotal          decimal.Decimal
	Tax               decimal.Decimal
	Total             decimal.Decimal
	AverageRate       decimal.Decimal
	Breakdown         []TierCharge
}

// ChargeCalculator prices consumption against a tiered tariff.
// It is stateless and safe for concurrent use.
type ChargeCalculator struct{}

// NewChargeCalculator creates a new ChargeCalculator
func NewChargeCalculator() *ChargeCalculator {
	return &ChargeCalculator{}
}

// Calculate walks the tiers in ascending order, charging each tier for the
// part of the consumption that falls inside it. Tiers starting above the
// consumption are skipped. Intermediate values keep full precision; only the
// returned amounts are rounded to 2 places.
func (c *ChargeCalculator) Calculate(consumption decimal.Decimal, t *tariff.Tariff, ctx ChargeContext) (*ChargeResult, error) {
	if consumption.IsNegative() {
		return nil, ErrInvalidConsumption
	}
	if t == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Tariff is required")
	}

	rates := append([]tariff.Rate(nil), t.Rates...)
	sorted := tariff.Tariff{Rates: rates}
	sorted.SortRates()

	consumptionCharge := decimal.Zero
	remaining := consumption
	breakdown := make([]TierCharge, 0, len(rates))
	for _, rate := range sorted.Rates {
		if !remaining.IsPositive() {
			break
		}
		if rate.MinUnits.GreaterThan(consumption) {
			continue
		}
		units := remaining
		if w := rate.Width(); w != nil && w.LessThan(units) {
			units = *w
		}
		amount := units.Mul(rate.RatePerUnit)
		consumptionCharge = consumptionCharge.Add(amount)
		remaining = remaining.Sub(units)
		breakdown = append(breakdown, TierCharge{
			MinUnits:    rate.MinUnits,
			MaxUnits:    rate.MaxUnits,
			Units:       units,
			RatePerUnit: rate.RatePerUnit,
			Amount:      amount.Round(2),
		})
	}

	fixed := t.FixedChargeFor(ctx.MeterType == metering.MeterTypeBulk)
	subtotal := consumptionCharge.Add(fixed)
	tax := decimal.Zero
	if t.TaxRate.IsPositive() {
		tax = subtotal.Mul(t.TaxRate).Div(hundred)
	}
	avg := decimal.Zero
	if consumption.IsPositive() {
		avg = consumptionCharge.Div(consumption)
	}

	return &ChargeResult{
		Consumption:       consumption,
		ConsumptionCharge: consumptionCharge.Round(2),
		FixedCharge:       fixed.Round(2),
		Subtotal:          subtotal.Round(2),
		Tax:               tax.Round(2),
		Total:             subtotal.Add(tax).Round(2),
		AverageRate:       avg.Round(4),
		Breakdown:         breakdown,
	}, nil
}
