package tariff

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func ptr(v string) *decimal.Decimal {
	x := dec(v)
	return &x
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func tiered() []Rate {
	return []Rate{
		{MinUnits: dec("50"), RatePerUnit: dec("100")},
		{MinUnits: dec("0"), MaxUnits: ptr("10"), RatePerUnit: dec("50")},
		{MinUnits: dec("10"), MaxUnits: ptr("50"), RatePerUnit: dec("75")},
	}
}

func TestNewTariff_SortsRates(t *testing.T) {
	tr, err := NewTariff("RES-1", "Residential", "residential", day(2026, 1, 1), dec("0"), dec("0"), tiered())
	require.NoError(t, err)
	require.Len(t, tr.Rates, 3)
	assert.True(t, tr.Rates[0].MinUnits.IsZero())
	assert.True(t, tr.Rates[2].MinUnits.Equal(dec("50")))
	assert.Nil(t, tr.Rates[2].Width())
	assert.True(t, tr.Rates[1].Width().Equal(dec("40")))
}

func TestTariff_Validate(t *testing.T) {
	tests := []struct {
		name  string
		rates []Rate
		code  string
	}{
		{
			name: "overlapping tiers",
			rates: []Rate{
				{MinUnits: dec("0"), MaxUnits: ptr("20"), RatePerUnit: dec("1")},
				{MinUnits: dec("10"), RatePerUnit: dec("2")},
			},
			code: CodeOverlappingTiers,
		},
		{
			name: "tier after unbounded tier",
			rates: []Rate{
				{MinUnits: dec("0"), RatePerUnit: dec("1")},
				{MinUnits: dec("10"), RatePerUnit: dec("2")},
			},
			code: CodeOverlappingTiers,
		},
		{
			name:  "empty tier",
			rates: []Rate{{MinUnits: dec("5"), MaxUnits: ptr("5"), RatePerUnit: dec("1")}},
			code:  CodeInvalidTier,
		},
		{
			name:  "negative rate",
			rates: []Rate{{MinUnits: dec("0"), RatePerUnit: dec("-1")}},
			code:  CodeInvalidTier,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTariff("X", "X", "", day(2026, 1, 1), dec("0"), dec("0"), tt.rates)
			assert.Equal(t, tt.code, shared.ErrorCode(err))
		})
	}

	_, err := NewTariff("", "X", "", day(2026, 1, 1), dec("0"), dec("0"), nil)
	assert.True(t, errors.Is(err, shared.ErrInvalidInput))
}

func TestTariff_IsEffectiveOn(t *testing.T) {
	tr, err := NewTariff("A", "A", "", day(2026, 1, 1), dec("0"), dec("0"), nil)
	require.NoError(t, err)
	to := day(2026, 6, 30)
	tr.EffectiveTo = &to

	assert.False(t, tr.IsEffectiveOn(day(2025, 12, 31)))
	assert.True(t, tr.IsEffectiveOn(day(2026, 1, 1)))
	assert.True(t, tr.IsEffectiveOn(day(2026, 6, 30).Add(23*time.Hour)))
	assert.False(t, tr.IsEffectiveOn(day(2026, 7, 1)))
}

func TestTariff_FixedChargeFor(t *testing.T) {
	tr, err := NewTariff("A", "A", "", day(2026, 1, 1), dec("10"), dec("0"), nil)
	require.NoError(t, err)
	assert.True(t, tr.FixedChargeFor(true).Equal(dec("10")))

	tr.BulkFixedCharge = ptr("25")
	assert.True(t, tr.FixedChargeFor(true).Equal(dec("25")))
	assert.True(t, tr.FixedChargeFor(false).Equal(dec("10")))
}

func TestResolve(t *testing.T) {
	mk := func(code, category string, from time.Time) Tariff {
		tr, err := NewTariff(code, code, category, from, dec("0"), dec("0"), nil)
		require.NoError(t, err)
		return *tr
	}
	tariffs := []Tariff{
		mk("UNI-OLD", "", day(2025, 1, 1)),
		mk("UNI-NEW", "", day(2026, 1, 1)),
		mk("RES-OLD", "residential", day(2025, 1, 1)),
		mk("RES-NEW", "residential", day(2026, 3, 1)),
		mk("COM", "commercial", day(2027, 1, 1)),
	}

	got, err := Resolve(tariffs, "residential", day(2026, 4, 1))
	require.NoError(t, err)
	assert.Equal(t, "RES-NEW", got.Code)

	got, err = Resolve(tariffs, "residential", day(2026, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, "RES-OLD", got.Code)

	got, err = Resolve(tariffs, "commercial", day(2026, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, "UNI-NEW", got.Code, "falls back to universal while the exact tariff is not yet effective")

	_, err = Resolve(tariffs[2:4], "industrial", day(2026, 2, 1))
	assert.True(t, errors.Is(err, ErrNoTariff))
}
