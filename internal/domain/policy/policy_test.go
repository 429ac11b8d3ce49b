package policy

import (
	"errors"
	"testing"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDefaultEngineConfig_IsValid(t *testing.T) {
	cfg := DefaultEngineConfig()

	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Epsilon().Equal(decimal.NewFromFloat(0.01)))
}

func TestEngineConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
	}{
		{"negative epsilon", func(c *EngineConfig) { c.MinAllocationEpsilon = decimal.NewFromInt(-1) }},
		{"unknown estimation", func(c *EngineConfig) { c.Estimation.Method = "guess" }},
		{"zero window", func(c *EngineConfig) { c.Estimation.WindowMonths = 0 }},
		{"negative grace", func(c *EngineConfig) { c.LateFee.GracePeriodDays = -1 }},
		{"min above max", func(c *EngineConfig) {
			c.LateFee.Minimum = decimal.NewFromInt(10)
			c.LateFee.Maximum = decimal.NewFromInt(5)
		}},
		{"negative due days", func(c *EngineConfig) { c.DueDays = -3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultEngineConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			assert.True(t, errors.Is(err, shared.ErrInvalidInput))
		})
	}
}

func TestEngineConfig_NoEstimationNeedsNoWindow(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Estimation = EstimationConfig{Method: EstimationNone}

	assert.NoError(t, cfg.Validate())
}
