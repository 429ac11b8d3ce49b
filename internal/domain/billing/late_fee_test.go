package billing

import (
	"testing"

	"github.com/erp/utilitybilling/internal/domain/policy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLateFeePolicy_Calculate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    policy.LateFeeConfig
		amount string
		days   int
		want   string
	}{
		{"within grace", policy.LateFeeConfig{GracePeriodDays: 5, Percentage: dec("2")}, "1000", 5, "0"},
		{"percentage", policy.LateFeeConfig{GracePeriodDays: 5, Percentage: dec("2")}, "1000", 6, "20"},
		{"minimum", policy.LateFeeConfig{Percentage: dec("1"), Minimum: dec("15")}, "100", 1, "15"},
		{"capped", policy.LateFeeConfig{Percentage: dec("10"), Maximum: dec("50")}, "1000", 1, "50"},
		{"zero max means no cap", policy.LateFeeConfig{Percentage: dec("10")}, "1000", 1, "100"},
		{"nothing owed", policy.LateFeeConfig{Percentage: dec("10"), Minimum: dec("5")}, "0", 30, "0"},
		{"rounded", policy.LateFeeConfig{Percentage: dec("1.5")}, "333.33", 1, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewLateFeePolicy(tt.cfg).Calculate(dec(tt.amount), tt.days)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
	assert.True(t, decimal.Zero.Equal(NewLateFeePolicy(policy.LateFeeConfig{}).Calculate(dec("1"), 0)))
}
