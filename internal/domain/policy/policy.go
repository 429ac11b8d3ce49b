// Package policy defines the engine's tunable business policies.
// Engines receive an EngineConfig at construction time and never read
// ambient configuration on their own.
package policy

import (
	"fmt"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// EstimationMethod selects how a missing reading is estimated
type EstimationMethod string

const (
	EstimationNone             EstimationMethod = "none"
	EstimationTrailingAverage  EstimationMethod = "trailing_average"
	EstimationRepeatLast       EstimationMethod = "repeat_last"
	EstimationSeasonalAdjusted EstimationMethod = "seasonal_adjusted"
)

// IsValid checks if the method is known
func (m EstimationMethod) IsValid() bool {
	switch m {
	case EstimationNone, EstimationTrailingAverage, EstimationRepeatLast, EstimationSeasonalAdjusted:
		return true
	}
	return false
}

// EstimationConfig controls estimation of missing readings
type EstimationConfig struct {
	Method EstimationMethod
	// WindowMonths is the number of past reading intervals considered
	WindowMonths int
}

// LateFeeConfig controls late fee assessment
type LateFeeConfig struct {
	GracePeriodDays int
	Percentage      decimal.Decimal
	Minimum         decimal.Decimal
	// Maximum caps the fee; zero means no cap
	Maximum decimal.Decimal
}

// EngineConfig is the complete policy surface of the billing and
// reconciliation engines
type EngineConfig struct {
	MinAllocationEpsilon   decimal.Decimal
	PreventDuplicateBills  bool
	Estimation             EstimationConfig
	FullAllocationRequired bool
	LateFee                LateFeeConfig
	DueDays                int
}

// DefaultEngineConfig returns the default policies
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MinAllocationEpsilon:  decimal.NewFromFloat(0.01),
		PreventDuplicateBills: true,
		Estimation: EstimationConfig{
			Method:       EstimationTrailingAverage,
			WindowMonths: 3,
		},
		FullAllocationRequired: true,
		LateFee: LateFeeConfig{
			GracePeriodDays: 5,
			Percentage:      decimal.NewFromInt(2),
			Minimum:         decimal.Zero,
			Maximum:         decimal.Zero,
		},
		DueDays: 14,
	}
}

// Validate checks the config for values the engines cannot work with
func (c EngineConfig) Validate() error {
	if c.MinAllocationEpsilon.IsNegative() {
		return shared.NewDomainError(shared.CodeInvalidInput, "minimum allocation epsilon cannot be negative")
	}
	if !c.Estimation.Method.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown estimation method %q", c.Estimation.Method))
	}
	if c.Estimation.Method != EstimationNone && c.Estimation.WindowMonths < 1 {
		return shared.NewDomainError(shared.CodeInvalidInput, "estimation window must be at least one month")
	}
	if c.LateFee.GracePeriodDays < 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "late fee grace period cannot be negative")
	}
	if c.LateFee.Percentage.IsNegative() || c.LateFee.Minimum.IsNegative() || c.LateFee.Maximum.IsNegative() {
		return shared.NewDomainError(shared.CodeInvalidInput, "late fee amounts cannot be negative")
	}
	if c.LateFee.Maximum.IsPositive() && c.LateFee.Minimum.GreaterThan(c.LateFee.Maximum) {
		return shared.NewDomainError(shared.CodeInvalidInput, "late fee minimum exceeds maximum")
	}
	if c.DueDays < 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "due days cannot be negative")
	}
	return nil
}

// Epsilon returns the allocation epsilon, never below zero
func (c EngineConfig) Epsilon() decimal.Decimal {
	if c.MinAllocationEpsilon.IsNegative() {
		return decimal.Zero
	}
	return c.MinAllocationEpsilon
}
