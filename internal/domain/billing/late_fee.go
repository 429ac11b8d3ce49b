package billing

import (
	"github.com/erp/utilitybilling/internal/domain/policy"
	"github.com/shopspring/decimal"
)

// LateFeePolicy assesses the fee charged on an overdue balance
type LateFeePolicy struct {
	cfg policy.LateFeeConfig
}

// NewLateFeePolicy creates a LateFeePolicy
func NewLateFeePolicy(cfg policy.LateFeeConfig) *LateFeePolicy {
	return &LateFeePolicy{cfg: cfg}
}

// Calculate returns zero inside the grace period, otherwise the percentage of
// the amount clamped to [Minimum, Maximum]. A zero Maximum means no cap.
func (p *LateFeePolicy) Calculate(amount decimal.Decimal, daysOverdue int) decimal.Decimal {
	if !amount.IsPositive() || daysOverdue <= p.cfg.GracePeriodDays {
		return decimal.Zero
	}
	fee := amount.Mul(p.cfg.Percentage).Div(hundred)
	if fee.LessThan(p.cfg.Minimum) {
		fee = p.cfg.Minimum
	}
	if p.cfg.Maximum.IsPositive() && fee.GreaterThan(p.cfg.Maximum) {
		fee = p.cfg.Maximum
	}
	return fee.Round(2)
}

// GracePeriodDays returns the configured grace period
func (p *LateFeePolicy) GracePeriodDays() int {
	return p.cfg.GracePeriodDays
}
