package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CarryForwardType is the direction of a carry-forward balance
type CarryForwardType string

const (
	CarryForwardCredit CarryForwardType = "credit"
	CarryForwardDebit  CarryForwardType = "debit"
)

// CarryForwardStatus is the lifecycle of a carry-forward balance
type CarryForwardStatus string

const (
	CarryForwardActive  CarryForwardStatus = "active"
	CarryForwardApplied CarryForwardStatus = "applied"
	CarryForwardExpired CarryForwardStatus = "expired"
)

// CarryForward is an account balance surviving across billing periods.
// Balance never goes below zero; applied and expired are terminal except
// that reversing the payment which drew a credit gives the amount back.
type CarryForward struct {
	shared.BaseAggregateRoot
	AccountID      uuid.UUID
	PaymentID      *uuid.UUID
	Type           CarryForwardType
	Status         CarryForwardStatus
	OriginalAmount decimal.Decimal
	Balance        decimal.Decimal
	ExpiresAt      *time.Time
	Description    string
	AppliedAt      *time.Time
	ExpiredAt      *time.Time
}

// NewCredit creates an active overpayment credit for the account and raises
// CarryForwardCreated
func NewCredit(accountID uuid.UUID, paymentID *uuid.UUID, amount decimal.Decimal, description string, expiresAt *time.Time) (*CarryForward, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Credit amount must be positive")
	}
	cf := &CarryForward{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		AccountID:         accountID,
		PaymentID:         paymentID,
		Type:              CarryForwardCredit,
		Status:            CarryForwardActive,
		OriginalAmount:    amount,
		Balance:           amount,
		ExpiresAt:         expiresAt,
		Description:       strings.TrimSpace(description),
	}
	cf.AddDomainEvent(NewCarryForwardCreatedEvent(cf))
	return cf, nil
}

// OverpaymentDescription is the description of a credit created from a payment
func OverpaymentDescription(reference string) string {
	return fmt.Sprintf("Overpayment credit from payment %s", reference)
}

// IsActive returns true if the balance can still be used
func (c *CarryForward) IsActive() bool {
	return c.Status == CarryForwardActive && c.Balance.IsPositive()
}

// IsUsableAt returns true if the credit is active and not expired at t
func (c *CarryForward) IsUsableAt(t time.Time) bool {
	return c.IsActive() && c.Type == CarryForwardCredit && (c.ExpiresAt == nil || t.Before(*c.ExpiresAt))
}

// Apply draws amount from the balance. It becomes applied at zero.
func (c *CarryForward) Apply(amount decimal.Decimal, at time.Time) error {
	if !amount.IsPositive() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Applied amount must be positive")
	}
	if c.Status != CarryForwardActive {
		return shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("Carry-forward is %s", c.Status))
	}
	if amount.GreaterThan(c.Balance) {
		return shared.NewDomainError(CodeInsufficientCredit,
			fmt.Sprintf("Cannot apply %s from a balance of %s", amount.String(), c.Balance.String()))
	}
	c.Balance = c.Balance.Sub(amount)
	if c.Balance.IsZero() {
		c.Status = CarryForwardApplied
		c.AppliedAt = &at
	}
	c.UpdatedAt = at
	c.IncrementVersion()
	return nil
}

// Restore gives back an amount drawn by a reversed reconciliation
func (c *CarryForward) Restore(amount decimal.Decimal, at time.Time) error {
	if !amount.IsPositive() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Restored amount must be positive")
	}
	if c.Balance.Add(amount).GreaterThan(c.OriginalAmount) {
		return shared.NewDomainError(shared.CodeInvalidState, "Restore would exceed the original credit")
	}
	c.Balance = c.Balance.Add(amount)
	if c.Status == CarryForwardApplied {
		c.Status = CarryForwardActive
		c.AppliedAt = nil
	}
	c.UpdatedAt = at
	c.IncrementVersion()
	return nil
}

// Expire moves an active balance whose expiry has passed to expired
func (c *CarryForward) Expire(asOf time.Time) error {
	if c.Status != CarryForwardActive {
		return shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("Carry-forward is %s", c.Status))
	}
	if c.ExpiresAt == nil || asOf.Before(*c.ExpiresAt) {
		return shared.NewDomainError(shared.CodeInvalidState, "Carry-forward has not expired")
	}
	c.Status = CarryForwardExpired
	c.ExpiredAt = &asOf
	c.UpdatedAt = asOf
	c.IncrementVersion()
	return nil
}

// ActiveCreditTotal sums the balances of usable credits
func ActiveCreditTotal(credits []CarryForward, at time.Time) decimal.Decimal {
	total := decimal.Zero
	for i := range credits {
		if credits[i].IsUsableAt(at) {
			total = total.Add(credits[i].Balance)
		}
	}
	return total
}
