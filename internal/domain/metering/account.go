package metering

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
)

// AccountStatus represents the lifecycle status of a customer account
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusInactive  AccountStatus = "inactive"
)

// IsValid checks if the status is a valid AccountStatus
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusActive, AccountStatusSuspended, AccountStatusInactive:
		return true
	}
	return false
}

// IsBillable returns true if bills may be generated in this status.
// Suspended accounts keep consuming through their meters and are still billed.
func (s AccountStatus) IsBillable() bool {
	return s == AccountStatusActive || s == AccountStatusSuspended
}

// Account is the unit of billing and the unit of mutual exclusion: every
// generation or reconciliation runs under an exclusive lock on its account.
// Its balance is derived from bills, allocations and credits and never stored.
type Account struct {
	shared.BaseAggregateRoot
	AccountNumber string
	Name          string
	Status        AccountStatus
}

// NewAccount creates a new active account
func NewAccount(accountNumber, name string) (*Account, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return nil, shared.NewDomainError("INVALID_ACCOUNT_NUMBER", "Account number cannot be empty")
	}
	if len(accountNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_ACCOUNT_NUMBER", "Account number cannot exceed 50 characters")
	}
	return &Account{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		AccountNumber:     accountNumber,
		Name:              strings.TrimSpace(name),
		Status:            AccountStatusActive,
	}, nil
}

// ChangeStatus moves the account to a new status
func (a *Account) ChangeStatus(status AccountStatus) error {
	if !status.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("Unknown account status %q", status))
	}
	if a.Status == status {
		return nil
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	a.IncrementVersion()
	return nil
}

// IsActive returns true if the account is active
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
