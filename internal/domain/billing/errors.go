package billing

import "github.com/erp/utilitybilling/internal/domain/shared"

// Error codes raised by the billing domain
const (
	CodeDuplicateBill      = "DUPLICATE_BILL"
	CodeNoActiveMeters     = "NO_ACTIVE_METERS"
	CodeNoBillableMeters   = "NO_BILLABLE_METERS"
	CodeInvalidConsumption = "INVALID_CONSUMPTION"
)

var (
	ErrDuplicateBill      = shared.NewDomainError(CodeDuplicateBill, "A bill already exists for this account and period")
	ErrNoActiveMeters     = shared.NewDomainError(CodeNoActiveMeters, "Account has no active meters")
	ErrNoBillableMeters   = shared.NewDomainError(CodeNoBillableMeters, "No meter of the account could be billed for the period")
	ErrInvalidConsumption = shared.NewDomainError(CodeInvalidConsumption, "Consumption cannot be negative")
)
