package metering

import "github.com/erp/utilitybilling/internal/domain/shared"

// Error codes raised by the metering domain
const (
	CodeAlreadyDistributed          = "ALREADY_DISTRIBUTED"
	CodeNegativeConsumption         = "NEGATIVE_CONSUMPTION"
	CodeInvalidAllocationPercentage = "INVALID_ALLOCATION_PERCENTAGE"
	CodeDuplicateReading            = "DUPLICATE_READING"
)

var (
	ErrAlreadyDistributed          = shared.NewDomainError(CodeAlreadyDistributed, "Bulk reading has already been distributed")
	ErrNegativeConsumption         = shared.NewDomainError(CodeNegativeConsumption, "Consumption cannot be negative")
	ErrInvalidAllocationPercentage = shared.NewDomainError(CodeInvalidAllocationPercentage, "Invalid allocation percentage")
	ErrDuplicateReading            = shared.NewDomainError(CodeDuplicateReading, "Meter already has a reading on this date")
)

// NewInvalidAllocationPercentageError returns an INVALID_ALLOCATION_PERCENTAGE error with detail
func NewInvalidAllocationPercentageError(msg string) *shared.DomainError {
	return shared.NewDomainError(CodeInvalidAllocationPercentage, msg)
}
