package tariff

import "github.com/erp/utilitybilling/internal/domain/shared"

// Error codes raised by the tariff domain
const (
	CodeNoTariff         = "NO_TARIFF"
	CodeInvalidTier      = "INVALID_TIER"
	CodeOverlappingTiers = "OVERLAPPING_TIERS"
)

// ErrNoTariff is returned when no tariff applies to a category on a date
var ErrNoTariff = shared.NewDomainError(CodeNoTariff, "No tariff is effective for the meter category")
