// Package billing provides the domain model for metered utility bills.
//
// This package is responsible for:
//   - Turning consumption into money through a tiered tariff (ChargeCalculator)
//   - The Bill aggregate and its per-meter BillingDetail lines
//   - Estimating consumption for meters without a reading in the period
//   - Late fee assessment for overdue bills
//
// Key Aggregates:
//   - Bill: one per account and period among non-voided bills
//
// Value Objects:
//   - Period: a calendar month, written YYYY-MM
//   - ChargeResult: the priced breakdown of one meter's consumption
//
// The billing domain integrates with:
//   - Metering domain: readings and consumption
//   - Tariff domain: rate schedules
//   - Ledger domain: allocations drive bill status
package billing
