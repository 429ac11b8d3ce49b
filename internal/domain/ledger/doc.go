// Package ledger records how payments were applied to bills.
//
// Allocations are immutable: reversal deletes them, nothing edits them.
// CarryForward balances hold account credit that survives across periods.
// The projections in this package (account balance, aging, payment history)
// are pure functions over bills, allocations and credits and never mutate
// their inputs.
package ledger
