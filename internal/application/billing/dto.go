package billing

import (
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerateBillRequest asks for the bill of one account and period.
// AllowDuplicate supersedes an existing unpaid bill for the same period
// instead of failing with DUPLICATE_BILL.
type GenerateBillRequest struct {
	AccountID      uuid.UUID      `json:"account_id" validate:"required"`
	Period         billing.Period `json:"period" validate:"required"`
	AllowDuplicate bool           `json:"allow_duplicate"`
	IssuedAt       time.Time      `json:"issued_at"`
	Actor          string         `json:"actor" validate:"required,max=100"`
}

// VoidBillRequest voids a bill and optionally regenerates it
type VoidBillRequest struct {
	BillID     uuid.UUID `json:"bill_id" validate:"required"`
	Reason     string    `json:"reason" validate:"required,max=500"`
	Actor      string    `json:"actor" validate:"required,max=100"`
	Regenerate bool      `json:"regenerate"`
}

// VoidResult is the voided bill and its replacement, if one was generated
type VoidResult struct {
	Voided      *billing.Bill `json:"voided"`
	Replacement *billing.Bill `json:"replacement,omitempty"`
}

// AccountOutcomeStatus is the result of generating one account in a bulk run
type AccountOutcomeStatus string

const (
	OutcomeGenerated AccountOutcomeStatus = "generated"
	OutcomeDuplicate AccountOutcomeStatus = "duplicate"
	OutcomeFailed    AccountOutcomeStatus = "failed"
)

// AccountOutcome is the per-account line of a bulk generation report
type AccountOutcome struct {
	AccountID   uuid.UUID            `json:"account_id"`
	Status      AccountOutcomeStatus `json:"status"`
	BillID      *uuid.UUID           `json:"bill_id,omitempty"`
	TotalAmount decimal.Decimal      `json:"total_amount"`
	ErrorCode   string               `json:"error_code,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// BulkGenerationReport tallies a bulk generation run. Outcomes are ordered
// like the requested account IDs.
type BulkGenerationReport struct {
	Period     string           `json:"period"`
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Duplicates int              `json:"duplicates"`
	Failed     int              `json:"failed"`
	FailedBy   map[string]int   `json:"failed_by_code,omitempty"`
	Billed     decimal.Decimal  `json:"billed"`
	Outcomes   []AccountOutcome `json:"outcomes"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// OverdueSweepResult summarizes a MarkOverdue run
type OverdueSweepResult struct {
	AsOf     time.Time       `json:"as_of"`
	Scanned  int             `json:"scanned"`
	Marked   int             `json:"marked"`
	LateFees decimal.Decimal `json:"late_fees"`
	Failed   int             `json:"failed"`
	BillIDs  []uuid.UUID     `json:"bill_ids"`
}

// DistributeRequest asks for one bulk reading to be split to its sub-meters
type DistributeRequest struct {
	ReadingID uuid.UUID `json:"reading_id" validate:"required"`
	Actor     string    `json:"actor" validate:"required,max=100"`
}

// DistributionResponse is the persisted outcome of a distribution
type DistributionResponse struct {
	BulkMeterID     uuid.UUID                     `json:"bulk_meter_id"`
	BulkReadingID   uuid.UUID                     `json:"bulk_reading_id"`
	BulkConsumption decimal.Decimal               `json:"bulk_consumption"`
	TotalAllocated  decimal.Decimal               `json:"total_allocated"`
	Unallocated     decimal.Decimal               `json:"unallocated"`
	Allocations     []metering.SubMeterAllocation `json:"allocations"`
}

func newDistributionResponse(r *metering.DistributionResult) *DistributionResponse {
	return &DistributionResponse{
		BulkMeterID:     r.BulkMeterID,
		BulkReadingID:   r.BulkReadingID,
		BulkConsumption: r.BulkConsumption,
		TotalAllocated:  r.TotalAllocated,
		Unallocated:     r.Unallocated,
		Allocations:     r.Allocations,
	}
}
