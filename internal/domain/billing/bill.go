package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillStatus represents the status of a bill
type BillStatus string

const (
	BillStatusPending       BillStatus = "pending"
	BillStatusPartiallyPaid BillStatus = "partially_paid"
	BillStatusPaid          BillStatus = "paid"
	BillStatusOverdue       BillStatus = "overdue"
	BillStatusVoided        BillStatus = "voided"
)

// IsValid checks if the status is valid
func (s BillStatus) IsValid() bool {
	switch s {
	case BillStatusPending, BillStatusPartiallyPaid, BillStatusPaid, BillStatusOverdue, BillStatusVoided:
		return true
	}
	return false
}

// IsOutstanding returns true if the bill can still receive allocations
func (s BillStatus) IsOutstanding() bool {
	return s == BillStatusPending || s == BillStatusPartiallyPaid || s == BillStatusOverdue
}

// OutstandingStatuses lists the statuses of bills that can receive allocations
func OutstandingStatuses() []BillStatus {
	return []BillStatus{BillStatusPending, BillStatusPartiallyPaid, BillStatusOverdue}
}

// BillingDetail is the charge for one meter on a bill
type BillingDetail struct {
	ID                uuid.UUID
	BillID            uuid.UUID
	MeterID           uuid.UUID
	ReadingID         uuid.UUID
	TariffID          uuid.UUID
	TariffCode        string
	PreviousValue     decimal.Decimal
	PreviousDate      *time.Time
	CurrentValue      decimal.Decimal
	CurrentDate       time.Time
	Units             decimal.Decimal
	ConsumptionCharge decimal.Decimal
	FixedCharge       decimal.Decimal
	Tax               decimal.Decimal
	AverageRate       decimal.Decimal
	Amount            decimal.Decimal
	Estimated         bool
	MeterReset        bool
}

// Bill is the charge to an account for one period. TotalAmount is fixed at
// creation as the rounded sum of the detail amounts and never changes.
type Bill struct {
	shared.BaseAggregateRoot
	BillNumber       string
	AccountID        uuid.UUID
	Period           Period
	TotalAmount      decimal.Decimal
	Status           BillStatus
	IssuedAt         time.Time
	DueDate          time.Time
	PaidAt           *time.Time
	OverdueAt        *time.Time
	LateFeeAmount    decimal.Decimal
	VoidedAt         *time.Time
	VoidReason       string
	VoidedBy         string
	GeneratedBy      string
	ReplacesBillID   *uuid.UUID
	ReplacedByBillID *uuid.UUID
	Details          []BillingDetail
}

// NewBill creates a pending bill from its detail lines and raises BillGenerated
func NewBill(accountID uuid.UUID, period Period, issuedAt time.Time, dueDays int, details []BillingDetail, actor string) (*Bill, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Account ID cannot be empty")
	}
	if period.IsZero() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Billing period is required")
	}
	if len(details) == 0 {
		return nil, ErrNoBillableMeters
	}
	if dueDays < 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Due days cannot be negative")
	}

	b := &Bill{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		AccountID:         accountID,
		Period:            period,
		Status:            BillStatusPending,
		IssuedAt:          issuedAt,
		DueDate:           issuedAt.AddDate(0, 0, dueDays),
		LateFeeAmount:     decimal.Zero,
		GeneratedBy:       actor,
	}
	b.BillNumber = fmt.Sprintf("BILL-%s-%s", strings.ReplaceAll(period.String(), "-", ""), strings.ToUpper(b.ID.String()[:8]))

	total := decimal.Zero
	b.Details = make([]BillingDetail, len(details))
	for i, d := range details {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.BillID = b.ID
		b.Details[i] = d
		total = total.Add(d.Amount)
	}
	b.TotalAmount = total.Round(2)

	b.AddDomainEvent(NewBillGeneratedEvent(b))
	return b, nil
}

// Balance returns the unpaid amount given the sum of allocations to the bill
func (b *Bill) Balance(allocated decimal.Decimal) decimal.Decimal {
	return b.TotalAmount.Sub(allocated)
}

// IsOutstanding returns true if the bill can still receive allocations
func (b *Bill) IsOutstanding() bool {
	return b.Status.IsOutstanding()
}

// RecomputeStatus derives the status from the amount allocated to the bill:
// paid when the balance is within epsilon, partially paid when anything is
// allocated, otherwise pending (or overdue when the bill was marked overdue).
// BillPaid is raised on the transition into paid. Voided bills are untouched.
// Returns true if the status changed.
func (b *Bill) RecomputeStatus(allocated, epsilon decimal.Decimal, at time.Time) bool {
	if b.Status == BillStatusVoided {
		return false
	}
	prev := b.Status
	switch {
	case b.Balance(allocated).LessThanOrEqual(epsilon):
		b.Status = BillStatusPaid
		if prev != BillStatusPaid {
			b.PaidAt = &at
			b.AddDomainEvent(NewBillPaidEvent(b))
		}
	case allocated.IsPositive():
		b.Status = BillStatusPartiallyPaid
		b.PaidAt = nil
	case b.OverdueAt != nil:
		b.Status = BillStatusOverdue
		b.PaidAt = nil
	default:
		b.Status = BillStatusPending
		b.PaidAt = nil
	}
	if b.Status == prev {
		return false
	}
	b.UpdatedAt = at
	b.IncrementVersion()
	return true
}

// Void cancels the bill. Paid and voided bills cannot be voided.
func (b *Bill) Void(reason, actor string, at time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "Void reason is required")
	}
	if b.Status == BillStatusPaid || b.Status == BillStatusVoided {
		return shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("Cannot void a bill in %s status", b.Status))
	}
	b.Status = BillStatusVoided
	b.VoidedAt = &at
	b.VoidReason = reason
	b.VoidedBy = actor
	b.UpdatedAt = at
	b.IncrementVersion()
	b.AddDomainEvent(NewBillVoidedEvent(b))
	return nil
}

// LinkReplacement links a voided bill and the bill that replaces it both ways
func (b *Bill) LinkReplacement(replacement *Bill) error {
	if b.Status != BillStatusVoided {
		return shared.NewDomainError(shared.CodeInvalidState, "Only a voided bill can be replaced")
	}
	if replacement.AccountID != b.AccountID || replacement.Period != b.Period {
		return shared.NewDomainError(shared.CodeInvalidInput, "Replacement must be for the same account and period")
	}
	replacedBy := replacement.ID
	replaces := b.ID
	b.ReplacedByBillID = &replacedBy
	replacement.ReplacesBillID = &replaces
	for _, e := range replacement.GetDomainEvents() {
		if generated, ok := e.(*BillGeneratedEvent); ok {
			generated.ReplacesBillID = &replaces
		}
	}
	return nil
}

// DaysOverdue returns the whole days between the due date and asOf, 0 if not due
func (b *Bill) DaysOverdue(asOf time.Time) int {
	if !asOf.After(b.DueDate) {
		return 0
	}
	return int(asOf.Sub(b.DueDate).Hours() / 24)
}

// IsOverdueCandidate reports whether the sweep should mark the bill overdue
func (b *Bill) IsOverdueCandidate(asOf time.Time) bool {
	return b.IsOutstanding() && b.OverdueAt == nil && asOf.After(b.DueDate)
}

// MarkOverdue flags the bill overdue and records the assessed late fee.
// The fee is informational; TotalAmount is unchanged.
func (b *Bill) MarkOverdue(asOf time.Time, balance, lateFee decimal.Decimal) error {
	if !b.IsOverdueCandidate(asOf) {
		return shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("Bill %s is not overdue as of %s", b.BillNumber, asOf.Format("2006-01-02")))
	}
	b.Status = BillStatusOverdue
	b.OverdueAt = &asOf
	b.LateFeeAmount = lateFee
	b.UpdatedAt = asOf
	b.IncrementVersion()
	b.AddDomainEvent(NewBillOverdueEvent(b, balance, b.DaysOverdue(asOf)))
	return nil
}
