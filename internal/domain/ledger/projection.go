package ledger

import (
	"sort"
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/payment"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountBalance is the derived position of an account
type AccountBalance struct {
	AccountID        uuid.UUID       `json:"account_id"`
	OutstandingBills int             `json:"outstanding_bills"`
	TotalBilled      decimal.Decimal `json:"total_billed"`
	TotalAllocated   decimal.Decimal `json:"total_allocated"`
	AmountDue        decimal.Decimal `json:"amount_due"`
	AvailableCredit  decimal.Decimal `json:"available_credit"`
	// Balance is max(0, AmountDue - AvailableCredit)
	Balance decimal.Decimal `json:"balance"`
	AsOf    time.Time       `json:"as_of"`
}

// BuildAccountBalance derives the balance from outstanding bills, the
// allocations of completed payments on them, and usable credits
func BuildAccountBalance(accountID uuid.UUID, bills []billing.Bill, allocatedByBill map[uuid.UUID]decimal.Decimal, credits []CarryForward, asOf time.Time) AccountBalance {
	b := AccountBalance{
		AccountID:      accountID,
		TotalBilled:    decimal.Zero,
		TotalAllocated: decimal.Zero,
		AsOf:           asOf,
	}
	for i := range bills {
		if !bills[i].IsOutstanding() {
			continue
		}
		b.OutstandingBills++
		b.TotalBilled = b.TotalBilled.Add(bills[i].TotalAmount)
		b.TotalAllocated = b.TotalAllocated.Add(allocatedByBill[bills[i].ID])
	}
	b.AmountDue = b.TotalBilled.Sub(b.TotalAllocated).Round(2)
	b.AvailableCredit = ActiveCreditTotal(credits, asOf).Round(2)
	b.Balance = decimal.Max(decimal.Zero, b.AmountDue.Sub(b.AvailableCredit))
	b.TotalBilled = b.TotalBilled.Round(2)
	b.TotalAllocated = b.TotalAllocated.Round(2)
	return b
}

// AgingBucket names a days-past-due range
type AgingBucket string

const (
	AgingCurrent AgingBucket = "current"
	Aging1To30   AgingBucket = "1-30"
	Aging31To60  AgingBucket = "31-60"
	Aging61To90  AgingBucket = "61-90"
	AgingOver90  AgingBucket = "90+"
)

// AgingBuckets lists the buckets in report order
func AgingBuckets() []AgingBucket {
	return []AgingBucket{AgingCurrent, Aging1To30, Aging31To60, Aging61To90, AgingOver90}
}

// BucketFor returns the bucket for a number of days past due
func BucketFor(daysPastDue int) AgingBucket {
	switch {
	case daysPastDue <= 0:
		return AgingCurrent
	case daysPastDue <= 30:
		return Aging1To30
	case daysPastDue <= 60:
		return Aging31To60
	case daysPastDue <= 90:
		return Aging61To90
	default:
		return AgingOver90
	}
}

// AgingLine is one outstanding bill in an aging report
type AgingLine struct {
	BillID      uuid.UUID       `json:"bill_id"`
	BillNumber  string          `json:"bill_number"`
	Period      string          `json:"period"`
	DueDate     time.Time       `json:"due_date"`
	DaysPastDue int             `json:"days_past_due"`
	Bucket      AgingBucket     `json:"bucket"`
	Balance     decimal.Decimal `json:"balance"`
	LateFee     decimal.Decimal `json:"late_fee"`
}

// AgingReport groups outstanding balances by how long they are past due
type AgingReport struct {
	AccountID uuid.UUID                       `json:"account_id"`
	AsOf      time.Time                       `json:"as_of"`
	Buckets   map[AgingBucket]decimal.Decimal `json:"buckets"`
	Total     decimal.Decimal                 `json:"total"`
	Lines     []AgingLine                     `json:"lines"`
}

// BuildAgingReport buckets the remaining balance of each outstanding bill
func BuildAgingReport(accountID uuid.UUID, bills []billing.Bill, allocatedByBill map[uuid.UUID]decimal.Decimal, asOf time.Time) AgingReport {
	r := AgingReport{
		AccountID: accountID,
		AsOf:      asOf,
		Buckets:   make(map[AgingBucket]decimal.Decimal, 5),
		Total:     decimal.Zero,
		Lines:     make([]AgingLine, 0, len(bills)),
	}
	for _, bucket := range AgingBuckets() {
		r.Buckets[bucket] = decimal.Zero
	}

	for i := range bills {
		bill := &bills[i]
		if !bill.IsOutstanding() {
			continue
		}
		balance := bill.Balance(allocatedByBill[bill.ID]).Round(2)
		if !balance.IsPositive() {
			continue
		}
		days := bill.DaysOverdue(asOf)
		bucket := BucketFor(days)
		r.Buckets[bucket] = r.Buckets[bucket].Add(balance)
		r.Total = r.Total.Add(balance)
		r.Lines = append(r.Lines, AgingLine{
			BillID:      bill.ID,
			BillNumber:  bill.BillNumber,
			Period:      bill.Period.String(),
			DueDate:     bill.DueDate,
			DaysPastDue: days,
			Bucket:      bucket,
			Balance:     balance,
			LateFee:     bill.LateFeeAmount,
		})
	}
	sort.SliceStable(r.Lines, func(i, j int) bool {
		return r.Lines[i].DueDate.Before(r.Lines[j].DueDate)
	})
	return r
}

// PaymentHistoryEntry is a payment with the way it was applied
type PaymentHistoryEntry struct {
	PaymentID            uuid.UUID       `json:"payment_id"`
	Reference            string          `json:"reference"`
	Method               string          `json:"method"`
	Amount               decimal.Decimal `json:"amount"`
	Status               string          `json:"status"`
	ReconciliationStatus string          `json:"reconciliation_status"`
	ReceivedAt           time.Time       `json:"received_at"`
	ReconciledAt         *time.Time      `json:"reconciled_at,omitempty"`
	Allocated            decimal.Decimal `json:"allocated"`
	CreditApplied        decimal.Decimal `json:"credit_applied"`
	Allocations          []Allocation    `json:"allocations"`
}

// BuildPaymentHistory joins payments with their allocations, newest first,
// and returns the requested page
func BuildPaymentHistory(payments []payment.Payment, allocations []Allocation, page, pageSize int) shared.Paginated[PaymentHistoryEntry] {
	byPayment := make(map[uuid.UUID][]Allocation, len(payments))
	for _, a := range allocations {
		byPayment[a.PaymentID] = append(byPayment[a.PaymentID], a)
	}

	entries := make([]PaymentHistoryEntry, 0, len(payments))
	for i := range payments {
		p := &payments[i]
		allocs := byPayment[p.ID]
		sort.SliceStable(allocs, func(i, j int) bool { return allocs[i].AllocatedAt.Before(allocs[j].AllocatedAt) })

		credit := decimal.Zero
		for _, a := range allocs {
			if a.Source == SourceCredit {
				credit = credit.Add(a.Amount)
			}
		}
		if allocs == nil {
			allocs = []Allocation{}
		}
		entries = append(entries, PaymentHistoryEntry{
			PaymentID:            p.ID,
			Reference:            p.Reference,
			Method:               string(p.Method),
			Amount:               p.Amount,
			Status:               string(p.Status),
			ReconciliationStatus: string(p.ReconciliationStatus),
			ReceivedAt:           p.ReceivedAt,
			ReconciledAt:         p.ReconciledAt,
			Allocated:            SumPaymentSourced(allocs),
			CreditApplied:        credit,
			Allocations:          allocs,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ReceivedAt.After(entries[j].ReceivedAt)
	})
	return shared.Paginate(entries, page, pageSize)
}
