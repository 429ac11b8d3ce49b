package ledger

import (
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBill(t *testing.T, accountID uuid.UUID, period billing.Period, amount string) billing.Bill {
	t.Helper()
	b, err := billing.NewBill(accountID, period, period.End(), 14, []billing.BillingDetail{{MeterID: uuid.New(), Amount: d(amount)}}, "test")
	require.NoError(t, err)
	return *b
}

func TestBuildAccountBalance(t *testing.T) {
	accountID := uuid.New()
	july := newBill(t, accountID, billing.Period{Year: 2026, Month: time.July}, "1000")
	august := newBill(t, accountID, billing.Period{Year: 2026, Month: time.August}, "500")
	voided := newBill(t, accountID, billing.Period{Year: 2026, Month: time.June}, "999")
	require.NoError(t, voided.Void("wrong", "ops", time.Now()))

	now := time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC)
	credit, err := NewCredit(accountID, nil, d("50"), "", nil)
	require.NoError(t, err)
	expiredAt := now.AddDate(0, 0, -1)
	stale, err := NewCredit(accountID, nil, d("70"), "", &expiredAt)
	require.NoError(t, err)

	bills := []billing.Bill{july, august, voided}
	allocated := map[uuid.UUID]decimal.Decimal{july.ID: d("1000"), august.ID: d("200")}
	july.Status = billing.BillStatusPaid
	bills[0] = july

	b := BuildAccountBalance(accountID, bills, allocated, []CarryForward{*credit, *stale}, now)
	assert.Equal(t, 1, b.OutstandingBills)
	assert.True(t, b.AmountDue.Equal(d("300")))
	assert.True(t, b.AvailableCredit.Equal(d("50")))
	assert.True(t, b.Balance.Equal(d("250")))

	b = BuildAccountBalance(accountID, bills, map[uuid.UUID]decimal.Decimal{august.ID: d("500")}, []CarryForward{*credit}, now)
	assert.True(t, b.Balance.IsZero(), "credit beyond the amount due never makes the balance negative")
}

func TestBuildAgingReport(t *testing.T) {
	accountID := uuid.New()
	asOf := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)

	var bills []billing.Bill
	for _, m := range []time.Month{time.July, time.September, time.October, time.November, time.December} {
		bills = append(bills, newBill(t, accountID, billing.Period{Year: 2026, Month: m}, "100"))
	}
	allocated := map[uuid.UUID]decimal.Decimal{bills[1].ID: d("40")}

	r := BuildAgingReport(accountID, bills, allocated, asOf)

	// due dates are 14 days after each period end
	assert.True(t, r.Buckets[AgingOver90].Equal(d("100")), "July")
	assert.True(t, r.Buckets[Aging61To90].Equal(d("60")), "September")
	assert.True(t, r.Buckets[Aging31To60].Equal(d("100")), "October")
	assert.True(t, r.Buckets[Aging1To30].Equal(d("100")), "November")
	assert.True(t, r.Buckets[AgingCurrent].Equal(d("100")), "December")
	assert.True(t, r.Total.Equal(d("460")))
	require.Len(t, r.Lines, 5)
	assert.True(t, r.Lines[0].DueDate.Before(r.Lines[4].DueDate))
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, AgingCurrent, BucketFor(0))
	assert.Equal(t, Aging1To30, BucketFor(1))
	assert.Equal(t, Aging1To30, BucketFor(30))
	assert.Equal(t, Aging31To60, BucketFor(31))
	assert.Equal(t, Aging61To90, BucketFor(90))
	assert.Equal(t, AgingOver90, BucketFor(91))
}

func TestBuildPaymentHistory(t *testing.T) {
	accountID := uuid.New()
	var payments []payment.Payment
	var allocs []Allocation
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p, err := payment.NewPayment(accountID, d("100"), payment.MethodCash, uuid.NewString(), base.AddDate(0, i, 0))
		require.NoError(t, err)
		payments = append(payments, *p)
		a, err := NewAllocation(p.ID, uuid.New(), accountID, d("60"), "x", p.ReceivedAt)
		require.NoError(t, err)
		allocs = append(allocs, *a)
	}
	creditAlloc, err := NewCreditAllocation(payments[4].ID, uuid.New(), accountID, uuid.New(), d("15"), "x", base)
	require.NoError(t, err)
	allocs = append(allocs, *creditAlloc)

	page := BuildPaymentHistory(payments, allocs, 1, 2)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, payments[4].ID, page.Items[0].PaymentID, "newest first")
	assert.True(t, page.Items[0].Allocated.Equal(d("60")))
	assert.True(t, page.Items[0].CreditApplied.Equal(d("15")))
	assert.Len(t, page.Items[0].Allocations, 2)

	last := BuildPaymentHistory(payments, allocs, 3, 2)
	require.Len(t, last.Items, 1)
	assert.Equal(t, payments[0].ID, last.Items[0].PaymentID)
}
