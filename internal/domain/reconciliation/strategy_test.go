package reconciliation

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eps = decimal.NewFromFloat(0.01)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func twoBills() []BillTarget {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	// supplied out of order on purpose
	return []BillTarget{
		{BillID: uuid.New(), BillNumber: "B-2", DueDate: base.AddDate(0, 1, 0), CreatedAt: base.AddDate(0, 0, 20), Balance: d("500")},
		{BillID: uuid.New(), BillNumber: "B-1", DueDate: base, CreatedAt: base.AddDate(0, 0, -10), Balance: d("1000")},
	}
}

func TestFIFOStrategy_PartialPayment(t *testing.T) {
	bills := twoBills()
	plan, err := NewFIFOStrategy(eps).Plan(d("1200"), bills, nil)
	require.NoError(t, err)

	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, bills[1].BillID, plan.Allocations[0].BillID)
	assert.True(t, plan.Allocations[0].Amount.Equal(d("1000")))
	assert.Equal(t, bills[0].BillID, plan.Allocations[1].BillID)
	assert.True(t, plan.Allocations[1].Amount.Equal(d("200")))
	assert.True(t, plan.Remaining.IsZero())
	assert.Empty(t, plan.Draws)
	require.NoError(t, plan.Verify(d("1200"), bills, nil, eps))
}

func TestFIFOStrategy_Overpayment(t *testing.T) {
	bills := twoBills()
	plan, err := NewFIFOStrategy(eps).Plan(d("1800"), bills, nil)
	require.NoError(t, err)

	assert.True(t, plan.PaymentAllocated.Equal(d("1500")))
	assert.True(t, plan.Remaining.Equal(d("300")))
	assert.Equal(t, []uuid.UUID{bills[1].BillID, bills[0].BillID}, plan.BillIDs())
}

func TestFIFOStrategy_UsesCreditOnlyForShortfall(t *testing.T) {
	bills := twoBills()
	older := CreditSource{CreditID: uuid.New(), Balance: d("150"), CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := CreditSource{CreditID: uuid.New(), Balance: d("400"), CreatedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}

	plan, err := NewFIFOStrategy(eps).Plan(d("1200"), bills, []CreditSource{newer, older})
	require.NoError(t, err)

	assert.True(t, plan.PaymentAllocated.Equal(d("1200")))
	assert.True(t, plan.CreditApplied.Equal(d("300")), "credit covers only the 300 shortfall")
	assert.True(t, plan.TotalAllocated().Equal(d("1500")))
	require.Len(t, plan.Draws, 2)
	assert.Equal(t, older.CreditID, plan.Draws[0].CreditID, "oldest credit first")
	assert.True(t, plan.Draws[0].Amount.Equal(d("150")))
	assert.True(t, plan.Draws[1].Amount.Equal(d("150")))
	assert.True(t, plan.Remaining.IsZero())

	for _, a := range plan.Allocations {
		if a.Source == ledger.SourceCredit {
			require.NotNil(t, a.CreditID)
		}
	}
	require.NoError(t, plan.Verify(d("1200"), bills, []CreditSource{newer, older}, eps))
}

func TestFIFOStrategy_NoCreditDrawWhenPaymentSuffices(t *testing.T) {
	credit := CreditSource{CreditID: uuid.New(), Balance: d("999"), CreatedAt: time.Now()}
	plan, err := NewFIFOStrategy(eps).Plan(d("1800"), twoBills(), []CreditSource{credit})
	require.NoError(t, err)
	assert.True(t, plan.CreditApplied.IsZero())
	assert.Empty(t, plan.Draws)
	assert.True(t, plan.Remaining.Equal(d("300")))
}

func TestFIFOStrategy_Deterministic(t *testing.T) {
	bills := twoBills()
	s := NewFIFOStrategy(eps)
	first, err := s.Plan(d("700"), bills, nil)
	require.NoError(t, err)
	reversed := []BillTarget{bills[1], bills[0]}
	second, err := s.Plan(d("700"), reversed, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Allocations, second.Allocations)
	require.Len(t, first.Allocations, 1)
	assert.Equal(t, "B-1", bills[1].BillNumber)
	assert.Equal(t, bills[1].BillID, first.Allocations[0].BillID)
}

func TestFIFOStrategy_StopsBelowEpsilon(t *testing.T) {
	bills := twoBills()
	plan, err := NewFIFOStrategy(eps).Plan(d("1000.005"), bills, nil)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.True(t, plan.Remaining.Equal(d("0.005")))
}

func TestManualStrategy(t *testing.T) {
	bills := twoBills()
	s := NewManualStrategy([]ManualRequest{
		{BillID: bills[0].BillID, Amount: d("450")},
		{BillID: bills[1].BillID, Amount: d("5000")},
	})

	plan, err := s.Plan(d("1000"), bills, nil)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, bills[0].BillID, plan.Allocations[0].BillID, "caller order is kept")
	assert.True(t, plan.Allocations[0].Amount.Equal(d("450")))
	assert.True(t, plan.Allocations[1].Amount.Equal(d("550")), "clamped to the remaining payment")
	assert.True(t, plan.Remaining.IsZero())
	assert.Equal(t, ModeManual, s.Mode())
}

func TestManualStrategy_RejectsNonPositiveAmount(t *testing.T) {
	bills := twoBills()
	for _, amount := range []string{"0", "-5"} {
		_, err := NewManualStrategy([]ManualRequest{
			{BillID: bills[1].BillID, Amount: d("100")},
			{BillID: bills[0].BillID, Amount: d(amount)},
		}).Plan(d("800"), bills, nil)
		assert.Equal(t, ledger.CodeInvalidAllocation, shared.ErrorCode(err), amount)
	}
}

func TestManualStrategy_UnknownBill(t *testing.T) {
	_, err := NewManualStrategy([]ManualRequest{{BillID: uuid.New(), Amount: d("1")}}).Plan(d("10"), twoBills(), nil)
	assert.True(t, errors.Is(err, ledger.ErrInvalidAllocation))

	_, err = NewManualStrategy(nil).Plan(d("10"), twoBills(), nil)
	assert.True(t, errors.Is(err, ledger.ErrInvalidAllocation))
}

func TestPlan_Verify(t *testing.T) {
	bills := twoBills()

	overBill := &Plan{Allocations: []PlannedAllocation{{BillID: bills[0].BillID, Amount: d("600"), Source: ledger.SourcePayment}}}
	assert.True(t, errors.Is(overBill.Verify(d("1000"), bills, nil, eps), ledger.ErrAllocationExceedsBalance))

	overPayment := &Plan{Allocations: []PlannedAllocation{{BillID: bills[1].BillID, Amount: d("900"), Source: ledger.SourcePayment}}}
	assert.True(t, errors.Is(overPayment.Verify(d("800"), bills, nil, eps), ledger.ErrAllocationExceedsPayment))

	unknown := &Plan{Allocations: []PlannedAllocation{{BillID: uuid.New(), Amount: d("1"), Source: ledger.SourcePayment}}}
	assert.True(t, errors.Is(unknown.Verify(d("800"), bills, nil, eps), ledger.ErrInvalidAllocation))
}
