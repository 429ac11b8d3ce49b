package event

import (
	"testing"
	"time"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngineEventSerializer_RegistersEngineEvents(t *testing.T) {
	s := NewEngineEventSerializer()

	assert.Equal(t, []string{
		"BillGenerated", "BillOverdue", "BillPaid", "BillVoided",
		"BulkReadingDistributed", "CarryForwardCreated",
		"PaymentReconciled", "PaymentReversed",
	}, s.RegisteredTypes())
}

func TestEventSerializer_RoundTrip(t *testing.T) {
	s := NewEngineEventSerializer()

	detail := billing.BillingDetail{MeterID: uuid.New(), Amount: decimal.RequireFromString("4500.00")}
	bill, err := billing.NewBill(uuid.New(), billing.Period{Year: 2024, Month: time.March},
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), 14, []billing.BillingDetail{detail}, "tester")
	require.NoError(t, err)
	event := bill.PullDomainEvents()[0]

	data, err := s.Serialize(event)
	require.NoError(t, err)

	decoded, err := s.Deserialize(event.EventType(), data)
	require.NoError(t, err)

	generated, ok := decoded.(*billing.BillGeneratedEvent)
	require.True(t, ok)
	assert.Equal(t, event.EventID(), generated.EventID())
	assert.Equal(t, bill.ID, generated.BillID)
	assert.Equal(t, "2024-03", generated.Period)
	assert.True(t, generated.TotalAmount.Equal(decimal.RequireFromString("4500")))
}

func TestEventSerializer_UnknownType(t *testing.T) {
	s := NewEventSerializer()

	_, err := s.Serialize(newTestEvent("Mystery"))
	assert.ErrorContains(t, err, "unknown event type")

	_, err = s.Deserialize("Mystery", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown event type")
}

func TestEventSerializer_AllEngineEventsDecode(t *testing.T) {
	s := NewEngineEventSerializer()
	accountID := uuid.New()

	credit, err := ledger.NewCredit(accountID, nil, decimal.NewFromInt(10), "credit", nil)
	require.NoError(t, err)
	p, err := payment.NewPayment(accountID, decimal.NewFromInt(10), payment.MethodCash, "REF-1", time.Now())
	require.NoError(t, err)

	for _, e := range []interface {
		EventType() string
	}{
		credit.GetDomainEvents()[0],
		payment.NewPaymentReconciledEvent(p, decimal.NewFromInt(10), decimal.Zero, nil),
		metering.NewBulkReadingDistributedEvent(&metering.DistributionResult{BulkReadingID: uuid.New()}),
	} {
		assert.True(t, s.IsRegistered(e.EventType()), e.EventType())
	}
}
