package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/erp/utilitybilling/internal/domain/billing"
	"github.com/erp/utilitybilling/internal/domain/ledger"
	"github.com/erp/utilitybilling/internal/domain/metering"
	"github.com/erp/utilitybilling/internal/domain/payment"
	"github.com/erp/utilitybilling/internal/domain/shared"
)

// EventSerializer encodes domain events as JSON and decodes them back into
// their registered Go types
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
}

// NewEventSerializer creates an empty serializer
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{
		registry: make(map[string]reflect.Type),
	}
}

// NewEngineEventSerializer creates a serializer with every event the
// billing and reconciliation engines raise
func NewEngineEventSerializer() *EventSerializer {
	s := NewEventSerializer()
	RegisterEngineEvents(s)
	return s
}

// RegisterEngineEvents registers the engine's event types. The outbox
// processor can only deliver registered types.
func RegisterEngineEvents(s *EventSerializer) {
	s.Register(billing.EventTypeBillGenerated, &billing.BillGeneratedEvent{})
	s.Register(billing.EventTypeBillPaid, &billing.BillPaidEvent{})
	s.Register(billing.EventTypeBillVoided, &billing.BillVoidedEvent{})
	s.Register(billing.EventTypeBillOverdue, &billing.BillOverdueEvent{})
	s.Register(payment.EventTypePaymentReconciled, &payment.PaymentReconciledEvent{})
	s.Register(payment.EventTypePaymentReversed, &payment.PaymentReversedEvent{})
	s.Register(ledger.EventTypeCarryForwardCreated, &ledger.CarryForwardCreatedEvent{})
	s.Register(metering.EventTypeBulkReadingDistributed, &metering.BulkReadingDistributedEvent{})
}

// Register maps an event type name to the Go type of the given instance
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize encodes an event. Unregistered types are rejected so that an
// entry is never written that the processor could not decode.
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if !s.IsRegistered(event.EventType()) {
		return nil, fmt.Errorf("unknown event type: %s", event.EventType())
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes data into a new instance of the registered type
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("deserialized %s does not implement DomainEvent", eventType)
	}
	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}

// RegisteredTypes returns the registered event types in sorted order
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]string, 0, len(s.registry))
	for t := range s.registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
