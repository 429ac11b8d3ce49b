package shared

import "context"

// EventHandler consumes events delivered by the outbox processor. Handlers
// must be idempotent: a delivery that fails is retried.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the types the handler wants, empty for all
	EventTypes() []string
}

// EventPublisher delivers committed events
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus is an EventPublisher that handlers subscribe to
type EventBus interface {
	EventPublisher
	// Subscribe registers handler for eventTypes, or for the handler's own
	// EventTypes when none are given
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// EventRecorder writes events into the current transaction's outbox, so
// they reach the bus only if the transaction commits
type EventRecorder interface {
	Record(ctx context.Context, events ...DomainEvent) error
}
