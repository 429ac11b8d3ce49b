package event

import (
	"context"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxRecorder writes domain events to the outbox through a transaction
// handle, so they commit or roll back with the state change that raised them
type OutboxRecorder struct {
	serializer *EventSerializer
	repo       *GormOutboxRepository
}

// NewOutboxRecorder binds a recorder to tx
func NewOutboxRecorder(tx *gorm.DB, serializer *EventSerializer) *OutboxRecorder {
	return &OutboxRecorder{
		serializer: serializer,
		repo:       NewGormOutboxRepository(tx),
	}
}

// Record serializes events and stores them as pending outbox entries
func (r *OutboxRecorder) Record(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		payload, err := r.serializer.Serialize(event)
		if err != nil {
			return err
		}
		entries = append(entries, shared.NewOutboxEntry(event, payload))
	}
	return r.repo.Save(ctx, entries...)
}

var _ shared.EventRecorder = (*OutboxRecorder)(nil)
