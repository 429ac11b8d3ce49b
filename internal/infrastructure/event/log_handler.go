package event

import (
	"context"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"go.uber.org/zap"
)

// LogHandler writes every delivered event to the log. It is the default
// subscriber of the outbox relay so deliveries leave an audit trail.
type LogHandler struct {
	logger *zap.Logger
}

// NewLogHandler creates a new LogHandler
func NewLogHandler(logger *zap.Logger) *LogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHandler{logger: logger.Named("events")}
}

// EventTypes returns the registered engine events
func (h *LogHandler) EventTypes() []string {
	return NewEngineEventSerializer().RegisteredTypes()
}

// Handle logs the event
func (h *LogHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.logger.Info("Event delivered",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	)
	return nil
}

var _ shared.EventHandler = (*LogHandler)(nil)
