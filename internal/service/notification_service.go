package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/events"
)

// EventSink receives events for asynchronous delivery. Enqueue must not block.
type EventSink interface {
	Enqueue(event events.Event) bool
}

// NotificationService logs domain events and forwards them to a sink.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	sink       EventSink
}

// NewNotificationService creates the service. sink may be nil.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, sink EventSink) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		sink:       sink,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.handle)
	}
}

func (n *NotificationService) handle(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_id", event.Actor.ID),
		zap.Any("payload", event.Payload),
	)
	if n.sink == nil {
		return nil
	}
	if !n.sink.Enqueue(event) {
		n.logger.Warn("event sink full; dropping event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		)
	}
	return nil
}
