package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/events"
	"github.com/spec-kit/support-tickets/internal/service"
)

// Publisher is the outbound side of the event stream; the Kafka producer
// satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// EventWorker drains queued events to a Publisher on its own goroutine, so
// request handlers never wait on the broker.
type EventWorker struct {
	publisher Publisher
	topic     string
	queue     chan events.Event
	logger    *zap.Logger
	timeout   time.Duration
}

// NewEventWorker builds a worker with a queue of buffer events.
func NewEventWorker(publisher Publisher, topic string, buffer int, logger *zap.Logger) *EventWorker {
	if buffer <= 0 {
		buffer = 1
	}
	return &EventWorker{
		publisher: publisher,
		topic:     topic,
		queue:     make(chan events.Event, buffer),
		logger:    logger,
		timeout:   5 * time.Second,
	}
}

// Enqueue hands an event to the worker without blocking. It reports false
// when the queue is full.
func (w *EventWorker) Enqueue(event events.Event) bool {
	select {
	case w.queue <- event:
		return true
	default:
		return false
	}
}

// Run publishes events until ctx is done, then flushes what is still queued.
func (w *EventWorker) Run(ctx context.Context) {
	for {
		select {
		case event := <-w.queue:
			w.publish(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-w.queue:
					w.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (w *EventWorker) publish(event events.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		w.logger.Error("encode event", zap.String("event_id", event.ID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.publisher.Publish(ctx, w.topic, []byte(event.TicketID), value); err != nil {
		w.logger.Warn("publish event failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
	}
}

// StartNotificationWorker registers notification handlers and starts the
// event worker. It returns a channel closed once the worker has flushed.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, w *EventWorker) <-chan struct{} {
	done := make(chan struct{})
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if w == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return done
}
