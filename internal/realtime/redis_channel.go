package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// RedisChannel fans messages out over Redis Pub/Sub, one topic per ticket.
// CloseTicket only ends subscriptions held by this process.
type RedisChannel struct {
	client *redis.Client
	buffer int
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]map[*Subscription]*forwarder
}

var (
	_ Channel      = (*RedisChannel)(nil)
	_ TicketCloser = (*RedisChannel)(nil)
)

// forwarder is the goroutine pumping one Pub/Sub connection into a
// subscription.
type forwarder struct {
	stop chan error
	done chan struct{}
}

// end asks the forwarder to finish its subscription with err and waits until
// it has.
func (f *forwarder) end(err error) {
	select {
	case f.stop <- err:
	default:
	}
	<-f.done
}

// NewRedisChannel builds a channel on an existing client.
func NewRedisChannel(client *redis.Client, buffer int, logger *zap.Logger) *RedisChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisChannel{
		client: client,
		buffer: buffer,
		logger: logger,
		subs:   make(map[string]map[*Subscription]*forwarder),
	}
}

// Topic is the Pub/Sub channel carrying a ticket's messages.
func Topic(ticketID string) string {
	return fmt.Sprintf("tickets:%s:messages", ticketID)
}

func (r *RedisChannel) Publish(ctx context.Context, msg domain.TicketMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := r.client.Publish(ctx, Topic(msg.TicketID), payload).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (r *RedisChannel) Subscribe(ctx context.Context, ticketID string) (*Subscription, error) {
	pubsub := r.client.Subscribe(ctx, Topic(ticketID))
	// Wait for the confirmation so nothing published after Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ticketID, err)
	}

	sub := newSubscription(ticketID, r.buffer)
	fwd := &forwarder{stop: make(chan error, 1), done: make(chan struct{})}
	sub.onClose = func() {
		r.untrack(sub)
		fwd.end(nil)
	}
	r.track(sub, fwd)
	sub.watch(ctx)
	go r.forward(pubsub, sub, fwd)
	return sub, nil
}

// CloseTicket ends every local subscription of ticketID with
// ErrTicketDeleted. Subscribers on other instances are not reached.
func (r *RedisChannel) CloseTicket(ticketID string) {
	r.mu.Lock()
	set := r.subs[ticketID]
	delete(r.subs, ticketID)
	r.mu.Unlock()

	for _, fwd := range set {
		fwd.end(ErrTicketDeleted)
	}
}

// SubscriberCount reports the local subscribers of a ticket.
func (r *RedisChannel) SubscriberCount(ticketID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[ticketID])
}

func (r *RedisChannel) track(sub *Subscription, fwd *forwarder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[sub.TicketID]
	if !ok {
		set = make(map[*Subscription]*forwarder)
		r.subs[sub.TicketID] = set
	}
	set[sub] = fwd
}

func (r *RedisChannel) untrack(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[sub.TicketID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, sub.TicketID)
	}
}

// forward is the only sender on sub, so it alone finishes it.
func (r *RedisChannel) forward(pubsub *redis.PubSub, sub *Subscription, fwd *forwarder) {
	defer close(fwd.done)
	defer pubsub.Close() //nolint:errcheck
	defer r.untrack(sub)

	incoming := pubsub.Channel()
	for {
		select {
		case err := <-fwd.stop:
			sub.finish(err)
			return
		case raw, ok := <-incoming:
			if !ok {
				sub.finish(ErrChannelClosed)
				return
			}
			var msg domain.TicketMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.logger.Warn("discarding malformed realtime payload",
					zap.String("ticket_id", sub.TicketID),
					zap.Error(err),
				)
				continue
			}
			if !sub.offer(msg) {
				r.logger.Warn("dropping slow subscriber", zap.String("ticket_id", sub.TicketID))
				sub.finish(ErrSlowSubscriber)
				return
			}
		}
	}
}
