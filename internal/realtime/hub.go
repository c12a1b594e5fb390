package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// Hub is an in-process Channel.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
	logger *zap.Logger
}

var (
	_ Channel      = (*Hub)(nil)
	_ TicketCloser = (*Hub)(nil)
)

// NewHub creates a hub whose subscribers buffer up to buffer messages.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

func (h *Hub) Subscribe(ctx context.Context, ticketID string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrChannelClosed
	}
	sub := newSubscription(ticketID, h.buffer)
	sub.onClose = func() { h.remove(sub, nil) }
	set, ok := h.subs[ticketID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[ticketID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	sub.watch(ctx)
	return sub, nil
}

// Publish never blocks on a subscriber. A subscriber with a full buffer is
// dropped so the others keep receiving.
func (h *Hub) Publish(_ context.Context, msg domain.TicketMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrChannelClosed
	}
	for sub := range h.subs[msg.TicketID] {
		if sub.offer(msg) {
			continue
		}
		h.logger.Warn("dropping slow subscriber",
			zap.String("ticket_id", msg.TicketID),
			zap.Int64("seq", msg.Seq),
		)
		h.detachLocked(sub, ErrSlowSubscriber)
	}
	return nil
}

func (h *Hub) CloseTicket(ticketID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[ticketID] {
		h.detachLocked(sub, ErrTicketDeleted)
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.subs {
		for sub := range set {
			h.detachLocked(sub, ErrChannelClosed)
		}
	}
}

// SubscriberCount reports the live subscribers of a ticket.
func (h *Hub) SubscriberCount(ticketID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ticketID])
}

func (h *Hub) remove(sub *Subscription, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(sub, err)
}

func (h *Hub) detachLocked(sub *Subscription, err error) {
	if set, ok := h.subs[sub.TicketID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.TicketID)
		}
	}
	sub.finish(err)
}
