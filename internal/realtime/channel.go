// Package realtime delivers stored ticket messages to live subscribers.
package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/spec-kit/support-tickets/internal/domain"
)

var (
	// ErrSlowSubscriber ends a subscription whose buffer filled up. The client
	// must re-read history from the store before subscribing again.
	ErrSlowSubscriber = errors.New("realtime: subscriber fell behind")
	// ErrChannelClosed is returned once the channel has shut down.
	ErrChannelClosed = errors.New("realtime: channel closed")
	// ErrTicketDeleted ends subscriptions of a ticket that no longer exists.
	ErrTicketDeleted = errors.New("realtime: ticket deleted")
)

// Channel fans out published messages to every current subscriber of the
// message's ticket. Delivery is best-effort and at most once per subscription.
type Channel interface {
	Publish(ctx context.Context, msg domain.TicketMessage) error
	Subscribe(ctx context.Context, ticketID string) (*Subscription, error)
}

// TicketCloser is implemented by channels that can end all subscriptions of
// one ticket.
type TicketCloser interface {
	CloseTicket(ticketID string)
}

// Subscription is one subscriber's view of a ticket. Messages arrive on C in
// store append order. C is closed when the subscription ends; Err then
// reports why (nil after Close or context cancellation).
type Subscription struct {
	TicketID string

	ch       chan domain.TicketMessage
	finished sync.Once
	closing  sync.Once
	onClose  func()

	mu    sync.Mutex
	err   error
	ended bool
	stop  func() bool
}

func newSubscription(ticketID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}
	return &Subscription{
		TicketID: ticketID,
		ch:       make(chan domain.TicketMessage, buffer),
	}
}

// C returns the delivery channel.
func (s *Subscription) C() <-chan domain.TicketMessage {
	return s.ch
}

// Err reports why the subscription ended.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels the subscription. It never affects other subscribers.
func (s *Subscription) Close() {
	s.closing.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// watch closes the subscription when ctx is done. The subscription may
// already be visible to publishers, so stop is guarded by mu.
func (s *Subscription) watch(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.stop = context.AfterFunc(ctx, s.Close)
}

// offer is a non-blocking send. Callers serialize offer and finish.
func (s *Subscription) offer(msg domain.TicketMessage) bool {
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

// finish closes the delivery channel exactly once.
func (s *Subscription) finish(err error) {
	s.finished.Do(func() {
		s.mu.Lock()
		s.err = err
		s.ended = true
		stop := s.stop
		s.stop = nil
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		close(s.ch)
	})
}
