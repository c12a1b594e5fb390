package realtime

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// Sequencer wraps a Channel and hands messages to it in per-ticket Seq order.
//
// Appends on one ticket are serialized by the store, but the goroutines that
// publish them race. A message that arrives ahead of its predecessor is held
// until the gap fills or gapTimeout elapses; a message at or below the last
// released Seq is a duplicate and is dropped.
//
// Ordering state of a ticket that stays quiet for idleTTL is dropped; the
// next Observe seeds it again from the store.
type Sequencer struct {
	next       Channel
	gapTimeout time.Duration
	idleTTL    time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	tickets   map[string]*ticketOrder
	lastSweep time.Time
}

type ticketOrder struct {
	mu       sync.Mutex
	next     int64
	held     map[int64]domain.TicketMessage
	timer    *time.Timer
	removed  bool
	lastUsed atomic.Int64
}

func newTicketOrder(next int64, now time.Time) *ticketOrder {
	order := &ticketOrder{next: next, held: map[int64]domain.TicketMessage{}}
	order.touch(now)
	return order
}

func (o *ticketOrder) touch(now time.Time) {
	o.lastUsed.Store(now.UnixNano())
}

func (o *ticketOrder) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, o.lastUsed.Load()))
}

const defaultIdleTTL = 10 * time.Minute

// SequencerOption tunes a Sequencer.
type SequencerOption func(*Sequencer)

// WithIdleTTL sets how long a quiet ticket keeps its ordering state.
func WithIdleTTL(ttl time.Duration) SequencerOption {
	return func(s *Sequencer) {
		s.idleTTL = ttl
	}
}

// NewSequencer orders publishes in front of next.
func NewSequencer(next Channel, gapTimeout time.Duration, logger *zap.Logger, opts ...SequencerOption) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sequencer{
		next:       next,
		gapTimeout: gapTimeout,
		idleTTL:    defaultIdleTTL,
		logger:     logger,
		tickets:    make(map[string]*ticketOrder),
		lastSweep:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe records that the ticket's last stored Seq was lastSeq. It must be
// called before appending so the first publish knows where the order starts.
// Later calls for an already tracked ticket are ignored.
func (s *Sequencer) Observe(ticketID string, lastSeq int64) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)
	if order, ok := s.tickets[ticketID]; ok {
		order.touch(now)
		return
	}
	s.tickets[ticketID] = newTicketOrder(lastSeq+1, now)
}

// Publish releases msg, and any held successors, once every earlier Seq has
// been released.
func (s *Sequencer) Publish(ctx context.Context, msg domain.TicketMessage) error {
	order := s.orderFor(msg)

	order.mu.Lock()
	defer order.mu.Unlock()
	if order.removed {
		return nil
	}
	order.touch(time.Now())

	switch {
	case msg.Seq < order.next:
		s.logger.Debug("dropping duplicate publish",
			zap.String("ticket_id", msg.TicketID),
			zap.Int64("seq", msg.Seq),
		)
		return nil
	case msg.Seq > order.next:
		order.held[msg.Seq] = msg
		if order.timer == nil && s.gapTimeout > 0 {
			ticketID := msg.TicketID
			order.timer = time.AfterFunc(s.gapTimeout, func() { s.skipGap(ticketID, order) })
		}
		return nil
	}

	err := s.next.Publish(ctx, msg)
	order.next++
	s.drainLocked(ctx, order)
	return err
}

func (s *Sequencer) Subscribe(ctx context.Context, ticketID string) (*Subscription, error) {
	return s.next.Subscribe(ctx, ticketID)
}

// Forget drops ordering state of a deleted ticket and, when the underlying
// channel supports it, ends its subscriptions.
func (s *Sequencer) Forget(ticketID string) {
	s.mu.Lock()
	order, ok := s.tickets[ticketID]
	delete(s.tickets, ticketID)
	s.mu.Unlock()

	if ok {
		order.mu.Lock()
		order.removed = true
		order.held = nil
		if order.timer != nil {
			order.timer.Stop()
			order.timer = nil
		}
		order.mu.Unlock()
	}
	if closer, ok := s.next.(TicketCloser); ok {
		closer.CloseTicket(ticketID)
	}
}

// Release drops ordering state of a ticket that has gone quiet, typically
// because it was closed. State is kept while messages are held or while a
// publish may still be in flight (activity within the gap timeout); the idle
// sweep reclaims it later.
func (s *Sequencer) Release(ticketID string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.tickets[ticketID]
	if !ok {
		return
	}
	order.mu.Lock()
	if len(order.held) == 0 && order.idleFor(now) >= s.gapTimeout {
		delete(s.tickets, ticketID)
	}
	order.mu.Unlock()
}

// sweepLocked drops idle tickets, at most once per idleTTL. Entries that are
// busy or hold messages are left alone.
func (s *Sequencer) sweepLocked(now time.Time) {
	if s.idleTTL <= 0 || now.Sub(s.lastSweep) < s.idleTTL {
		return
	}
	s.lastSweep = now
	for ticketID, order := range s.tickets {
		if !order.mu.TryLock() {
			continue
		}
		if len(order.held) == 0 && order.idleFor(now) >= s.idleTTL {
			delete(s.tickets, ticketID)
		}
		order.mu.Unlock()
	}
}

func (s *Sequencer) tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

// CloseTicket lets a Sequencer stand in for its channel.
func (s *Sequencer) CloseTicket(ticketID string) {
	s.Forget(ticketID)
}

func (s *Sequencer) orderFor(msg domain.TicketMessage) *ticketOrder {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.tickets[msg.TicketID]
	if !ok {
		// Nobody observed this ticket, so msg is the first publish we see.
		s.sweepLocked(now)
		order = newTicketOrder(msg.Seq, now)
		s.tickets[msg.TicketID] = order
	}
	order.touch(now)
	return order
}

// drainLocked releases held messages that are now contiguous.
func (s *Sequencer) drainLocked(ctx context.Context, order *ticketOrder) {
	for {
		msg, ok := order.held[order.next]
		if !ok {
			break
		}
		delete(order.held, order.next)
		if err := s.next.Publish(ctx, msg); err != nil {
			s.logger.Warn("publish failed", zap.String("ticket_id", msg.TicketID), zap.Error(err))
		}
		order.next++
	}
	if len(order.held) == 0 && order.timer != nil {
		order.timer.Stop()
		order.timer = nil
	}
}

// skipGap gives up on missing Seqs and releases everything held, in order.
func (s *Sequencer) skipGap(ticketID string, order *ticketOrder) {
	order.mu.Lock()
	defer order.mu.Unlock()
	order.timer = nil
	if order.removed || len(order.held) == 0 {
		return
	}

	seqs := make([]int64, 0, len(order.held))
	for seq := range order.held {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	s.logger.Warn("sequence gap timed out",
		zap.String("ticket_id", ticketID),
		zap.Int64("missing_from", order.next),
		zap.Int64("resume_at", seqs[0]),
	)
	order.next = seqs[0]
	s.drainLocked(context.Background(), order)
	if len(order.held) > 0 && s.gapTimeout > 0 {
		order.timer = time.AfterFunc(s.gapTimeout, func() { s.skipGap(ticketID, order) })
	}
}
