package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/id"
)

// MemoryTicketStore is a TicketStore held in process memory. It is used when
// no Postgres DSN is configured and by tests.
//
// Lock order is store.mu before record.mu; no method takes them the other way.
type MemoryTicketStore struct {
	mu      sync.RWMutex
	tickets map[string]*ticketRecord
	ids     *id.Generator
}

type ticketRecord struct {
	mu       sync.Mutex
	ticket   domain.Ticket
	messages []domain.TicketMessage
	deleted  bool
}

// NewMemoryTicketStore builds an empty store.
func NewMemoryTicketStore(ids *id.Generator) *MemoryTicketStore {
	return &MemoryTicketStore{
		tickets: make(map[string]*ticketRecord),
		ids:     ids,
	}
}

func (s *MemoryTicketStore) CreateTicket(_ context.Context, in NewTicket) (*domain.Ticket, error) {
	now := storeNow()
	rec := &ticketRecord{
		ticket: domain.Ticket{
			ID:            uuid.NewString(),
			AuthorID:      in.AuthorID,
			Subject:       in.Subject,
			Description:   in.Description,
			Priority:      in.Priority,
			Status:        domain.TicketStatusOpen,
			MessageSeq:    1,
			LastMessageAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
	rec.messages = []domain.TicketMessage{descriptionMessage(&rec.ticket, in.AuthorIsStaff, s.ids.NextString())}

	s.mu.Lock()
	s.tickets[rec.ticket.ID] = rec
	s.mu.Unlock()

	out := rec.ticket
	return &out, nil
}

func (s *MemoryTicketStore) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	rec, err := s.lockRecord(id)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()
	out := rec.ticket
	return &out, nil
}

func (s *MemoryTicketStore) ListTickets(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	s.mu.RLock()
	all := make([]domain.Ticket, 0, len(s.tickets))
	for _, rec := range s.tickets {
		rec.mu.Lock()
		if matchesFilter(&rec.ticket, filter) {
			all = append(all, rec.ticket)
		}
		rec.mu.Unlock()
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})

	limit, offset := pageBounds(filter)
	if offset >= len(all) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *MemoryTicketStore) AppendMessage(_ context.Context, in NewMessage) (*domain.TicketMessage, error) {
	rec, err := s.lockRecord(in.TicketID)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()

	if !in.AllowClosed && !rec.ticket.Status.AcceptsMessages() {
		return nil, ErrTicketClosed
	}
	msg := domain.TicketMessage{
		ID:         s.ids.NextString(),
		TicketID:   in.TicketID,
		Seq:        rec.ticket.MessageSeq + 1,
		AuthorID:   in.AuthorID,
		AuthorKind: in.AuthorKind,
		IsStaff:    in.IsStaff,
		Body:       in.Body,
		CreatedAt:  nextMessageTime(rec.ticket.LastMessageAt),
	}
	rec.messages = append(rec.messages, msg)
	rec.ticket.MessageSeq = msg.Seq
	rec.ticket.LastMessageAt = msg.CreatedAt
	rec.ticket.UpdatedAt = msg.CreatedAt
	return &msg, nil
}

func (s *MemoryTicketStore) ListMessages(_ context.Context, ticketID string, afterSeq int64) ([]domain.TicketMessage, error) {
	rec, err := s.lockRecord(ticketID)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()

	out := []domain.TicketMessage{}
	for _, msg := range rec.messages {
		if msg.Seq > afterSeq {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *MemoryTicketStore) SetStatus(_ context.Context, id string, expected, next domain.TicketStatus) (*domain.Ticket, error) {
	rec, err := s.lockRecord(id)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()

	if rec.ticket.Status != expected {
		return nil, ErrStatusConflict
	}
	now := storeNow()
	rec.ticket.Status = next
	rec.ticket.UpdatedAt = now
	if next == domain.TicketStatusClosed {
		rec.ticket.ClosedAt = &now
	} else {
		rec.ticket.ClosedAt = nil
	}
	out := rec.ticket
	return &out, nil
}

func (s *MemoryTicketStore) SetPriority(_ context.Context, id string, priority domain.TicketPriority) (*domain.Ticket, error) {
	rec, err := s.lockRecord(id)
	if err != nil {
		return nil, err
	}
	defer rec.mu.Unlock()

	rec.ticket.Priority = priority
	rec.ticket.UpdatedAt = storeNow()
	out := rec.ticket
	return &out, nil
}

func (s *MemoryTicketStore) DeleteTicket(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tickets[id]
	if !ok {
		return ErrTicketNotFound
	}
	rec.mu.Lock()
	rec.deleted = true
	rec.messages = nil
	rec.mu.Unlock()
	delete(s.tickets, id)
	return nil
}

func (s *MemoryTicketStore) Stats(_ context.Context) (domain.TicketStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.TicketStats
	for _, rec := range s.tickets {
		rec.mu.Lock()
		t := rec.ticket
		rec.mu.Unlock()

		stats.Total++
		switch t.Status {
		case domain.TicketStatusOpen:
			stats.Open++
		case domain.TicketStatusPending:
			stats.Pending++
		}
		urgent := t.Priority == domain.TicketPriorityHigh || t.Priority == domain.TicketPriorityUrgent
		if urgent && t.Status != domain.TicketStatusResolved && t.Status != domain.TicketStatusClosed {
			stats.Urgent++
		}
	}
	return stats, nil
}

// lockRecord returns the record with its mutex held.
func (s *MemoryTicketStore) lockRecord(id string) (*ticketRecord, error) {
	s.mu.RLock()
	rec, ok := s.tickets[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrTicketNotFound
	}
	rec.mu.Lock()
	if rec.deleted {
		rec.mu.Unlock()
		return nil, ErrTicketNotFound
	}
	return rec, nil
}

func matchesFilter(t *domain.Ticket, filter TicketFilter) bool {
	if filter.AuthorID != nil && t.AuthorID != *filter.AuthorID {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, t.Priority) {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Subject), term) &&
			!strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}
