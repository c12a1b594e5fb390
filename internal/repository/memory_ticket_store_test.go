package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/id"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

func newTestStore(t *testing.T) *MemoryTicketStore {
	t.Helper()
	ids, err := id.NewGenerator(1)
	require.NoError(t, err)
	return NewMemoryTicketStore(ids)
}

func createTicket(t *testing.T, store *MemoryTicketStore, author string) *domain.Ticket {
	t.Helper()
	ticket, err := store.CreateTicket(context.Background(), NewTicket{
		AuthorID:    author,
		Subject:     "Cannot log in",
		Description: "The launcher says my session expired",
		Priority:    domain.TicketPriorityMedium,
	})
	require.NoError(t, err)
	return ticket
}

func TestCreateTicketMaterializesDescription(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ticket := createTicket(t, store, "user-1")

	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, int64(1), ticket.MessageSeq)

	msgs, err := store.ListMessages(ctx, ticket.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "The launcher says my session expired", msgs[0].Body)
	assert.Equal(t, "user-1", msgs[0].AuthorID)
	assert.Equal(t, int64(1), msgs[0].Seq)
	assert.False(t, msgs[0].IsStaff)
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ticket := createTicket(t, store, "user-1")

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.AppendMessage(ctx, NewMessage{
				TicketID:   ticket.ID,
				AuthorID:   "user-1",
				AuthorKind: domain.AuthorKindUser,
				Body:       fmt.Sprintf("msg %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := store.ListMessages(ctx, ticket.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, writers+1)
	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		assert.Equal(t, prev.Seq+1, cur.Seq)
		assert.False(t, cur.CreatedAt.Before(prev.CreatedAt))
		assert.Less(t, prev.ID, cur.ID)
	}

	again, err := store.ListMessages(ctx, ticket.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, msgs, again)
}

func TestListMessagesAfterSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ticket := createTicket(t, store, "user-1")
	for i := 0; i < 3; i++ {
		_, err := store.AppendMessage(ctx, NewMessage{TicketID: ticket.ID, AuthorID: "user-1", AuthorKind: domain.AuthorKindUser, Body: "x"})
		require.NoError(t, err)
	}

	msgs, err := store.ListMessages(ctx, ticket.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(3), msgs[0].Seq)
	assert.Equal(t, int64(4), msgs[1].Seq)
}

func TestAppendToClosedTicket(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ticket := createTicket(t, store, "user-1")

	_, err := store.SetStatus(ctx, ticket.ID, domain.TicketStatusOpen, domain.TicketStatusClosed)
	require.NoError(t, err)

	_, err = store.AppendMessage(ctx, NewMessage{TicketID: ticket.ID, AuthorID: "user-1", AuthorKind: domain.AuthorKindUser, Body: "hello"})
	assert.ErrorIs(t, err, ErrTicketClosed)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	sys, err := store.AppendMessage(ctx, NewMessage{
		TicketID:    ticket.ID,
		AuthorID:    domain.SystemAuthorID,
		AuthorKind:  domain.AuthorKindSystem,
		Body:        "sanction recorded",
		AllowClosed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), sys.Seq)
}

func TestSetStatusCompareAndSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ticket := createTicket(t, store, "user-1")

	updated, err := store.SetStatus(ctx, ticket.ID, domain.TicketStatusOpen, domain.TicketStatusClosed)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, updated.Status)
	require.NotNil(t, updated.ClosedAt)

	_, err = store.SetStatus(ctx, ticket.ID, domain.TicketStatusOpen, domain.TicketStatusResolved)
	assert.ErrorIs(t, err, ErrStatusConflict)

	reopened, err := store.SetStatus(ctx, ticket.ID, domain.TicketStatusClosed, domain.TicketStatusOpen)
	require.NoError(t, err)
	assert.Nil(t, reopened.ClosedAt)
}

func TestConcurrentSetStatusHasOneWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ticket := createTicket(t, store, "user-1")

	targets := []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed}
	results := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target domain.TicketStatus) {
			defer wg.Done()
			_, results[i] = store.SetStatus(ctx, ticket.ID, domain.TicketStatusOpen, target)
		}(i, target)
	}
	wg.Wait()

	var winner domain.TicketStatus
	wins := 0
	for i, err := range results {
		if err == nil {
			wins++
			winner = targets[i]
		} else {
			assert.ErrorIs(t, err, apperrors.ErrConflict)
		}
	}
	require.Equal(t, 1, wins)

	final, err := store.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, winner, final.Status)
}

func TestDeleteTicketRemovesMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ticket := createTicket(t, store, "user-1")

	require.NoError(t, store.DeleteTicket(ctx, ticket.ID))

	_, err := store.GetTicket(ctx, ticket.ID)
	assert.ErrorIs(t, err, ErrTicketNotFound)
	_, err = store.ListMessages(ctx, ticket.ID, 0)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.AppendMessage(ctx, NewMessage{TicketID: ticket.ID, AuthorID: "user-1", Body: "x"})
	assert.ErrorIs(t, err, ErrTicketNotFound)
	assert.True(t, errors.Is(store.DeleteTicket(ctx, ticket.ID), ErrTicketNotFound))
}

func TestListTicketsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := createTicket(t, store, "user-a")
	createTicket(t, store, "user-b")
	_, err := store.SetPriority(ctx, a.ID, domain.TicketPriorityUrgent)
	require.NoError(t, err)

	author := "user-a"
	mine, err := store.ListTickets(ctx, TicketFilter{AuthorID: &author})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	urgent, err := store.ListTickets(ctx, TicketFilter{Priorities: []domain.TicketPriority{domain.TicketPriorityUrgent}})
	require.NoError(t, err)
	assert.Len(t, urgent, 1)

	term := "LAUNCHER"
	found, err := store.ListTickets(ctx, TicketFilter{SearchTerm: &term})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	paged, err := store.ListTickets(ctx, TicketFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, paged, 1)

	none, err := store.ListTickets(ctx, TicketFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := createTicket(t, store, "user-a")
	b := createTicket(t, store, "user-b")
	c := createTicket(t, store, "user-c")

	_, err := store.SetPriority(ctx, a.ID, domain.TicketPriorityHigh)
	require.NoError(t, err)
	_, err = store.SetPriority(ctx, b.ID, domain.TicketPriorityUrgent)
	require.NoError(t, err)
	_, err = store.SetStatus(ctx, b.ID, domain.TicketStatusOpen, domain.TicketStatusResolved)
	require.NoError(t, err)
	_, err = store.SetStatus(ctx, c.ID, domain.TicketStatusOpen, domain.TicketStatusPending)
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStats{Total: 3, Open: 1, Pending: 1, Urgent: 1}, stats)
}

func TestMemoryAuditRepository(t *testing.T) {
	repo := NewMemoryAuditRepository()
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, &domain.AuditEntry{TicketID: "t-1", Action: domain.AuditCreateTicket}))
	require.NoError(t, repo.Record(ctx, &domain.AuditEntry{TicketID: "t-2", Action: domain.AuditCreateTicket}))
	require.NoError(t, repo.Record(ctx, &domain.AuditEntry{TicketID: "t-1", Action: domain.AuditDeleteTicket}))

	ticketID := "t-1"
	entries, err := repo.List(ctx, AuditFilter{TicketID: &ticketID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotEmpty(t, e.ID)
		assert.NotNil(t, e.Details)
		assert.False(t, e.CreatedAt.IsZero())
	}

	all, err := repo.List(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryAuditRepositoryNewestFirst(t *testing.T) {
	repo := NewMemoryAuditRepository()
	ctx := context.Background()
	tick := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	actions := []domain.AuditAction{domain.AuditCreateTicket, domain.AuditUpdateStatus, domain.AuditSanction, domain.AuditDeleteTicket}
	for _, action := range actions {
		require.NoError(t, repo.Record(ctx, &domain.AuditEntry{TicketID: "t-1", Action: action, CreatedAt: tick}))
	}

	entries, err := repo.List(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, len(actions))
	for i, e := range entries {
		assert.Equal(t, actions[len(actions)-1-i], e.Action)
	}

	page, err := repo.List(ctx, AuditFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, domain.AuditSanction, page[0].Action)
	assert.Equal(t, domain.AuditUpdateStatus, page[1].Action)
}

func TestPageBoundsCapsLimit(t *testing.T) {
	limit, offset := pageBounds(TicketFilter{Limit: 1_000_000, Offset: -3})
	assert.Equal(t, maxListLimit, limit)
	assert.Zero(t, offset)

	limit, _ = pageBounds(TicketFilter{})
	assert.Equal(t, defaultListLimit, limit)
}
