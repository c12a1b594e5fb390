package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/events"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

// StatusChange asks for a transition. When Expected is set the change only
// applies if the ticket is still in that status, so a client acting on a
// stale view gets Conflict instead of a transition it never saw.
type StatusChange struct {
	Target   domain.TicketStatus
	Expected *domain.TicketStatus
}

// ChangeStatus applies one state machine transition. It is never retried:
// the store compares against the status it was validated from.
func (s *TicketService) ChangeStatus(ctx context.Context, actor domain.Actor, ticketID string, change StatusChange) (*domain.Ticket, error) {
	if !change.Target.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": change.Target})
	}
	ticket, err := s.readableTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanTransition(actor, ticket, change.Target) {
		return nil, apperrors.NewForbidden("you may not change the status of this ticket")
	}

	current := ticket.Status
	if change.Expected != nil && *change.Expected != current {
		return nil, apperrors.NewConflict("ticket status changed", map[string]any{
			"expected": *change.Expected,
			"current":  current,
		})
	}
	if !current.CanTransitionTo(change.Target) {
		return nil, apperrors.NewInvalidTransition(string(current), string(change.Target))
	}

	updated, err := s.store.SetStatus(ctx, ticket.ID, current, change.Target)
	if err != nil {
		return nil, err
	}
	if change.Target == domain.TicketStatusClosed {
		s.channel.Release(ticket.ID)
	}

	s.metrics.Incr("status|" + string(change.Target))
	s.logger.Info("ticket status changed",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(current)),
		zap.String("to", string(change.Target)),
		zap.String("actor_id", actor.ID),
	)
	s.recordAudit(ctx, actor, ticket.ID, domain.AuditUpdateStatus, map[string]any{
		"from": current,
		"to":   change.Target,
	})
	s.publishEvent(ctx, events.NewEvent(events.EventTicketStatusChanged, ticket.ID, actor, events.TicketStatusChangedPayload{
		OldStatus: current,
		NewStatus: change.Target,
	}))
	return updated, nil
}

// ChangePriority lets staff re-rank a ticket.
func (s *TicketService) ChangePriority(ctx context.Context, actor domain.Actor, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !s.guard.CanChangePriority(actor) {
		return nil, apperrors.NewForbidden("staff role required")
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	ticket, err := s.readableTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Priority == priority {
		return ticket, nil
	}

	updated, err := s.store.SetPriority(ctx, ticket.ID, priority)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, ticket.ID, domain.AuditUpdatePriority, map[string]any{
		"from": ticket.Priority,
		"to":   priority,
	})
	s.publishEvent(ctx, events.NewEvent(events.EventTicketPriorityChanged, ticket.ID, actor, events.TicketPriorityChangedPayload{
		OldPriority: ticket.Priority,
		NewPriority: priority,
	}))
	return updated, nil
}

// DeleteTicket removes a ticket and its thread for good. It is not a status
// transition and works from any status. The audit entry survives.
func (s *TicketService) DeleteTicket(ctx context.Context, actor domain.Actor, ticketID string) error {
	if !s.guard.CanDelete(actor) {
		return apperrors.NewForbidden("staff role required")
	}
	ticket, err := s.readableTicket(ctx, actor, ticketID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTicket(ctx, ticket.ID); err != nil {
		return err
	}
	s.channel.Forget(ticket.ID)

	s.metrics.Incr("ticket|deleted")
	s.logger.Warn("ticket deleted",
		zap.String("ticket_id", ticket.ID),
		zap.String("actor_id", actor.ID),
	)
	s.recordAudit(ctx, actor, ticket.ID, domain.AuditDeleteTicket, map[string]any{
		"subject":       ticket.Subject,
		"author_id":     ticket.AuthorID,
		"status":        ticket.Status,
		"message_count": ticket.MessageSeq,
	})
	s.publishEvent(ctx, events.NewEvent(events.EventTicketDeleted, ticket.ID, actor, events.TicketDeletedPayload{
		Subject:      ticket.Subject,
		MessageCount: ticket.MessageSeq,
	}))
	return nil
}
