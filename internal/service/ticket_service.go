package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/auth"
	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/events"
	"github.com/spec-kit/support-tickets/internal/moderation"
	"github.com/spec-kit/support-tickets/internal/observability"
	"github.com/spec-kit/support-tickets/internal/realtime"
	"github.com/spec-kit/support-tickets/internal/repository"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

const maxSubjectLength = 150

// MessageChannel is the ordered real-time fan-out the service publishes to.
// realtime.Sequencer implements it.
type MessageChannel interface {
	realtime.Channel
	Observe(ticketID string, lastSeq int64)
	Release(ticketID string)
	Forget(ticketID string)
}

// SanctionDispatcher sends sanctions to the game server.
// moderation.Bridge implements it.
type SanctionDispatcher interface {
	Dispatch(ctx context.Context, req domain.SanctionRequest, meta moderation.CommandMeta) domain.SanctionOutcome
	Status(ctx context.Context, id string) (*domain.QueuedCommand, error)
}

// MessageLimits caps message bodies in runes. Zero means unlimited.
type MessageLimits struct {
	User  int
	Staff int
}

// TicketService coordinates ticket workflows. Every operation checks the
// guard (and the state machine for transitions) before touching the store.
type TicketService struct {
	store      repository.TicketStore
	audit      repository.AuditRepository
	guard      *auth.Guard
	channel    MessageChannel
	bridge     SanctionDispatcher
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	limits     MessageLimits
	sanctions  sanctionSettings
	inflight   sync.WaitGroup
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store           repository.TicketStore
	Audit           repository.AuditRepository
	Guard           *auth.Guard
	Channel         MessageChannel
	Bridge          SanctionDispatcher
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
	Metrics         *observability.Metrics
	Limits          MessageLimits
	DispatchTimeout time.Duration
	IdempotencyTTL  time.Duration
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Subject     string
	Description string
	Priority    domain.TicketPriority
}

// TicketListFilter describes listing filters. Non-staff callers only ever
// see their own tickets.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	SearchTerm *string
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		store:      deps.Store,
		audit:      deps.Audit,
		guard:      deps.Guard,
		channel:    deps.Channel,
		bridge:     deps.Bridge,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		limits:     deps.Limits,
		sanctions:  newSanctionSettings(deps.DispatchTimeout, deps.IdempotencyTTL),
	}
}

// CreateTicket opens a ticket. Its description becomes the first message.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(input.Subject)
	description := strings.TrimSpace(input.Description)
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}

	switch {
	case subject == "":
		return nil, apperrors.NewValidationError("subject is required", nil)
	case utf8.RuneCountInString(subject) > maxSubjectLength:
		return nil, apperrors.NewValidationError("subject is too long", map[string]any{"max": maxSubjectLength})
	case description == "":
		return nil, apperrors.NewValidationError("description is required", nil)
	case !priority.Valid():
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	isStaff := s.guard.IsStaff(actor)
	if err := s.checkLength(description, isStaff); err != nil {
		return nil, err
	}

	ticket, err := s.store.CreateTicket(ctx, repository.NewTicket{
		AuthorID:      actor.ID,
		AuthorIsStaff: isStaff,
		Subject:       subject,
		Description:   description,
		Priority:      priority,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Incr("ticket|created")
	s.recordAudit(ctx, actor, ticket.ID, domain.AuditCreateTicket, map[string]any{
		"subject":  ticket.Subject,
		"priority": ticket.Priority,
	})
	s.publishEvent(ctx, events.NewEvent(events.EventTicketCreated, ticket.ID, actor, events.TicketCreatedPayload{
		AuthorID: ticket.AuthorID,
		Priority: ticket.Priority,
		Subject:  ticket.Subject,
	}))
	return ticket, nil
}

// GetTicket returns a ticket with its full thread.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.readableTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := retryRead(ctx, func(ctx context.Context) ([]domain.TicketMessage, error) {
		return s.store.ListMessages(ctx, ticket.ID, 0)
	})
	if err != nil {
		return nil, nil, err
	}
	return ticket, msgs, nil
}

// ListTickets lists tickets visible to the actor.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if !s.guard.IsStaff(actor) {
		authorID := actor.ID
		repoFilter.AuthorID = &authorID
	}
	return retryRead(ctx, func(ctx context.Context) ([]domain.Ticket, error) {
		return s.store.ListTickets(ctx, repoFilter)
	})
}

// ListMessages returns the thread after afterSeq, in append order. Clients
// use it to recover what they missed while not subscribed.
func (s *TicketService) ListMessages(ctx context.Context, actor domain.Actor, ticketID string, afterSeq int64) ([]domain.TicketMessage, error) {
	if afterSeq < 0 {
		return nil, apperrors.NewValidationError("after_seq must not be negative", nil)
	}
	ticket, err := s.readableTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	return retryRead(ctx, func(ctx context.Context) ([]domain.TicketMessage, error) {
		return s.store.ListMessages(ctx, ticket.ID, afterSeq)
	})
}

// PostMessage appends a message and publishes it once stored.
func (s *TicketService) PostMessage(ctx context.Context, actor domain.Actor, ticketID, body string) (*domain.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body is required", nil)
	}
	ticket, err := s.readableTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanPost(actor, ticket) {
		return nil, repository.ErrTicketClosed
	}
	isStaff := s.guard.IsStaff(actor)
	if err := s.checkLength(body, isStaff); err != nil {
		return nil, err
	}
	kind := domain.AuthorKindUser
	if isStaff {
		kind = domain.AuthorKindStaff
	}

	s.channel.Observe(ticket.ID, ticket.MessageSeq)
	msg, err := s.store.AppendMessage(ctx, repository.NewMessage{
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		AuthorKind: kind,
		IsStaff:    isStaff,
		Body:       body,
	})
	if err != nil {
		return nil, err
	}

	s.publishMessage(ctx, msg)
	s.metrics.Incr("message|posted")
	s.publishEvent(ctx, events.NewEvent(events.EventTicketMessageAdded, ticket.ID, actor, events.TicketMessageAddedPayload{
		MessageID:   msg.ID,
		Seq:         msg.Seq,
		AuthorKind:  msg.AuthorKind,
		AuthorID:    msg.AuthorID,
		BodyPreview: stringPreview(msg.Body, 120),
	}))
	return msg, nil
}

// Subscribe opens a live feed of new messages on a ticket. It ends when ctx
// is done or the subscription is closed.
func (s *TicketService) Subscribe(ctx context.Context, actor domain.Actor, ticketID string) (*realtime.Subscription, error) {
	ticket, err := s.readableTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	return s.channel.Subscribe(ctx, ticket.ID)
}

// Stats summarizes the ticket queue for staff.
func (s *TicketService) Stats(ctx context.Context, actor domain.Actor) (domain.TicketStats, error) {
	if !s.guard.CanViewAudit(actor) {
		return domain.TicketStats{}, apperrors.NewForbidden("staff role required")
	}
	return retryRead(ctx, s.store.Stats)
}

// ListAudit returns the action log, optionally for one ticket. Entries of
// deleted tickets are still listed.
func (s *TicketService) ListAudit(ctx context.Context, actor domain.Actor, filter repository.AuditFilter) ([]domain.AuditEntry, error) {
	if !s.guard.CanViewAudit(actor) {
		return nil, apperrors.NewForbidden("staff role required")
	}
	return s.audit.List(ctx, filter)
}

// CommandStatus reports whether the game server ran a queued command.
func (s *TicketService) CommandStatus(ctx context.Context, actor domain.Actor, commandID string) (*domain.QueuedCommand, error) {
	if !s.guard.CanViewAudit(actor) {
		return nil, apperrors.NewForbidden("staff role required")
	}
	return s.bridge.Status(ctx, commandID)
}

// readableTicket loads a ticket and checks read access.
func (s *TicketService) readableTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ticket, err := retryRead(ctx, func(ctx context.Context) (*domain.Ticket, error) {
		return s.store.GetTicket(ctx, ticketID)
	})
	if err != nil {
		return nil, err
	}
	if !s.guard.CanRead(actor, ticket) {
		return nil, apperrors.NewForbidden("you do not have access to this ticket")
	}
	return ticket, nil
}

func (s *TicketService) checkLength(body string, isStaff bool) error {
	limit := s.limits.User
	if isStaff {
		limit = s.limits.Staff
	}
	if limit > 0 && utf8.RuneCountInString(body) > limit {
		return apperrors.NewValidationError("message is too long", map[string]any{"max": limit})
	}
	return nil
}

// publishMessage hands a stored message to the channel. The message is
// already durable, so a failed publish is logged and not returned; clients
// recover it through ListMessages.
func (s *TicketService) publishMessage(ctx context.Context, msg *domain.TicketMessage) {
	if err := s.channel.Publish(context.WithoutCancel(ctx), *msg); err != nil {
		s.metrics.Incr("realtime|publish_failed")
		s.logger.Warn("realtime publish failed",
			zap.String("ticket_id", msg.TicketID),
			zap.Int64("seq", msg.Seq),
			zap.Error(err),
		)
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err),
		)
	}
}

// recordAudit runs after the mutation has committed, so a failure is logged
// rather than reported as a failed operation.
func (s *TicketService) recordAudit(ctx context.Context, actor domain.Actor, ticketID string, action domain.AuditAction, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &domain.AuditEntry{
		TicketID:  ticketID,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    action,
		Details:   details,
	}
	if err := s.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.metrics.Incr("audit|failed")
		s.logger.Error("audit write failed",
			zap.String("ticket_id", ticketID),
			zap.String("action", string(action)),
			zap.Error(err),
		)
	}
}

// retryRead retries a read once when the store reports a conflict. Writes
// never go through here.
func retryRead[T any](ctx context.Context, read func(context.Context) (T, error)) (T, error) {
	v, err := read(ctx)
	if err != nil && errors.Is(err, apperrors.ErrConflict) {
		return read(ctx)
	}
	return v, err
}

func requireActor(actor domain.Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	return nil
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
