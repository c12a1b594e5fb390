package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/events"
	"github.com/spec-kit/support-tickets/internal/moderation"
	"github.com/spec-kit/support-tickets/internal/repository"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

const (
	defaultDispatchTimeout = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
)

// SanctionResult is what a sanction produced: the boundary's outcome and the
// system message recording it in the thread.
type SanctionResult struct {
	Outcome domain.SanctionOutcome
	Message *domain.TicketMessage
}

type sanctionSettings struct {
	timeout time.Duration
	keys    *idempotencyKeys
}

func newSanctionSettings(timeout, ttl time.Duration) sanctionSettings {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return sanctionSettings{timeout: timeout, keys: newIdempotencyKeys(ttl)}
}

// Sanction dispatches a ban for the nickname named in req and records the
// outcome as a system message on the ticket.
//
// The dispatch runs detached from ctx: if the caller goes away the command
// is still sent once and its outcome still recorded. A non-accepted outcome
// is returned together with a BRIDGE_UNAVAILABLE error.
func (s *TicketService) Sanction(ctx context.Context, actor domain.Actor, ticketID string, req domain.SanctionRequest) (*SanctionResult, error) {
	if !s.guard.CanSanction(actor) {
		return nil, apperrors.NewForbidden("staff role required")
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}
	ticket, err := s.readableTicket(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.AcceptsSanctions() {
		return nil, apperrors.NewForbidden("sanctions require an open or pending ticket")
	}
	if req.IdempotencyKey != "" && !s.sanctions.keys.claim(ticket.ID+"|"+req.IdempotencyKey, time.Now()) {
		return nil, apperrors.NewConflict("sanction already submitted", map[string]any{
			"idempotency_key": req.IdempotencyKey,
		})
	}

	done := make(chan *SanctionResult, 1)
	detached := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		done <- s.dispatchSanction(detached, actor, ticket, req)
	}()

	var result *SanctionResult
	select {
	case result = <-done:
	case <-ctx.Done():
		s.logger.Info("sanction caller gone; dispatch continues",
			zap.String("ticket_id", ticket.ID),
			zap.String("actor_id", actor.ID),
		)
		return nil, apperrors.NewDispatchPending(
			"sanction dispatch continues in the background; its outcome will appear in the ticket thread",
			ctx.Err(),
			map[string]any{"ticket_id": ticket.ID, "target": req.TargetNickname},
		)
	}

	if result.Outcome.Accepted() {
		return result, nil
	}
	details := map[string]any{
		"status":  result.Outcome.Status,
		"command": result.Outcome.Command,
		"detail":  result.Outcome.Detail,
	}
	if result.Message != nil {
		details["message_id"] = result.Message.ID
	}
	return result, apperrors.NewBridgeUnavailable("sanction was not accepted", details)
}

// Wait blocks until every detached sanction dispatch has recorded its
// outcome, or ctx is done. Call it after the HTTP server has stopped taking
// requests and before closing the stores.
func (s *TicketService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatchSanction is the only place the bridge is called. There is no loop
// around it.
func (s *TicketService) dispatchSanction(ctx context.Context, actor domain.Actor, ticket *domain.Ticket, req domain.SanctionRequest) *SanctionResult {
	dispatchCtx, cancel := context.WithTimeout(ctx, s.sanctions.timeout)
	outcome := s.bridge.Dispatch(dispatchCtx, req, moderation.CommandMeta{
		TicketID:    ticket.ID,
		RequestedBy: actor.ID,
	})
	cancel()

	s.metrics.Incr("sanction|" + string(outcome.Status))
	result := &SanctionResult{Outcome: outcome}

	recordCtx, cancelRecord := context.WithTimeout(ctx, s.sanctions.timeout)
	defer cancelRecord()

	s.channel.Observe(ticket.ID, ticket.MessageSeq)
	msg, err := s.store.AppendMessage(recordCtx, repository.NewMessage{
		TicketID:    ticket.ID,
		AuthorID:    domain.SystemAuthorID,
		AuthorKind:  domain.AuthorKindSystem,
		IsStaff:     true,
		Body:        sanctionMessage(actor, req, outcome),
		AllowClosed: true,
	})
	if err != nil {
		s.logger.Error("sanction outcome not recorded in thread",
			zap.String("ticket_id", ticket.ID),
			zap.String("status", string(outcome.Status)),
			zap.Error(err),
		)
	} else {
		result.Message = msg
		s.publishMessage(recordCtx, msg)
	}

	auditDetails := map[string]any{
		"target":        req.TargetNickname,
		"duration_kind": req.DurationKind,
		"reason":        req.Reason,
		"status":        outcome.Status,
		"command":       outcome.Command,
		"command_id":    outcome.CommandID,
	}
	if req.DurationKind == domain.SanctionTemporary {
		auditDetails["duration"] = strconv.Itoa(req.DurationValue) + req.DurationUnit.Suffix()
	}
	s.recordAudit(recordCtx, actor, ticket.ID, domain.AuditSanction, auditDetails)
	s.publishEvent(recordCtx, events.NewEvent(events.EventTicketSanctioned, ticket.ID, actor, events.TicketSanctionedPayload{
		TargetNickname: req.TargetNickname,
		Status:         outcome.Status,
		Command:        outcome.Command,
		CommandID:      outcome.CommandID,
	}))
	return result
}

func sanctionMessage(actor domain.Actor, req domain.SanctionRequest, outcome domain.SanctionOutcome) string {
	command := outcome.Command
	if command == "" {
		command = req.TargetNickname
	}
	var text string
	switch outcome.Status {
	case domain.SanctionAccepted:
		text = fmt.Sprintf("Sanction accepted: %s", command)
		if outcome.CommandID != "" {
			text += fmt.Sprintf(" (command #%s)", outcome.CommandID)
		}
	case domain.SanctionRejected:
		text = fmt.Sprintf("Sanction rejected: %s", command)
	default:
		text = fmt.Sprintf("Sanction could not be delivered: %s", command)
	}
	if outcome.Detail != "" && outcome.Status != domain.SanctionAccepted {
		text += fmt.Sprintf(" (%s)", outcome.Detail)
	}
	return text + fmt.Sprintf(". Requested by %s.", actor.ID)
}

// idempotencyKeys remembers sanction keys for ttl.
type idempotencyKeys struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
}

func newIdempotencyKeys(ttl time.Duration) *idempotencyKeys {
	return &idempotencyKeys{ttl: ttl, seen: make(map[string]time.Time)}
}

// claim reports whether key is new, and remembers it.
func (k *idempotencyKeys) claim(key string, now time.Time) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for existing, expires := range k.seen {
		if now.After(expires) {
			delete(k.seen, existing)
		}
	}
	if _, ok := k.seen[key]; ok {
		return false
	}
	k.seen[key] = now.Add(k.ttl)
	return true
}
