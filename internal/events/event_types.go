package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketMessageAdded    EventType = "ticket_message_added"
	EventTicketSanctioned      EventType = "ticket_sanctioned"
	EventTicketDeleted         EventType = "ticket_deleted"
)

// AllEventTypes lists every type, in a stable order, for subscribers that
// want everything.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketMessageAdded,
	EventTicketSanctioned,
	EventTicketDeleted,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(eventType EventType, ticketID string, actor domain.Actor, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     Actor{ID: actor.ID, Role: actor.Role},
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	AuthorID string                `json:"author_id"`
	Priority domain.TicketPriority `json:"priority"`
	Subject  string                `json:"subject"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string                   `json:"message_id"`
	Seq         int64                    `json:"seq"`
	AuthorKind  domain.MessageAuthorKind `json:"author_kind"`
	AuthorID    string                   `json:"author_id"`
	BodyPreview string                   `json:"body_preview"`
}

// TicketSanctionedPayload payload.
type TicketSanctionedPayload struct {
	TargetNickname string                       `json:"target_nickname"`
	Status         domain.SanctionOutcomeStatus `json:"status"`
	Command        string                       `json:"command,omitempty"`
	CommandID      string                       `json:"command_id,omitempty"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	Subject      string `json:"subject"`
	MessageCount int64  `json:"message_count"`
}
