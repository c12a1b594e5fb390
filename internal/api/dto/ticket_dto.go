package dto

import (
	"time"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Subject     string                `json:"subject"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
}

// TicketSummary response.
type TicketSummary struct {
	ID            string                `json:"id"`
	AuthorID      string                `json:"author_id"`
	Subject       string                `json:"subject"`
	Status        domain.TicketStatus   `json:"status"`
	Priority      domain.TicketPriority `json:"priority"`
	MessageSeq    int64                 `json:"message_seq"`
	LastMessageAt time.Time             `json:"last_message_at"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	ClosedAt      *time.Time            `json:"closed_at,omitempty"`
	// AllowedTransitions are the statuses the state machine allows next.
	// Permissions may narrow them further for a given caller.
	AllowedTransitions []domain.TicketStatus `json:"allowed_transitions"`
}

// TicketDetailResponse includes the full thread.
type TicketDetailResponse struct {
	TicketSummary
	Description string                  `json:"description"`
	Messages    []TicketMessageResponse `json:"messages"`
}

// TicketMessageResponse is a single thread entry. It is also the payload of
// "message" events on the ticket stream.
type TicketMessageResponse struct {
	ID         string                   `json:"id"`
	TicketID   string                   `json:"ticket_id"`
	Seq        int64                    `json:"seq"`
	AuthorID   string                   `json:"author_id"`
	AuthorKind domain.MessageAuthorKind `json:"author_kind"`
	IsStaff    bool                     `json:"is_staff"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Body string `json:"body"`
}

// UpdateStatusRequest payload. ExpectedStatus makes the change conditional
// on the status the caller last saw.
type UpdateStatusRequest struct {
	Status         domain.TicketStatus  `json:"status"`
	ExpectedStatus *domain.TicketStatus `json:"expected_status"`
}

// NewTicketSummary maps a ticket.
func NewTicketSummary(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:            ticket.ID,
		AuthorID:      ticket.AuthorID,
		Subject:       ticket.Subject,
		Status:        ticket.Status,
		Priority:      ticket.Priority,
		MessageSeq:    ticket.MessageSeq,
		LastMessageAt: ticket.LastMessageAt,
		CreatedAt:     ticket.CreatedAt,
		UpdatedAt:     ticket.UpdatedAt,
		ClosedAt:      ticket.ClosedAt,

		AllowedTransitions: ticket.Status.AllowedTransitions(),
	}
}

// NewTicketDetail maps a ticket with its messages.
func NewTicketDetail(ticket *domain.Ticket, messages []domain.TicketMessage) TicketDetailResponse {
	return TicketDetailResponse{
		TicketSummary: NewTicketSummary(ticket),
		Description:   ticket.Description,
		Messages:      NewMessageList(messages),
	}
}

// NewMessageResponse maps a message.
func NewMessageResponse(msg *domain.TicketMessage) TicketMessageResponse {
	return TicketMessageResponse{
		ID:         msg.ID,
		TicketID:   msg.TicketID,
		Seq:        msg.Seq,
		AuthorID:   msg.AuthorID,
		AuthorKind: msg.AuthorKind,
		IsStaff:    msg.IsStaff,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}
}

// NewMessageList maps messages, preserving order.
func NewMessageList(messages []domain.TicketMessage) []TicketMessageResponse {
	resp := make([]TicketMessageResponse, 0, len(messages))
	for i := range messages {
		resp = append(resp, NewMessageResponse(&messages[i]))
	}
	return resp
}
