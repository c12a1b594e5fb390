package domain

import "time"

// MessageAuthorKind indicates who authored a message.
type MessageAuthorKind string

const (
	AuthorKindUser   MessageAuthorKind = "user"
	AuthorKindStaff  MessageAuthorKind = "staff"
	AuthorKindSystem MessageAuthorKind = "system"
)

// SystemAuthorID is the author recorded on messages written by the service itself.
const SystemAuthorID = "system"

// TicketMessage is one immutable entry in a ticket thread.
//
// Seq is the 1-based append position within the ticket. Messages of a ticket
// are totally ordered by Seq, which agrees with (CreatedAt, ID) ordering.
type TicketMessage struct {
	ID         string
	TicketID   string
	Seq        int64
	AuthorID   string
	AuthorKind MessageAuthorKind
	IsStaff    bool
	Body       string
	CreatedAt  time.Time
}
