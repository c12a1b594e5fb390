package domain

import "time"

// AuditAction captures what an audit entry records.
type AuditAction string

const (
	AuditCreateTicket   AuditAction = "CREATE_TICKET"
	AuditUpdateStatus   AuditAction = "UPDATE_STATUS"
	AuditUpdatePriority AuditAction = "UPDATE_PRIORITY"
	AuditSanction       AuditAction = "SANCTION"
	AuditDeleteTicket   AuditAction = "DELETE_TICKET"
)

// AuditEntry is an immutable trail entry. It outlives the ticket it refers to,
// so deletions stay traceable.
type AuditEntry struct {
	ID        string
	TicketID  string
	ActorID   string
	ActorRole string
	Action    AuditAction
	Details   map[string]any
	CreatedAt time.Time
}
