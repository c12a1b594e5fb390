package auth

import (
	"strings"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// Guard decides what an actor may do with a ticket. Decisions are computed
// from the arguments on every call and never cached.
type Guard struct {
	staffRoles      map[string]struct{}
	authorCanReopen bool
}

// NewGuard builds a guard. Role names are matched case-insensitively.
func NewGuard(staffRoles []string, authorCanReopen bool) *Guard {
	roles := make(map[string]struct{}, len(staffRoles))
	for _, role := range staffRoles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role != "" {
			roles[role] = struct{}{}
		}
	}
	return &Guard{staffRoles: roles, authorCanReopen: authorCanReopen}
}

// IsStaff reports whether the actor's role is privileged.
func (g *Guard) IsStaff(actor domain.Actor) bool {
	_, ok := g.staffRoles[strings.ToLower(actor.Role)]
	return ok
}

func (g *Guard) isAuthor(actor domain.Actor, ticket *domain.Ticket) bool {
	return actor.ID != "" && actor.ID == ticket.AuthorID
}

// CanRead allows staff and the ticket's author. Authors keep read access to
// closed tickets.
func (g *Guard) CanRead(actor domain.Actor, ticket *domain.Ticket) bool {
	return g.IsStaff(actor) || g.isAuthor(actor, ticket)
}

// CanPost denies everyone on a closed ticket.
func (g *Guard) CanPost(actor domain.Actor, ticket *domain.Ticket) bool {
	if !ticket.Status.AcceptsMessages() {
		return false
	}
	return g.IsStaff(actor) || g.isAuthor(actor, ticket)
}

// CanTransition is about who, not whether the edge exists; the state machine
// answers the latter.
func (g *Guard) CanTransition(actor domain.Actor, ticket *domain.Ticket, target domain.TicketStatus) bool {
	if g.IsStaff(actor) {
		return true
	}
	return g.authorCanReopen &&
		g.isAuthor(actor, ticket) &&
		ticket.Status == domain.TicketStatusClosed &&
		target == domain.TicketStatusOpen
}

func (g *Guard) CanSanction(actor domain.Actor) bool {
	return g.IsStaff(actor)
}

func (g *Guard) CanDelete(actor domain.Actor) bool {
	return g.IsStaff(actor)
}

func (g *Guard) CanChangePriority(actor domain.Actor) bool {
	return g.IsStaff(actor)
}

// CanViewAudit covers the audit trail, stats and command status.
func (g *Guard) CanViewAudit(actor domain.Actor) bool {
	return g.IsStaff(actor)
}
