package domain

// transitions lists every legal status change. closed -> open (reopen) is the
// only backward edge; pending is optional and may be skipped entirely.
var transitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:     {TicketStatusPending, TicketStatusResolved, TicketStatusClosed},
	TicketStatusPending:  {TicketStatusResolved, TicketStatusClosed},
	TicketStatusResolved: {TicketStatusClosed},
	TicketStatusClosed:   {TicketStatusOpen},
}

// CanTransitionTo reports whether the table allows moving from s to next.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from s.
func (s TicketStatus) AllowedTransitions() []TicketStatus {
	out := make([]TicketStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// AcceptsMessages reports whether regular (non-system) messages may be posted.
func (s TicketStatus) AcceptsMessages() bool {
	return s != TicketStatusClosed
}

// AcceptsSanctions reports whether a sanction may be requested against a
// ticket in this status.
func (s TicketStatus) AcceptsSanctions() bool {
	return s == TicketStatusOpen || s == TicketStatusPending
}
