package domain

import "time"

// QueuedCommand is a game-server command waiting for, or already picked up
// by, the server plugin.
type QueuedCommand struct {
	ID          string
	Command     string
	TicketID    string
	RequestedBy string
	Executed    bool
	ExecutedAt  *time.Time
	CreatedAt   time.Time
}
