package moderation

import (
	"context"

	"github.com/spec-kit/support-tickets/internal/domain"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

// ErrCommandNotFound is returned by Status for unknown command ids.
var ErrCommandNotFound = apperrors.NewNotFound("command", nil)

// CommandMeta tags a command with where it came from.
type CommandMeta struct {
	TicketID    string
	RequestedBy string
}

// CommandReceipt is the boundary's answer to one Execute call.
type CommandReceipt struct {
	ID       string
	Accepted bool
	Detail   string
}

// CommandExecutor is the external enforcement boundary. Execute must be
// called at most once per command; an error means the boundary could not be
// reached and nothing is known about the command's fate.
type CommandExecutor interface {
	Execute(ctx context.Context, command string, meta CommandMeta) (CommandReceipt, error)
	Status(ctx context.Context, id string) (*domain.QueuedCommand, error)
}
