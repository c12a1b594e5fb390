package moderation

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// MemoryQueue keeps queued commands in process. It stands in for the
// Postgres queue when no database is configured.
type MemoryQueue struct {
	mu       sync.Mutex
	seq      int64
	commands map[string]*domain.QueuedCommand
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{commands: make(map[string]*domain.QueuedCommand)}
}

func (q *MemoryQueue) Execute(ctx context.Context, command string, meta CommandMeta) (CommandReceipt, error) {
	if err := ctx.Err(); err != nil {
		return CommandReceipt{}, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	id := strconv.FormatInt(q.seq, 10)
	q.commands[id] = &domain.QueuedCommand{
		ID:          id,
		Command:     command,
		TicketID:    meta.TicketID,
		RequestedBy: meta.RequestedBy,
		CreatedAt:   time.Now().UTC(),
	}
	return CommandReceipt{ID: id, Accepted: true, Detail: "queued"}, nil
}

func (q *MemoryQueue) Status(_ context.Context, id string) (*domain.QueuedCommand, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmd, ok := q.commands[id]
	if !ok {
		return nil, ErrCommandNotFound
	}
	out := *cmd
	return &out, nil
}

// MarkExecuted records that the plugin ran a command.
func (q *MemoryQueue) MarkExecuted(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmd, ok := q.commands[id]
	if !ok {
		return false
	}
	now := time.Now().UTC()
	cmd.Executed = true
	cmd.ExecutedAt = &now
	return true
}

// Commands returns every queued command in queue order.
func (q *MemoryQueue) Commands() []domain.QueuedCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.QueuedCommand, 0, len(q.commands))
	for i := int64(1); i <= q.seq; i++ {
		if cmd, ok := q.commands[strconv.FormatInt(i, 10)]; ok {
			out = append(out, *cmd)
		}
	}
	return out
}
