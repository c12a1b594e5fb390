package moderation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// RefreshSignal tells the game-server plugin to poll the queue now.
const RefreshSignal = "REFRESH_COMMANDS"

// Notifier is the Redis publish call used to wake the plugin.
type Notifier interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// PostgresQueue queues commands in pending_commands, where the game-server
// plugin picks them up and marks them executed.
type PostgresQueue struct {
	pool     *pgxpool.Pool
	notifier Notifier
	channel  string
	logger   *zap.Logger
}

// NewPostgresQueue builds a queue. notifier may be nil, in which case the
// plugin only sees commands on its next poll.
func NewPostgresQueue(pool *pgxpool.Pool, notifier Notifier, channel string, logger *zap.Logger) *PostgresQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresQueue{pool: pool, notifier: notifier, channel: channel, logger: logger}
}

// Execute accepts the command once it is durably queued.
func (q *PostgresQueue) Execute(ctx context.Context, command string, meta CommandMeta) (CommandReceipt, error) {
	const query = `
        INSERT INTO pending_commands (command, ticket_id, requested_by)
        VALUES ($1, NULLIF($2, ''), $3)
        RETURNING id`
	var id int64
	if err := q.pool.QueryRow(ctx, query, command, meta.TicketID, meta.RequestedBy).Scan(&id); err != nil {
		return CommandReceipt{}, fmt.Errorf("queue command: %w", err)
	}

	receipt := CommandReceipt{ID: strconv.FormatInt(id, 10), Accepted: true, Detail: "queued"}
	if q.notifier != nil {
		// The row is committed, so a failed wake-up only delays execution.
		if err := q.notifier.Publish(ctx, q.channel, RefreshSignal).Err(); err != nil {
			q.logger.Warn("command refresh notify failed", zap.String("command_id", receipt.ID), zap.Error(err))
			receipt.Detail = "queued; plugin not notified"
		}
	}
	return receipt, nil
}

func (q *PostgresQueue) Status(ctx context.Context, id string) (*domain.QueuedCommand, error) {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrCommandNotFound
	}
	const query = `
        SELECT id, command, COALESCE(ticket_id, ''), requested_by, executed, executed_at, created_at
        FROM pending_commands WHERE id=$1`
	var (
		cmd   domain.QueuedCommand
		rowID int64
	)
	err = q.pool.QueryRow(ctx, query, numericID).Scan(
		&rowID,
		&cmd.Command,
		&cmd.TicketID,
		&cmd.RequestedBy,
		&cmd.Executed,
		&cmd.ExecutedAt,
		&cmd.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCommandNotFound
	}
	if err != nil {
		return nil, err
	}
	cmd.ID = strconv.FormatInt(rowID, 10)
	return &cmd, nil
}
