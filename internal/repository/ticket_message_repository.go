package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// AppendMessage locks the ticket row, so appends on one ticket are serialized
// by Postgres and the closed check cannot race a concurrent close.
func (r *ticketRepository) AppendMessage(ctx context.Context, in NewMessage) (*domain.TicketMessage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		status   domain.TicketStatus
		seq      int64
		lastTime time.Time
	)
	err = tx.QueryRow(ctx,
		`SELECT status, message_seq, last_message_at FROM tickets WHERE id=$1 FOR UPDATE`,
		in.TicketID,
	).Scan(&status, &seq, &lastTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	if !in.AllowClosed && !status.AcceptsMessages() {
		return nil, ErrTicketClosed
	}

	msg := &domain.TicketMessage{
		ID:         r.ids.NextString(),
		TicketID:   in.TicketID,
		Seq:        seq + 1,
		AuthorID:   in.AuthorID,
		AuthorKind: in.AuthorKind,
		IsStaff:    in.IsStaff,
		Body:       in.Body,
		CreatedAt:  nextMessageTime(lastTime),
	}
	if err := insertMessage(ctx, tx, msg); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE tickets SET message_seq=$1, last_message_at=$2, updated_at=$2 WHERE id=$3`,
		msg.Seq, msg.CreatedAt, msg.TicketID,
	); err != nil {
		return nil, fmt.Errorf("bump message seq: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *ticketRepository) ListMessages(ctx context.Context, ticketID string, afterSeq int64) ([]domain.TicketMessage, error) {
	// A missing ticket must read as NotFound, not as an empty thread.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticketID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrTicketNotFound
	}

	const query = `
        SELECT id, ticket_id, seq, author_id, author_kind, is_staff, body, created_at
        FROM ticket_messages WHERE ticket_id=$1 AND seq > $2 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TicketMessage{}
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Seq,
			&msg.AuthorID,
			&msg.AuthorKind,
			&msg.IsStaff,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func insertMessage(ctx context.Context, tx pgx.Tx, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (id, ticket_id, seq, author_id, author_kind, is_staff, body, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	if _, err := tx.Exec(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.Seq,
		msg.AuthorID,
		msg.AuthorKind,
		msg.IsStaff,
		msg.Body,
		msg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}
