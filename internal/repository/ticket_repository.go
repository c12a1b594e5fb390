package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/id"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

// Store errors. They are DomainErrors so callers can hand them straight to
// the HTTP layer.
var (
	ErrTicketNotFound = apperrors.NewNotFound("ticket", nil)
	ErrTicketClosed   = apperrors.NewForbidden("ticket is closed")
	ErrStatusConflict = apperrors.NewConflict("ticket status changed concurrently", nil)
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	AuthorID   *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	SearchTerm *string
	Limit      int
	Offset     int
}

// NewTicket is the input for CreateTicket.
type NewTicket struct {
	AuthorID      string
	AuthorIsStaff bool
	Subject       string
	Description   string
	Priority      domain.TicketPriority
}

// NewMessage is the input for AppendMessage. AllowClosed is reserved for
// system messages, which must be recorded even if the ticket closed meanwhile.
type NewMessage struct {
	TicketID    string
	AuthorID    string
	AuthorKind  domain.MessageAuthorKind
	IsStaff     bool
	Body        string
	AllowClosed bool
}

// TicketStore is the durable source of truth for tickets and their messages.
//
// AppendMessage serializes per ticket: concurrent appends all succeed and are
// assigned consecutive Seq values. SetStatus is a compare-and-set against the
// expected prior status; losers of a race get ErrStatusConflict.
type TicketStore interface {
	CreateTicket(ctx context.Context, in NewTicket) (*domain.Ticket, error)
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	AppendMessage(ctx context.Context, in NewMessage) (*domain.TicketMessage, error)
	ListMessages(ctx context.Context, ticketID string, afterSeq int64) ([]domain.TicketMessage, error)
	SetStatus(ctx context.Context, id string, expected, next domain.TicketStatus) (*domain.Ticket, error)
	SetPriority(ctx context.Context, id string, priority domain.TicketPriority) (*domain.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
	Stats(ctx context.Context) (domain.TicketStats, error)
}

const ticketColumns = `id, author_id, subject, description, priority, status, message_seq,
               last_message_at, created_at, updated_at, closed_at`

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type ticketRepository struct {
	pool *pgxpool.Pool
	ids  *id.Generator
}

// NewTicketRepository returns a Postgres-backed TicketStore.
func NewTicketRepository(pool *pgxpool.Pool, ids *id.Generator) TicketStore {
	return &ticketRepository{pool: pool, ids: ids}
}

func (r *ticketRepository) CreateTicket(ctx context.Context, in NewTicket) (*domain.Ticket, error) {
	now := storeNow()
	ticket := &domain.Ticket{
		ID:            uuid.NewString(),
		AuthorID:      in.AuthorID,
		Subject:       in.Subject,
		Description:   in.Description,
		Priority:      in.Priority,
		Status:        domain.TicketStatusOpen,
		MessageSeq:    1,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertTicket = `
        INSERT INTO tickets (id, author_id, subject, description, priority, status, message_seq, last_message_at, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	if _, err := tx.Exec(ctx, insertTicket,
		ticket.ID,
		ticket.AuthorID,
		ticket.Subject,
		ticket.Description,
		ticket.Priority,
		ticket.Status,
		ticket.MessageSeq,
		ticket.LastMessageAt,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}

	first := descriptionMessage(ticket, in.AuthorIsStaff, r.ids.NextString())
	if err := insertMessage(ctx, tx, &first); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return ticket, err
}

func (r *ticketRepository) ListTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AuthorID != nil {
		args = append(args, *filter.AuthorID)
		clauses = append(clauses, fmt.Sprintf("author_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit, offset := pageBounds(filter)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC, id LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) SetStatus(ctx context.Context, id string, expected, next domain.TicketStatus) (*domain.Ticket, error) {
	now := storeNow()
	var closedAt *time.Time
	if next == domain.TicketStatusClosed {
		closedAt = &now
	}
	query := `
        UPDATE tickets SET status=$1, closed_at=$2, updated_at=$3
        WHERE id=$4 AND status=$5
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, next, closedAt, now, id, expected))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.missOrConflict(ctx, id)
	}
	return ticket, err
}

func (r *ticketRepository) SetPriority(ctx context.Context, id string, priority domain.TicketPriority) (*domain.Ticket, error) {
	query := `UPDATE tickets SET priority=$1, updated_at=$2 WHERE id=$3 RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, priority, storeNow(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return ticket, err
}

func (r *ticketRepository) DeleteTicket(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func (r *ticketRepository) Stats(ctx context.Context) (domain.TicketStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status='open'),
               COUNT(*) FILTER (WHERE status='pending'),
               COUNT(*) FILTER (WHERE priority IN ('high','urgent') AND status NOT IN ('resolved','closed'))
        FROM tickets`
	var stats domain.TicketStats
	err := r.pool.QueryRow(ctx, query).Scan(&stats.Total, &stats.Open, &stats.Pending, &stats.Urgent)
	return stats, err
}

func (r *ticketRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrTicketNotFound
	}
	return ErrStatusConflict
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.AuthorID,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Priority,
		&ticket.Status,
		&ticket.MessageSeq,
		&ticket.LastMessageAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func pageBounds(filter TicketFilter) (int, int) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// storeNow truncates to the precision Postgres keeps so timestamps compare
// the same before and after a round trip.
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// nextMessageTime never goes backwards within a ticket.
func nextMessageTime(last time.Time) time.Time {
	now := storeNow()
	if now.Before(last) {
		return last
	}
	return now
}

func descriptionMessage(ticket *domain.Ticket, authorIsStaff bool, msgID string) domain.TicketMessage {
	kind := domain.AuthorKindUser
	if authorIsStaff {
		kind = domain.AuthorKindStaff
	}
	return domain.TicketMessage{
		ID:         msgID,
		TicketID:   ticket.ID,
		Seq:        1,
		AuthorID:   ticket.AuthorID,
		AuthorKind: kind,
		IsStaff:    authorIsStaff,
		Body:       ticket.Description,
		CreatedAt:  ticket.CreatedAt,
	}
}
