package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// AuditFilter narrows audit listings.
type AuditFilter struct {
	TicketID *string
	Limit    int
	Offset   int
}

// AuditRepository stores audit entries. Entries are never updated or deleted.
//
// List returns entries newest first, in reverse insertion order. Entries
// recorded within the same clock tick keep that order in every backend.
type AuditRepository interface {
	Record(ctx context.Context, entry *domain.AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository builds a Postgres-backed repository.
func NewAuditRepository(pool *pgxpool.Pool) AuditRepository {
	return &auditRepository{pool: pool}
}

func (r *auditRepository) Record(ctx context.Context, entry *domain.AuditEntry) error {
	prepareAuditEntry(entry)
	const query = `
        INSERT INTO ticket_audit (id, ticket_id, actor_id, actor_role, action, details, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.ActorID,
		entry.ActorRole,
		entry.Action,
		entry.Details,
		entry.CreatedAt,
	)
	return err
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]domain.AuditEntry, error) {
	limit, offset := pageBounds(TicketFilter{Limit: filter.Limit, Offset: filter.Offset})
	const query = `
        SELECT id, ticket_id, actor_id, actor_role, action, details, created_at
        FROM ticket_audit
        WHERE ($1::text IS NULL OR ticket_id=$1)
        ORDER BY seq DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, filter.TicketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.AuditEntry{}
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ActorID,
			&entry.ActorRole,
			&entry.Action,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// MemoryAuditRepository keeps audit entries in memory.
type MemoryAuditRepository struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewMemoryAuditRepository builds an empty repository.
func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Record(_ context.Context, entry *domain.AuditEntry) error {
	prepareAuditEntry(entry)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *MemoryAuditRepository) List(_ context.Context, filter AuditFilter) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	matched := make([]domain.AuditEntry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if filter.TicketID == nil || e.TicketID == *filter.TicketID {
			matched = append(matched, e)
		}
	}
	r.mu.Unlock()

	limit, offset := pageBounds(TicketFilter{Limit: filter.Limit, Offset: filter.Offset})
	if offset >= len(matched) {
		return []domain.AuditEntry{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func prepareAuditEntry(entry *domain.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = storeNow()
	}
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
}
