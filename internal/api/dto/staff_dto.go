package dto

import (
	"time"

	"github.com/spec-kit/support-tickets/internal/domain"
	"github.com/spec-kit/support-tickets/internal/service"
)

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// SanctionRequest payload. DurationValue and DurationUnit are ignored for
// permanent sanctions.
type SanctionRequest struct {
	TargetNickname string                      `json:"target_nickname"`
	DurationKind   domain.SanctionDurationKind `json:"duration_kind"`
	DurationValue  int                         `json:"duration_value"`
	DurationUnit   domain.SanctionDurationUnit `json:"duration_unit"`
	Reason         string                      `json:"reason"`
}

// ToDomain converts the payload, attaching the idempotency key from the header.
func (r SanctionRequest) ToDomain(idempotencyKey string) domain.SanctionRequest {
	return domain.SanctionRequest{
		TargetNickname: r.TargetNickname,
		DurationKind:   r.DurationKind,
		DurationValue:  r.DurationValue,
		DurationUnit:   r.DurationUnit,
		Reason:         r.Reason,
		IdempotencyKey: idempotencyKey,
	}
}

// SanctionResponse reports the bridge outcome and the recorded system message.
type SanctionResponse struct {
	Status    domain.SanctionOutcomeStatus `json:"status"`
	Command   string                       `json:"command"`
	CommandID string                       `json:"command_id,omitempty"`
	Detail    string                       `json:"detail,omitempty"`
	Message   *TicketMessageResponse       `json:"message,omitempty"`
}

// NewSanctionResponse maps a sanction result.
func NewSanctionResponse(result *service.SanctionResult) SanctionResponse {
	resp := SanctionResponse{
		Status:    result.Outcome.Status,
		Command:   result.Outcome.Command,
		CommandID: result.Outcome.CommandID,
		Detail:    result.Outcome.Detail,
	}
	if result.Message != nil {
		msg := NewMessageResponse(result.Message)
		resp.Message = &msg
	}
	return resp
}

// AuditEntryResponse is one audit trail entry.
type AuditEntryResponse struct {
	ID        string             `json:"id"`
	TicketID  string             `json:"ticket_id"`
	ActorID   string             `json:"actor_id"`
	ActorRole string             `json:"actor_role"`
	Action    domain.AuditAction `json:"action"`
	Details   map[string]any     `json:"details"`
	CreatedAt time.Time          `json:"created_at"`
}

// NewAuditList maps audit entries.
func NewAuditList(entries []domain.AuditEntry) []AuditEntryResponse {
	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, AuditEntryResponse{
			ID:        e.ID,
			TicketID:  e.TicketID,
			ActorID:   e.ActorID,
			ActorRole: e.ActorRole,
			Action:    e.Action,
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		})
	}
	return resp
}

// CommandStatusResponse reports whether the game server picked a command up.
type CommandStatusResponse struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"`
	TicketID    string     `json:"ticket_id,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	Executed    bool       `json:"executed"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewCommandStatus maps a queued command.
func NewCommandStatus(cmd *domain.QueuedCommand) CommandStatusResponse {
	return CommandStatusResponse{
		ID:          cmd.ID,
		Command:     cmd.Command,
		TicketID:    cmd.TicketID,
		RequestedBy: cmd.RequestedBy,
		Executed:    cmd.Executed,
		ExecutedAt:  cmd.ExecutedAt,
		CreatedAt:   cmd.CreatedAt,
	}
}

// StatsResponse is the staff dashboard summary.
type StatsResponse struct {
	Total   int64 `json:"total"`
	Open    int64 `json:"open"`
	Pending int64 `json:"pending"`
	Urgent  int64 `json:"urgent"`
}

// NewStatsResponse maps ticket stats.
func NewStatsResponse(stats domain.TicketStats) StatsResponse {
	return StatsResponse{Total: stats.Total, Open: stats.Open, Pending: stats.Pending, Urgent: stats.Urgent}
}
