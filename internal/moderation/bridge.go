// Package moderation turns staff sanction requests into game-server commands.
package moderation

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spec-kit/support-tickets/internal/domain"
)

// BuildCommand serializes a sanction into the game-server command format:
//
//	ban <nickname> <reason>
//	tempban <nickname> <value><unit> <reason>
func BuildCommand(req domain.SanctionRequest) (string, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.DurationKind == domain.SanctionPermanent {
		return fmt.Sprintf("ban %s %s", req.TargetNickname, req.Reason), nil
	}
	duration := strconv.Itoa(req.DurationValue) + req.DurationUnit.Suffix()
	return fmt.Sprintf("tempban %s %s %s", req.TargetNickname, duration, req.Reason), nil
}

// Bridge dispatches sanctions to a CommandExecutor. It holds no state.
type Bridge struct {
	executor CommandExecutor
	logger   *zap.Logger
}

// NewBridge builds a bridge over executor.
func NewBridge(executor CommandExecutor, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{executor: executor, logger: logger}
}

// Dispatch sends exactly one command for req and reports what the boundary
// said. It never retries.
func (b *Bridge) Dispatch(ctx context.Context, req domain.SanctionRequest, meta CommandMeta) domain.SanctionOutcome {
	command, err := BuildCommand(req)
	if err != nil {
		return domain.SanctionOutcome{Status: domain.SanctionRejected, Detail: err.Error()}
	}

	receipt, err := b.executor.Execute(ctx, command, meta)
	if err != nil {
		b.logger.Error("sanction dispatch failed",
			zap.String("ticket_id", meta.TicketID),
			zap.String("command", command),
			zap.Error(err),
		)
		return domain.SanctionOutcome{
			Status:  domain.SanctionUnavailable,
			Command: command,
			Detail:  err.Error(),
		}
	}

	outcome := domain.SanctionOutcome{
		Status:    domain.SanctionAccepted,
		Command:   command,
		CommandID: receipt.ID,
		Detail:    receipt.Detail,
	}
	if !receipt.Accepted {
		outcome.Status = domain.SanctionRejected
	}
	b.logger.Info("sanction dispatched",
		zap.String("ticket_id", meta.TicketID),
		zap.String("command", command),
		zap.String("status", string(outcome.Status)),
		zap.String("command_id", receipt.ID),
	)
	return outcome
}

// Status looks up a previously queued command.
func (b *Bridge) Status(ctx context.Context, id string) (*domain.QueuedCommand, error) {
	return b.executor.Status(ctx, id)
}
