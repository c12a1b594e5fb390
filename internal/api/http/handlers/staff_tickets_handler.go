package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-tickets/internal/api/dto"
	"github.com/spec-kit/support-tickets/internal/repository"
	"github.com/spec-kit/support-tickets/internal/service"
	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

const idempotencyHeader = "Idempotency-Key"

// StaffTicketsHandler handles privileged ticket endpoints.
type StaffTicketsHandler struct {
	tickets *service.TicketService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(ticketService *service.TicketService) *StaffTicketsHandler {
	return &StaffTicketsHandler{tickets: ticketService}
}

// UpdatePriority PATCH /staff/tickets/:id/priority.
func (h *StaffTicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	actor, err := requestActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.ChangePriority(c.UserContext(), actor, c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// DeleteTicket DELETE /staff/tickets/:id.
func (h *StaffTicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	actor, err := requestActor(c)
	if err != nil {
		return err
	}
	if err := h.tickets.DeleteTicket(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Sanction POST /staff/tickets/:id/sanctions.
//
// When the game server could not take the command the response carries both
// the BRIDGE_UNAVAILABLE error and the recorded outcome.
func (h *StaffTicketsHandler) Sanction(c *fiber.Ctx) error {
	actor, err := requestActor(c)
	if err != nil {
		return err
	}
	var req dto.SanctionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	key := strings.TrimSpace(c.Get(idempotencyHeader))
	result, err := h.tickets.Sanction(c.UserContext(), actor, c.Params("id"), req.ToDomain(key))
	if err != nil {
		if result == nil || !errors.Is(err, apperrors.ErrBridgeUnavailable) {
			return err
		}
		domainErr := apperrors.ToDomainError(err)
		return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    domainErr.Code,
				"message": domainErr.Message,
				"details": domainErr.Details,
			},
			"data": dto.NewSanctionResponse(result),
		})
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewSanctionResponse(result)})
}

// Stats GET /staff/tickets/stats.
func (h *StaffTicketsHandler) Stats(c *fiber.Ctx) error {
	actor, err := requestActor(c)
	if err != nil {
		return err
	}
	stats, err := h.tickets.Stats(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatsResponse(stats)})
}

// ListAudit GET /staff/audit?ticket_id=.
func (h *StaffTicketsHandler) ListAudit(c *fiber.Ctx) error {
	actor, err := requestActor(c)
	if err != nil {
		return err
	}
	filter := repository.AuditFilter{}
	if ticketID := strings.TrimSpace(c.Query("ticket_id")); ticketID != "" {
		filter.TicketID = &ticketID
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parsePageSize(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize

	entries, err := h.tickets.ListAudit(c.UserContext(), actor, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAuditList(entries)})
}

// CommandStatus GET /staff/commands/:id.
func (h *StaffTicketsHandler) CommandStatus(c *fiber.Ctx) error {
	actor, err := requestActor(c)
	if err != nil {
		return err
	}
	cmd, err := h.tickets.CommandStatus(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCommandStatus(cmd)})
}
