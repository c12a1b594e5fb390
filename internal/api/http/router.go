package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-tickets/internal/api/http/handlers"
	"github.com/spec-kit/support-tickets/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Stream         *handlers.StreamHandler
	AuthMiddleware *auth.AuthMiddleware
	Guard          *auth.Guard
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireActor())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/messages", cfg.Tickets.ListMessages)
	tickets.Post("/:id/messages", cfg.Tickets.PostMessage)
	tickets.Get("/:id/stream", cfg.Stream.Stream)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)

	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireStaff(cfg.Guard))
	staff.Get("/tickets/stats", cfg.StaffTickets.Stats)
	staff.Patch("/tickets/:id/priority", cfg.StaffTickets.UpdatePriority)
	staff.Delete("/tickets/:id", cfg.StaffTickets.DeleteTicket)
	staff.Post("/tickets/:id/sanctions", cfg.StaffTickets.Sanction)
	staff.Get("/audit", cfg.StaffTickets.ListAudit)
	staff.Get("/commands/:id", cfg.StaffTickets.CommandStatus)
}
