package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/support-tickets/pkg/util/errorutil"
)

// RequireStaff ensures the caller holds a privileged role.
func RequireStaff(guard *Guard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !guard.IsStaff(actor) {
			return apperrors.NewForbidden("staff role required")
		}
		return c.Next()
	}
}

// RequireActor ensures caller is authenticated.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
