package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/utils"
)

// RequirePermission ensures the resolved caller holds at least one of the permissions.
// Services still run the full access decision; this only short-circuits whole route groups.
func RequirePermission(permissions ...access.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := CallerFrom(c)
		if !caller.Authenticated() {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		if len(permissions) > 0 && !caller.Role.HasAny(permissions...) {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
