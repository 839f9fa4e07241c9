package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/utils"
)

const callerLocal = "caller"

// ResolveCaller maps the authenticated user id onto a caller from the directory.
// Requests whose subject is not in the directory are rejected with 401.
func ResolveCaller(directory *access.Directory) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals(userIDLocal).(string)
		caller, err := directory.Resolve(userID)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "unknown user")
		}

		c.Locals(callerLocal, caller)
		return c.Next()
	}
}

// CallerFrom returns the caller attached by ResolveCaller. The zero caller is
// unauthenticated and is denied by the access engine.
func CallerFrom(c *fiber.Ctx) access.Caller {
	caller, _ := c.Locals(callerLocal).(access.Caller)
	return caller
}
