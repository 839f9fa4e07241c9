package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
)

func appWithCaller(t *testing.T, userID string, guard fiber.Handler) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals(userIDLocal, userID)
		}
		return c.Next()
	})
	app.Use(ResolveCaller(access.DefaultDirectory()))
	app.Use(guard)
	app.Get("/admin", func(c *fiber.Ctx) error {
		return c.SendString(CallerFrom(c).Role.Name)
	})
	return app
}

func TestRequirePermissionAllowsAuthorizedCallers(t *testing.T) {
	app := appWithCaller(t, "dpo_001", RequirePermission(access.PermManagePrivacy))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequirePermissionRejectsUnauthorizedCallers(t *testing.T) {
	app := appWithCaller(t, "teacher_123", RequirePermission(access.PermManagePrivacy))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestResolveCallerRejectsUnknownUsers(t *testing.T) {
	app := appWithCaller(t, "mallory", RequirePermission())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	app = appWithCaller(t, "", RequirePermission())
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
