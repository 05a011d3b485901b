package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminApp(token string) (*fiber.App, *int) {
	pruned := 0
	app := fiber.New()
	app.Post("/api/v1/admin/cache/prune", AdminGuard(token), func(c *fiber.Ctx) error {
		pruned++
		return c.SendStatus(fiber.StatusOK)
	})
	return app, &pruned
}

func prune(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/admin/cache/prune", nil)
	if token != "" {
		req.Header.Set(AdminTokenHeader, token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAdminGuard_RejectsAnonymousPrune(t *testing.T) {
	app, pruned := newAdminApp("s3cret")

	assert.Equal(t, fiber.StatusUnauthorized, prune(t, app, ""))
	assert.Equal(t, fiber.StatusUnauthorized, prune(t, app, "wrong"))
	assert.Equal(t, fiber.StatusUnauthorized, prune(t, app, "s3cret-but-longer"))
	assert.Zero(t, *pruned)

	assert.Equal(t, fiber.StatusOK, prune(t, app, "s3cret"))
	assert.Equal(t, 1, *pruned)
}

func TestAdminGuard_EmptyTokenDisablesRoute(t *testing.T) {
	app, pruned := newAdminApp("")

	assert.Equal(t, fiber.StatusNotFound, prune(t, app, ""))
	assert.Equal(t, fiber.StatusNotFound, prune(t, app, "anything"))
	assert.Zero(t, *pruned)
}
