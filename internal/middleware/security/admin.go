package security

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/BarAvidan1996/eilam-sub000/pkg/logger"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminGuard admits requests carrying the shared admin token. An empty token
// hides the guarded routes entirely.
func AdminGuard(token string) fiber.Handler {
	expected := []byte(token)

	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Not found",
			})
		}

		got := []byte(c.Get(AdminTokenHeader))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			logger.Warn("Rejected admin request",
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		return c.Next()
	}
}
