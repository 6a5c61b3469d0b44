package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Djju69/KARMABOT1-sub001/internal/config"
)

const AdminIDKey = "admin_id"

// AdminAuth gates the operator surface by the configured Telegram id
// allow-list. Runs after TelegramAuth.
func AdminAuth(cfg *config.Config) fiber.Handler {
	allowed := make(map[int64]struct{}, len(cfg.Telegram.AdminIDs))
	for _, id := range cfg.Telegram.AdminIDs {
		allowed[id] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		if _, ok := allowed[userID]; !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "access denied",
			})
		}

		c.Locals(AdminIDKey, userID)
		return c.Next()
	}
}

func GetAdminID(c *fiber.Ctx) int64 {
	adminID, ok := c.Locals(AdminIDKey).(int64)
	if !ok {
		return 0
	}
	return adminID
}
