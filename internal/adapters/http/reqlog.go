package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/kisansahayak/agrimonitor/internal/pkg/logging"
)

// RequestIDLogMiddleware puts the Fiber request ID on the user context so
// every slog record logged with that context carries request_id.
func RequestIDLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid, ok := c.Locals("requestid").(string)
		if !ok || rid == "" {
			return c.Next()
		}
		c.SetUserContext(logging.WithRequestID(c.UserContext(), rid))
		return c.Next()
	}
}
