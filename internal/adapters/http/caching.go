package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control on GET responses that did not set
// one themselves.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || len(c.Response().Header.Peek(fiber.HeaderCacheControl)) > 0 {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10"
		case path == "/metrics":
			ttl = "no-cache"
		case path == "/v1/tiles":
			ttl = "public, max-age=86400" // tile indices never change
		case strings.HasPrefix(path, "/docs"):
			ttl = "public, max-age=3600"
		case strings.HasPrefix(path, "/v1/fields/") && !strings.HasSuffix(path, "/sightings"):
			// detail embeds live weather, which is cached server side
			ttl = "no-store"
		case strings.HasPrefix(path, "/v1/"):
			ttl = "no-cache" // readings arrive continuously
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}
