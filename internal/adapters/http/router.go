package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"
	"github.com/kisansahayak/agrimonitor/internal/pkg/metrics"
)

const (
	readTimeout = 15 * time.Second
	// Intake waits on the classifier and the blob store.
	intakeTimeout = 60 * time.Second
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	app.Use(requestid.New())
	app.Use(RequestIDLogMiddleware())
	app.Use(AccessLogMiddleware())

	// 120 requests per minute per IP. Devices post a reading every few
	// minutes, so this only bites misbehaving clients.
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	app.Use(CachingMiddleware())

	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")
	v1.Get("/fields", timeout.NewWithContext(ListFieldsHandler(deps), readTimeout))
	v1.Post("/fields", timeout.NewWithContext(CreateFieldHandler(deps), readTimeout))
	v1.Get("/fields/:id", timeout.NewWithContext(GetFieldHandler(deps), readTimeout))
	v1.Put("/fields/:id", timeout.NewWithContext(UpdateFieldHandler(deps), readTimeout))
	v1.Delete("/fields/:id", timeout.NewWithContext(DeleteFieldHandler(deps), readTimeout))
	v1.Get("/fields/:id/sightings", timeout.NewWithContext(FieldSightingsHandler(deps), readTimeout))

	v1.Get("/readings", timeout.NewWithContext(ListReadingsHandler(deps), readTimeout))
	v1.Post("/readings", timeout.NewWithContext(CreateReadingHandler(deps), intakeTimeout))
	v1.Get("/readings/:id", timeout.NewWithContext(GetReadingHandler(deps), readTimeout))

	v1.Get("/tiles", TileHandler(deps))

	app.Post("/graphql", timeout.NewWithContext(GraphQLHandler(deps), readTimeout))

	SetupDocs(app)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
