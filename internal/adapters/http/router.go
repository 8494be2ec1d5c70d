package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/metrics"
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 — 15s per-request timeout
	v1 := app.Group("/v1")
	v1.Get("/stations", timeout.NewWithContext(ListStationsHandler(deps), 15*time.Second))
	v1.Get("/stations/:id", timeout.NewWithContext(GetStationHandler(deps), 15*time.Second))
	v1.Patch("/stations/:id/visible", timeout.NewWithContext(SetStationVisibleHandler(deps), 15*time.Second))
	v1.Get("/clusters", timeout.NewWithContext(ClustersHandler(deps), 15*time.Second))
	v1.Get("/technical/search", timeout.NewWithContext(TechnicalSearchHandler(deps), 15*time.Second))
	v1.Get("/technical/in-bounds", timeout.NewWithContext(TechnicalInBoundsHandler(deps), 15*time.Second))
	v1.Post("/settings/resolve", timeout.NewWithContext(ResolveSettingsHandler(deps), 15*time.Second))
	v1.Put("/settings/:clientID", timeout.NewWithContext(SaveSettingsHandler(deps), 15*time.Second))
	v1.Get("/data/status", timeout.NewWithContext(DataStatsHandler(deps), 15*time.Second))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// Compressed coverage images written by the compression worker
	if deps.ImageDir != "" {
		app.Static("/images", deps.ImageDir, fiber.Static{
			MaxAge: 86400,
		})
	}

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket map sessions
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(SessionHandler(deps)))
}
