package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on
// endpoint. Adds sensible defaults if not already set by the handler.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != "GET" {
			return err
		}
		if existing := c.Get("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10"

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/graphql":
			ttl = "private, max-age=0"

		case path == "/v1/stations":
			ttl = "public, max-age=300" // coverage footprints change rarely

		case strings.HasPrefix(path, "/v1/stations/"):
			ttl = "public, max-age=600"

		case strings.HasPrefix(path, "/v1/clusters"):
			ttl = "public, max-age=60" // cluster sets shift with data ingest

		case strings.HasPrefix(path, "/v1/technical"):
			ttl = "public, max-age=300"

		case strings.HasPrefix(path, "/images/"):
			ttl = "public, max-age=86400" // compressed rasters are immutable

		case path == "/v1/data/status":
			ttl = "public, max-age=60"

		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=300"
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}
