package httpx

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"beacon-presence-api/internal/httpx/kit"
	"beacon-presence-api/internal/redisx"
)

// HealthHandler reports liveness. When Redis backs the skip cache or rate
// limiter its reachability is reported too; the process stays "ok" either way.
func HealthHandler(rdb *redisx.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := fiber.Map{"status": "ok"}
		if rdb != nil {
			if err := redisx.Ping(c.Context(), rdb, time.Second); err != nil {
				body["redis"] = "unreachable"
			} else {
				body["redis"] = "ok"
			}
		}
		return kit.OK(c, body)
	}
}
