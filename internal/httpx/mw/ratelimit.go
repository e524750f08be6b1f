// Package mw contains HTTP middleware shared by the API routes.
package mw

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"beacon-presence-api/internal/logx"
	"beacon-presence-api/internal/redisx"
)

var incrScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
return current`)

// RateKey identifies a caller by ip and, when a gateway sends it, device id.
func RateKey(c *fiber.Ctx) string {
	return fmt.Sprintf("ip:%s|dev:%s", c.IP(), c.Get("X-Device-Id"))
}

// RateLimit builds a fixed-window limiter. With Redis the window is shared by
// every replica; without it each process counts on its own. Redis failures
// let the request through.
func RateLimit(rdb *redisx.Client, windowSec int, limit int) fiber.Handler {
	if rdb == nil {
		return limiter.New(limiter.Config{
			Max:          limit,
			Expiration:   time.Duration(windowSec) * time.Second,
			KeyGenerator: RateKey,
			LimitReached: func(_ *fiber.Ctx) error {
				return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
			},
		})
	}
	log := logx.GetScope("ratelimit")
	return func(c *fiber.Ctx) error {
		key := "rl:" + RateKey(c)
		ctx, cancel := context.WithTimeout(c.Context(), 200*time.Millisecond)
		defer cancel()
		ttlMs := int64(windowSec) * 1000
		n, err := incrScript.Run(ctx, rdb, []string{key}, ttlMs).Int64()
		if err != nil {
			log.Warn("rate limit check failed", zap.Error(err))
			return c.Next()
		}
		c.Set("X-RateLimit-Limit", fmt.Sprint(limit))
		c.Set("X-RateLimit-Remaining", fmt.Sprint(lo.Max([]int64{0, int64(limit) - n})))
		if n > int64(limit) {
			c.Set("Retry-After", fmt.Sprint(windowSec))
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}
