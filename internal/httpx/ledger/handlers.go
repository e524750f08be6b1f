// Package ledger exposes the per-day presence ledger read-only.
package ledger

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"beacon-presence-api/internal/httpx/kit"
	"beacon-presence-api/internal/presence"
)

// DayHandler handles GET /ledger/:day. With ?location= it returns that single
// entry, otherwise every entry of the day keyed by location id.
func DayHandler(l *presence.Ledger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		day, err := kit.Day(c)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer cancel()
		if loc := c.Query("location"); loc != "" {
			e, err := l.Entry(ctx, day, loc)
			if err != nil {
				return kit.FromDomain(err)
			}
			return kit.OK(c, e)
		}
		entries, err := l.ForDay(ctx, day)
		if err != nil {
			return kit.FromDomain(err)
		}
		return kit.OK(c, entries)
	}
}

// AuditHandler handles GET /ledger/:day/audit. ?only=mismatched drops the
// consistent entries.
func AuditHandler(svc *presence.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		day, err := kit.Day(c)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
		defer cancel()
		reports, err := svc.Audit(ctx, day)
		if err != nil {
			return kit.FromDomain(err)
		}
		if c.Query("only") == "mismatched" {
			reports = lo.Filter(reports, func(r presence.AuditReport, _ int) bool { return !r.Consistent })
		}
		return kit.OK(c, reports)
	}
}
