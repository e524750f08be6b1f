// Package insights serves the read-side analytics: sessions, prospects,
// movement patterns and per-location summaries.
package insights

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"beacon-presence-api/internal/analytics"
	"beacon-presence-api/internal/httpx/kit"
)

const queryTimeout = 10 * time.Second

// SessionsHandler handles GET /sessions/:day?target=<locationId>.
func SessionsHandler(eng *analytics.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		day, err := kit.Day(c)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context(), queryTimeout)
		defer cancel()
		sessions, err := eng.Sessions(ctx, day, strings.TrimSpace(c.Query("target")))
		if err != nil {
			return kit.FromDomain(err)
		}
		return kit.OK(c, sessions)
	}
}

// ProspectsHandler handles GET /prospects/:day with offset paging.
func ProspectsHandler(eng *analytics.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		day, err := kit.Day(c)
		if err != nil {
			return err
		}
		pg, err := kit.ParsePaging(c)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context(), queryTimeout)
		defer cancel()
		prospects, err := eng.Prospects(ctx, day)
		if err != nil {
			return kit.FromDomain(err)
		}
		page, meta := kit.Page(prospects, pg)
		return kit.List(c, page, meta)
	}
}

// MovementsHandler handles GET /movements/:day.
func MovementsHandler(eng *analytics.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		day, err := kit.Day(c)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context(), queryTimeout)
		defer cancel()
		moves, err := eng.Movements(ctx, day)
		if err != nil {
			return kit.FromDomain(err)
		}
		return kit.OK(c, moves)
	}
}

var summarySortFields = []string{"location_id", "count", "unique_visitors", "max_dwell"}

// SummaryHandler handles GET /summary/:day?sort=count:desc.
func SummaryHandler(eng *analytics.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		day, err := kit.Day(c)
		if err != nil {
			return err
		}
		field, asc, err := kit.ParseSort(c.Query("sort"), "location_id", summarySortFields...)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context(), queryTimeout)
		defer cancel()
		rows, err := eng.Summary(ctx, day)
		if err != nil {
			return kit.FromDomain(err)
		}
		sortSummary(rows, field, asc)
		return kit.OK(c, rows)
	}
}

func sortSummary(rows []analytics.LocationSummary, field string, asc bool) {
	key := func(s analytics.LocationSummary) int {
		switch field {
		case "count":
			return s.Count
		case "unique_visitors":
			return s.UniqueVisitors
		case "max_dwell":
			return s.MaxDwell
		}
		return 0
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if field == "location_id" {
			if asc {
				return a.LocationID < b.LocationID
			}
			return a.LocationID > b.LocationID
		}
		if key(a) == key(b) {
			return a.LocationID < b.LocationID
		}
		if asc {
			return key(a) < key(b)
		}
		return key(a) > key(b)
	})
}
