// Package search serves the reporting query over indexed visits.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"beacon-presence-api/internal/esx"
	"beacon-presence-api/internal/httpx/kit"
)

// Searcher is satisfied by esx.VisitIndexer.
type Searcher interface {
	Search(ctx context.Context, query string, from, size int) ([]esx.VisitDoc, int, error)
}

// VisitsHandler handles GET /search/visits?q=. Without a search backend it
// answers an empty page.
func VisitsHandler(s Searcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pg, err := kit.ParsePaging(c)
		if err != nil {
			return err
		}
		if s == nil {
			return kit.List(c, []esx.VisitDoc{}, kit.PageMeta{Limit: pg.Limit, Offset: pg.Offset})
		}
		q := strings.TrimSpace(c.Query("q"))
		if q == "" {
			return kit.BadRequest("q required", nil)
		}
		ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer cancel()
		docs, total, err := s.Search(ctx, q, pg.Offset, pg.Limit)
		if err != nil {
			return kit.InternalError("search failed", nil)
		}
		meta := kit.PageMeta{
			Limit:   pg.Limit,
			Offset:  pg.Offset,
			Count:   len(docs),
			HasMore: pg.Offset+len(docs) < total,
			Total:   &total,
		}
		if meta.HasMore {
			next := pg.Offset + len(docs)
			meta.NextOffset = &next
		}
		return kit.List(c, docs, meta)
	}
}
