package kit

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"beacon-presence-api/internal/presence"
)

// Paging is the offset window requested by a listing call.
type Paging struct {
	Limit     int
	Offset    int
	WithTotal bool
}

func ParsePaging(c *fiber.Ctx) (Paging, error) {
	p := Paging{
		Limit:     lo.Clamp(c.QueryInt("limit", 20), 1, 100),
		Offset:    c.QueryInt("offset", 0),
		WithTotal: c.QueryBool("with_total", false),
	}
	if p.Offset < 0 {
		return p, BadRequest("offset must not be negative", p.Offset)
	}
	return p, nil
}

// Page cuts items to the requested window and builds its meta.
func Page[T any](items []T, p Paging) ([]T, PageMeta) {
	total := len(items)
	start := lo.Min([]int{p.Offset, total})
	end := lo.Min([]int{start + p.Limit, total})
	page := items[start:end]
	meta := PageMeta{Limit: p.Limit, Offset: p.Offset, Count: len(page), HasMore: end < total}
	if meta.HasMore {
		meta.NextOffset = lo.ToPtr(end)
	}
	if p.WithTotal {
		meta.Total = lo.ToPtr(total)
	}
	return page, meta
}

// Day reads and validates the :day route parameter.
func Day(c *fiber.Ctx) (string, error) {
	day := strings.TrimSpace(c.Params("day"))
	if _, err := presence.ParseDay(day); err != nil {
		return "", BadRequest("day must be YYYY-MM-DD", day)
	}
	return day, nil
}

// ParseSort splits "field:dir" and checks field against allowed. An empty value
// yields def ascending.
func ParseSort(raw, def string, allowed ...string) (field string, asc bool, err error) {
	if raw == "" {
		return def, true, nil
	}
	parts := strings.Split(raw, ":")
	field = strings.TrimSpace(parts[0])
	dir := lo.TernaryF(len(parts) > 1,
		func() string { return strings.ToLower(strings.TrimSpace(parts[1])) },
		func() string { return "asc" },
	)
	switch dir {
	case "asc":
		asc = true
	case "desc":
		asc = false
	default:
		return "", true, BadRequest("invalid sort direction", dir)
	}
	if !lo.Contains(allowed, field) {
		return "", true, BadRequest("unsupported sort field", field)
	}
	return field, asc, nil
}
