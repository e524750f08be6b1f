// Package routes plans walking routes between venue locations.
package routes

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"beacon-presence-api/internal/geo"
	"beacon-presence-api/internal/httpx/kit"
	"beacon-presence-api/internal/route"
)

// MaxTargets bounds the heuristic path.
const MaxTargets = 500

// OptimizeRequest names targets by location id, or passes explicit stops.
// Mode "exact" insists on exhaustive search and fails above route.MaxExactStops.
type OptimizeRequest struct {
	Start   geo.Point    `json:"start"`
	Targets []string     `json:"targets"`
	Stops   []route.Stop `json:"stops"`
	Mode    string       `json:"mode"`
}

type optimizeResponse struct {
	route.Result
	Dropped []string `json:"dropped"`
}

// OptimizeHandler handles POST /routes/optimize.
func OptimizeHandler(planner *route.Planner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req OptimizeRequest
		if err := c.BodyParser(&req); err != nil {
			return kit.BadRequest("invalid body", nil)
		}
		if !lo.Contains([]string{"", "auto", "exact"}, req.Mode) {
			return kit.BadRequest("mode must be auto or exact", req.Mode)
		}
		if n := len(req.Targets) + len(req.Stops); n > MaxTargets {
			return kit.BadRequest("too many targets", fiber.Map{"max": MaxTargets, "got": n})
		}

		stops := req.Stops
		dropped := []string{}
		if len(req.Targets) > 0 {
			ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
			defer cancel()
			resolved, missing, err := planner.Resolve(ctx, req.Targets)
			if err != nil {
				return kit.FromDomain(err)
			}
			stops = append(stops, resolved...)
			dropped = append(dropped, missing...)
		}
		// a location visited once; explicit stops win over resolved targets
		stops = lo.UniqBy(stops, func(s route.Stop) string { return s.ID })

		var res route.Result
		if req.Mode == "exact" {
			r, err := route.Exact(req.Start, stops)
			if err != nil {
				return kit.FromDomain(err)
			}
			res = r
		} else {
			res = route.Optimize(req.Start, stops)
		}
		return kit.OK(c, optimizeResponse{Result: res, Dropped: dropped})
	}
}
