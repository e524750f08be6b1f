// Package httpx wires the REST surface: middleware, health and the /api/v1 routes.
package httpx

import (
	"github.com/gofiber/fiber/v2"

	"beacon-presence-api/internal/analytics"
	"beacon-presence-api/internal/httpx/detections"
	"beacon-presence-api/internal/httpx/insights"
	"beacon-presence-api/internal/httpx/ledger"
	"beacon-presence-api/internal/httpx/routes"
	"beacon-presence-api/internal/httpx/search"
	"beacon-presence-api/internal/httpx/venue"
	"beacon-presence-api/internal/presence"
	"beacon-presence-api/internal/redisx"
	"beacon-presence-api/internal/route"
)

// Deps are the collaborators the handlers need. Redis, Search and
// IngestLimit are optional.
type Deps struct {
	Presence  *presence.Service
	Analytics *analytics.Engine
	Planner   *route.Planner
	Clock     presence.Clock
	Redis     *redisx.Client
	Search    search.Searcher
	// IngestLimit guards the ingestion endpoints.
	IngestLimit fiber.Handler
}

func Register(app *fiber.App, d Deps) {
	app.Get("/health", HealthHandler(d.Redis))
	if d.Presence == nil {
		return
	}
	clock := d.Clock
	if clock == nil {
		clock = presence.SystemClock
	}
	limit := d.IngestLimit
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}

	v1 := app.Group("/api/v1")

	v1.Post("/detections", limit, detections.RecordHandler(d.Presence))
	v1.Post("/detections/backfill", limit, detections.BackfillHandler(d.Presence))
	v1.Post("/locations/:id/detections", limit, detections.ApplyHandler(d.Presence, clock))

	v1.Get("/ledger/:day", ledger.DayHandler(d.Presence.Ledger()))
	v1.Get("/ledger/:day/audit", ledger.AuditHandler(d.Presence))

	if d.Analytics != nil {
		v1.Get("/sessions/:day", insights.SessionsHandler(d.Analytics))
		v1.Get("/prospects/:day", insights.ProspectsHandler(d.Analytics))
		v1.Get("/movements/:day", insights.MovementsHandler(d.Analytics))
		v1.Get("/summary/:day", insights.SummaryHandler(d.Analytics))
	}

	planner := d.Planner
	if planner == nil {
		planner = route.NewPlanner(d.Presence.Locations())
	}
	v1.Post("/routes/optimize", routes.OptimizeHandler(planner))

	v1.Get("/locations", venue.ListLocationsHandler(d.Presence.Locations()))
	v1.Get("/locations/:id", venue.GetLocationHandler(d.Presence.Locations()))
	v1.Put("/locations/:id", venue.PutLocationHandler(d.Presence.Locations()))
	v1.Get("/profiles/:userId", venue.GetProfileHandler(d.Presence.Profiles()))
	v1.Put("/profiles/:userId", venue.PutProfileHandler(d.Presence.Profiles(), clock))

	v1.Get("/search/visits", search.VisitsHandler(d.Search))
}
