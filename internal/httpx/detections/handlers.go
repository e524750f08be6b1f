// Package detections provides the ingestion endpoints: live beacon
// detections, direct ledger writes and historical backfill.
package detections

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"beacon-presence-api/internal/httpx/kit"
	"beacon-presence-api/internal/presence"
)

// MaxBackfillBatch bounds one backfill request.
const MaxBackfillBatch = 10000

// DetectionRequest is one beacon sighting as posted by a gateway.
type DetectionRequest struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	DeviceID   string     `json:"device_id"`
	BeaconID   string     `json:"beacon_id"`
	ObservedAt *time.Time `json:"observed_at"`
	Kind       string     `json:"kind"`
}

func (r DetectionRequest) toDetection() presence.Detection {
	d := presence.Detection{
		ID:       strings.TrimSpace(r.ID),
		UserID:   strings.TrimSpace(r.UserID),
		DeviceID: strings.TrimSpace(r.DeviceID),
		BeaconID: strings.TrimSpace(r.BeaconID),
		Kind:     presence.Kind(lo.Ternary(r.Kind == "", string(presence.KindVisit), strings.ToLower(r.Kind))),
	}
	if r.ObservedAt != nil {
		d.ObservedAt = *r.ObservedAt
	}
	return d
}

// RecordHandler runs a detection through the noise filter and the ledger.
// Skipped detections answer 200 with decision "skip".
func RecordHandler(svc *presence.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req DetectionRequest
		if err := c.BodyParser(&req); err != nil {
			return kit.BadRequest("invalid body", nil)
		}
		ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
		defer cancel()
		res, err := svc.Record(ctx, req.toDetection())
		if err != nil {
			return kit.FromDomain(err)
		}
		if res.Decision == presence.NewVisit {
			return kit.Created(c, res)
		}
		return kit.OK(c, res)
	}
}

// ApplyRequest writes straight to one location's ledger.
type ApplyRequest struct {
	UserID string     `json:"user_id"`
	Kind   string     `json:"kind"`
	At     *time.Time `json:"at"`
}

// ApplyHandler handles POST /locations/:id/detections. It bypasses the noise
// filter and is meant for operator corrections.
func ApplyHandler(svc *presence.Service, clock presence.Clock) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ApplyRequest
		if err := c.BodyParser(&req); err != nil {
			return kit.BadRequest("invalid body", nil)
		}
		now := clock.Now()
		if req.At != nil {
			now = *req.At
		}
		kind := presence.Kind(lo.Ternary(req.Kind == "", string(presence.KindVisit), req.Kind))
		ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
		defer cancel()
		entry, decision, err := svc.ApplyDetection(ctx, c.Params("id"), strings.TrimSpace(req.UserID), kind, now)
		if err != nil {
			return kit.FromDomain(err)
		}
		return kit.OK(c, fiber.Map{"decision": decision, "entry": entry})
	}
}

// BackfillRequest carries historical detections in any order.
type BackfillRequest struct {
	Detections []DetectionRequest `json:"detections"`
}

// BackfillHandler replays a batch of historical detections.
func BackfillHandler(svc *presence.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req BackfillRequest
		if err := c.BodyParser(&req); err != nil {
			return kit.BadRequest("invalid body", nil)
		}
		if len(req.Detections) == 0 {
			return kit.BadRequest("detections required", nil)
		}
		if len(req.Detections) > MaxBackfillBatch {
			return kit.BadRequest("too many detections", fiber.Map{"max": MaxBackfillBatch})
		}
		batch := lo.Map(req.Detections, func(r DetectionRequest, _ int) presence.Detection { return r.toDetection() })
		ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
		defer cancel()
		stats, err := svc.Backfill(ctx, batch)
		if err != nil {
			return kit.FromDomain(err)
		}
		return kit.OK(c, stats)
	}
}
