// Package venue manages the venue layout and visitor registration profiles.
package venue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"beacon-presence-api/internal/docstore"
	"beacon-presence-api/internal/httpx/kit"
	"beacon-presence-api/internal/presence"
)

const storeTimeout = 3 * time.Second

// ListLocationsHandler handles GET /locations.
func ListLocationsHandler(locs *presence.LocationStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()
		all, err := locs.List(ctx)
		if err != nil {
			return kit.FromDomain(err)
		}
		return kit.OK(c, all)
	}
}

// GetLocationHandler handles GET /locations/:id.
func GetLocationHandler(locs *presence.LocationStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()
		loc, err := locs.Get(ctx, c.Params("id"))
		if err != nil {
			return kit.FromDomain(err)
		}
		return kit.OK(c, loc)
	}
}

// LocationRequest is the body of PUT /locations/:id.
type LocationRequest struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	DisplayName string  `json:"display_name"`
}

// PutLocationHandler creates or replaces a location.
func PutLocationHandler(locs *presence.LocationStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req LocationRequest
		if err := c.BodyParser(&req); err != nil {
			return kit.BadRequest("invalid body", nil)
		}
		loc := presence.Location{
			ID:          c.Params("id"),
			X:           req.X,
			Y:           req.Y,
			DisplayName: strings.TrimSpace(req.DisplayName),
		}
		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()
		if err := locs.Put(ctx, loc); err != nil {
			return kit.FromDomain(err)
		}
		return kit.OK(c, loc)
	}
}

// GetProfileHandler handles GET /profiles/:userId.
func GetProfileHandler(profiles *presence.ProfileStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()
		p, err := profiles.Get(ctx, c.Params("userId"))
		if err != nil {
			return kit.FromDomain(err)
		}
		return kit.OK(c, p)
	}
}

// PutProfileHandler stores the registration attributes of a visitor. Later
// visits snapshot these; visits already recorded keep their old copy.
func PutProfileHandler(profiles *presence.ProfileStore, clock presence.Clock) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var attrs presence.VisitorAttributes
		if err := c.BodyParser(&attrs); err != nil {
			return kit.BadRequest("invalid body", nil)
		}
		userID := c.Params("userId")
		ctx, cancel := context.WithTimeout(c.Context(), storeTimeout)
		defer cancel()

		prof := presence.VisitorProfile{UserID: userID, Attributes: attrs, CreatedAt: clock.Now().UTC()}
		existing, err := profiles.Get(ctx, userID)
		switch {
		case err == nil:
			prof.CreatedAt = existing.CreatedAt
		case errors.Is(err, docstore.ErrNotFound), errors.Is(err, presence.ErrInvalidAttributes):
		default:
			return kit.FromDomain(err)
		}
		if err := profiles.Put(ctx, prof); err != nil {
			return kit.FromDomain(err)
		}
		return kit.OK(c, prof)
	}
}
