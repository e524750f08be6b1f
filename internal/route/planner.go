package route

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"beacon-presence-api/internal/geo"
)

// Locator resolves location ids to floor plan coordinates. Ids it does not
// know are simply absent from the returned map.
type Locator interface {
	Coordinates(ctx context.Context, ids []string) (map[string]geo.Point, error)
}

// Planner answers route requests by location id.
type Planner struct {
	locations Locator
}

func NewPlanner(locations Locator) *Planner {
	return &Planner{locations: locations}
}

// Plan orders the requested targets starting from start. The ids Resolve
// could not place are returned so callers can surface them.
func (p *Planner) Plan(ctx context.Context, start geo.Point, targets []string) (Result, []string, error) {
	stops, dropped, err := p.Resolve(ctx, targets)
	if err != nil {
		return Result{}, nil, err
	}
	return Optimize(start, stops), dropped, nil
}

// Resolve turns location ids into stops. Duplicate ids are collapsed and ids
// without known coordinates are dropped.
func (p *Planner) Resolve(ctx context.Context, targets []string) ([]Stop, []string, error) {
	ids := lo.Uniq(lo.Compact(targets))
	coords, err := p.locations.Coordinates(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve coordinates: %w", err)
	}

	stops := make([]Stop, 0, len(ids))
	var dropped []string
	for _, id := range ids {
		pt, ok := coords[id]
		if !ok {
			dropped = append(dropped, id)
			continue
		}
		stops = append(stops, Stop{ID: id, Point: pt})
	}
	return stops, dropped, nil
}
