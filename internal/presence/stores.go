package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"beacon-presence-api/internal/docstore"
	"beacon-presence-api/internal/geo"
)

const (
	collLedger    = "ledger"
	collProfiles  = "profiles"
	collLocations = "locations"
)

// ProfileStore keeps visitor profiles written at registration.
type ProfileStore struct {
	store docstore.Store
}

func NewProfileStore(s docstore.Store) *ProfileStore { return &ProfileStore{store: s} }

// Get returns docstore.ErrNotFound when userID has no profile.
func (p *ProfileStore) Get(ctx context.Context, userID string) (VisitorProfile, error) {
	b, err := p.store.Get(ctx, collProfiles, userID)
	if err != nil {
		return VisitorProfile{}, err
	}
	var out VisitorProfile
	if err := json.Unmarshal(b, &out); err != nil {
		return VisitorProfile{}, fmt.Errorf("decode profile %s: %w", userID, err)
	}
	if err := out.Attributes.Validate(); err != nil {
		return VisitorProfile{}, err
	}
	return out, nil
}

func (p *ProfileStore) Put(ctx context.Context, prof VisitorProfile) error {
	if strings.TrimSpace(prof.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidAttributes)
	}
	if err := prof.Attributes.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(prof)
	if err != nil {
		return err
	}
	return docstore.Put(ctx, p.store, collProfiles, prof.UserID, b)
}

// LocationStore keeps the venue layout.
type LocationStore struct {
	store docstore.Store
}

func NewLocationStore(s docstore.Store) *LocationStore { return &LocationStore{store: s} }

func (l *LocationStore) Get(ctx context.Context, id string) (Location, error) {
	b, err := l.store.Get(ctx, collLocations, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Location{}, fmt.Errorf("%w: %s", ErrUnknownLocation, id)
	}
	if err != nil {
		return Location{}, err
	}
	var out Location
	if err := json.Unmarshal(b, &out); err != nil {
		return Location{}, fmt.Errorf("decode location %s: %w", id, err)
	}
	return out, nil
}

// List returns every location ordered by id.
func (l *LocationStore) List(ctx context.Context) ([]Location, error) {
	docs, err := l.store.Query(ctx, collLocations, docstore.Filter{})
	if err != nil {
		return nil, err
	}
	out := make([]Location, 0, len(docs))
	for _, d := range docs {
		var loc Location
		if err := json.Unmarshal(d.Data, &loc); err != nil {
			return nil, fmt.Errorf("decode location %s: %w", d.Key, err)
		}
		out = append(out, loc)
	}
	return out, nil
}

func (l *LocationStore) Put(ctx context.Context, loc Location) error {
	if strings.TrimSpace(loc.ID) == "" || strings.Contains(loc.ID, "/") {
		return fmt.Errorf("%w: bad id %q", ErrInvalidLocation, loc.ID)
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return docstore.Put(ctx, l.store, collLocations, loc.ID, b)
}

// Coordinates resolves ids to points. Unknown ids are left out of the map.
func (l *LocationStore) Coordinates(ctx context.Context, ids []string) (map[string]geo.Point, error) {
	all, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	want := lo.SliceToMap(ids, func(id string) (string, struct{}) { return id, struct{}{} })
	out := make(map[string]geo.Point, len(ids))
	for _, loc := range all {
		if _, ok := want[loc.ID]; ok {
			out[loc.ID] = geo.Point{X: loc.X, Y: loc.Y}
		}
	}
	return out, nil
}

// DisplayNames maps location ids to display names.
func (l *LocationStore) DisplayNames(ctx context.Context) (map[string]string, error) {
	all, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(all, func(loc Location) (string, string) { return loc.ID, loc.DisplayName }), nil
}
