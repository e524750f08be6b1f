package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"beacon-presence-api/internal/docstore"
	"beacon-presence-api/internal/logx"
)

// Clock supplies the current time for detections that carry none.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

var SystemClock Clock = ClockFunc(time.Now)

// Settings are read on every call so they can follow config reloads.
type Settings struct {
	VisitWindow time.Duration
	Location    *time.Location
}

// Event describes a committed ledger write.
type Event struct {
	Decision   Decision     `json:"decision"`
	Detection  Detection    `json:"detection"`
	LocationID string       `json:"location_id"`
	Day        string       `json:"day"`
	Count      int          `json:"count"`
	Record     *VisitRecord `json:"record,omitempty"`
}

// Sink receives events after the ledger transaction has committed. Sinks
// must not block for long and their failures never undo the write.
type Sink interface {
	VisitRecorded(ctx context.Context, ev Event) error
}

// Result is what Record reports back to the caller.
type Result struct {
	Decision   Decision     `json:"decision"`
	LocationID string       `json:"location_id"`
	Day        string       `json:"day"`
	Entry      *LedgerEntry `json:"entry,omitempty"`
}

// Service is the ingestion entry point: noise filter, profile snapshot,
// ledger transaction and post-commit fan-out.
type Service struct {
	ledger    *Ledger
	profiles  *ProfileStore
	locations *LocationStore
	skip      SkipCache
	clock     Clock
	settings  func() Settings
	sinks     []Sink
	log       *logx.Logger
}

type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

func WithSkipCache(c SkipCache) Option { return func(s *Service) { s.skip = c } }

func WithSettings(fn func() Settings) Option { return func(s *Service) { s.settings = fn } }

func WithSinks(sinks ...Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, lo.Compact(sinks)...) }
}

func WithLogger(l *logx.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(store docstore.Store, opts ...Option) *Service {
	s := &Service{
		ledger:    NewLedger(store),
		profiles:  NewProfileStore(store),
		locations: NewLocationStore(store),
		clock:     SystemClock,
		settings: func() Settings {
			return Settings{VisitWindow: DefaultVisitWindow, Location: time.UTC}
		},
		log: logx.GetScope("presence"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.skip == nil {
		s.skip = NewMemorySkipCache(DefaultSkipWindow, DefaultSkipTTL)
	}
	return s
}

func (s *Service) Ledger() *Ledger           { return s.ledger }
func (s *Service) Profiles() *ProfileStore   { return s.profiles }
func (s *Service) Locations() *LocationStore { return s.locations }

// Record runs a raw detection through the noise filter and, if admitted,
// applies it to the ledger of its beacon's location.
func (s *Service) Record(ctx context.Context, d Detection) (Result, error) {
	if d.ObservedAt.IsZero() {
		d.ObservedAt = s.clock.Now()
	}
	if err := d.Validate(); err != nil {
		return Result{}, err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	cfg := s.settings()
	day := DayOf(d.ObservedAt, cfg.Location)

	admitted, err := s.skip.Admit(ctx, SkipKey(d), d.ObservedAt)
	if err != nil {
		s.log.Warn("skip cache unavailable, admitting", zap.Error(err))
	}
	if !admitted {
		s.log.Debug("detection skipped",
			zap.String("subject", d.Subject()), zap.String("beacon", d.BeaconID))
		return Result{Decision: Skip, LocationID: d.BeaconID, Day: day}, nil
	}

	entry, decision, err := s.apply(ctx, d, day, cfg.VisitWindow)
	if err != nil {
		return Result{}, err
	}
	s.log.Debug("detection recorded",
		zap.String("decision", decision.String()),
		zap.String("location", entry.LocationID),
		zap.String("day", day),
		zap.Int("count", entry.Count))

	s.publish(ctx, d, entry, decision)
	return Result{Decision: decision, LocationID: entry.LocationID, Day: day, Entry: &entry}, nil
}

// ApplyDetection writes a detection straight to the ledger, bypassing the
// noise filter.
func (s *Service) ApplyDetection(ctx context.Context, locationID, userID string, kind Kind, now time.Time) (LedgerEntry, Decision, error) {
	d := Detection{ID: uuid.NewString(), UserID: userID, DeviceID: userID, BeaconID: locationID, ObservedAt: now, Kind: kind}
	if userID == "" {
		d.DeviceID = "anonymous"
	}
	if err := d.Validate(); err != nil {
		return LedgerEntry{}, Skip, err
	}
	cfg := s.settings()
	return s.apply(ctx, d, DayOf(now, cfg.Location), cfg.VisitWindow)
}

func (s *Service) apply(ctx context.Context, d Detection, day string, window time.Duration) (LedgerEntry, Decision, error) {
	v := Visit{
		ID:         d.ID,
		UserID:     d.UserID,
		DeviceID:   d.DeviceID,
		Kind:       d.Kind,
		At:         d.ObservedAt,
		Attributes: s.snapshot(ctx, d.UserID),
	}
	return s.ledger.Apply(ctx, d.BeaconID, day, v, window)
}

// snapshot loads profile attributes, falling back to an empty set: a missing
// or unreadable profile never drops the detection.
func (s *Service) snapshot(ctx context.Context, userID string) VisitorAttributes {
	if userID == "" {
		return VisitorAttributes{}
	}
	p, err := s.profiles.Get(ctx, userID)
	switch {
	case err == nil:
		return p.Attributes
	case errors.Is(err, docstore.ErrNotFound):
		return VisitorAttributes{}
	default:
		s.log.Warn("profile lookup failed", zap.String("user", userID), zap.Error(err))
		return VisitorAttributes{}
	}
}

func (s *Service) publish(ctx context.Context, d Detection, entry LedgerEntry, decision Decision) {
	if len(s.sinks) == 0 {
		return
	}
	ev := Event{Decision: decision, Detection: d, LocationID: entry.LocationID, Day: entry.Day, Count: entry.Count}
	if i := openedBy(entry.Visits, subjectKey(d.UserID, d.DeviceID), d.Kind, d.ObservedAt); i >= 0 {
		rec := entry.Visits[i]
		ev.Record = &rec
	}
	for _, sink := range s.sinks {
		if err := sink.VisitRecorded(ctx, ev); err != nil {
			s.log.Warn("post-commit sink failed", zap.String("decision", decision.String()), zap.Error(err))
		}
	}
}

// Backfill replays historical detections grouped by location and day. The
// noise filter is not consulted and no events are published.
func (s *Service) Backfill(ctx context.Context, detections []Detection) ([]BackfillStats, error) {
	cfg := s.settings()
	type group struct{ location, day string }
	groups := map[group][]Visit{}
	attrs := map[string]VisitorAttributes{}

	for i, d := range detections {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		a, ok := attrs[d.UserID]
		if !ok {
			a = s.snapshot(ctx, d.UserID)
			attrs[d.UserID] = a
		}
		g := group{location: d.BeaconID, day: DayOf(d.ObservedAt, cfg.Location)}
		groups[g] = append(groups[g], Visit{ID: d.ID, UserID: d.UserID, DeviceID: d.DeviceID, Kind: d.Kind, At: d.ObservedAt, Attributes: a})
	}

	keys := lo.Keys(groups)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		return keys[i].location < keys[j].location
	})

	out := make([]BackfillStats, 0, len(keys))
	for _, g := range keys {
		st, err := s.ledger.Backfill(ctx, g.location, g.day, groups[g], cfg.VisitWindow)
		if err != nil {
			return out, err
		}
		out = append(out, st)
	}
	s.log.Info("backfill complete", zap.Int("detections", len(detections)), zap.Int("entries", len(out)))
	return out, nil
}

// Audit recomputes every entry of day.
func (s *Service) Audit(ctx context.Context, day string) ([]AuditReport, error) {
	entries, err := s.ledger.Entries(ctx, day)
	if err != nil {
		return nil, err
	}
	reports := lo.Map(entries, func(e LedgerEntry, _ int) AuditReport { return Audit(e) })
	for _, r := range reports {
		if !r.Consistent {
			s.log.Warn("ledger count mismatch",
				zap.String("location", r.LocationID), zap.String("day", r.Day),
				zap.Int("stored", r.Stored), zap.Int("recomputed", r.Recomputed))
		}
	}
	return reports, nil
}
