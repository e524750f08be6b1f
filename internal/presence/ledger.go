package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"beacon-presence-api/internal/docstore"
)

// Ledger persists LedgerEntry documents keyed by day/locationID.
type Ledger struct {
	store docstore.Store
}

func NewLedger(s docstore.Store) *Ledger { return &Ledger{store: s} }

func ledgerKey(day, locationID string) string { return day + "/" + locationID }

func decodeEntry(b []byte) (*LedgerEntry, error) {
	var e LedgerEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode ledger entry: %w", err)
	}
	return &e, nil
}

// update runs fold inside one optimistic transaction on (day, locationID).
// fold may be called several times and must only depend on its argument.
func (l *Ledger) update(ctx context.Context, locationID, day string, fold func(cur *LedgerEntry) LedgerEntry) (LedgerEntry, error) {
	var result LedgerEntry
	_, err := l.store.Update(ctx, collLedger, ledgerKey(day, locationID), func(raw []byte, exists bool) ([]byte, error) {
		var cur *LedgerEntry
		if exists {
			e, err := decodeEntry(raw)
			if err != nil {
				return nil, err
			}
			cur = e
		}
		result = fold(cur)
		return json.Marshal(result)
	})
	if err != nil {
		return LedgerEntry{}, err
	}
	return result, nil
}

// Apply records one admitted visit.
func (l *Ledger) Apply(ctx context.Context, locationID, day string, v Visit, window time.Duration) (LedgerEntry, Decision, error) {
	var decision Decision
	entry, err := l.update(ctx, locationID, day, func(cur *LedgerEntry) LedgerEntry {
		next, d := ApplyDetection(cur, locationID, day, v, window)
		decision = d
		return next
	})
	if err != nil {
		return LedgerEntry{}, Skip, fmt.Errorf("apply visit %s/%s: %w", day, locationID, err)
	}
	return entry, decision, nil
}

// BackfillStats summarises one backfilled entry.
type BackfillStats struct {
	LocationID string `json:"location_id"`
	Day        string `json:"day"`
	New        int    `json:"new"`
	Continued  int    `json:"continued"`
	Count      int    `json:"count"`
}

// Backfill folds historical visits into (locationID, day) in time order within
// a single transaction.
func (l *Ledger) Backfill(ctx context.Context, locationID, day string, visits []Visit, window time.Duration) (BackfillStats, error) {
	if len(visits) == 0 {
		return BackfillStats{LocationID: locationID, Day: day}, nil
	}
	ordered := append([]Visit(nil), visits...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].At.Before(ordered[j].At) })

	var stats BackfillStats
	entry, err := l.update(ctx, locationID, day, func(cur *LedgerEntry) LedgerEntry {
		stats = BackfillStats{LocationID: locationID, Day: day}
		for _, v := range ordered {
			next, d := ApplyDetection(cur, locationID, day, v, window)
			if d == ContinuedVisit {
				stats.Continued++
			} else {
				stats.New++
			}
			cur = &next
		}
		return *cur
	})
	if err != nil {
		return BackfillStats{}, fmt.Errorf("backfill %s/%s: %w", day, locationID, err)
	}
	stats.Count = entry.Count
	return stats, nil
}

// Entry returns docstore.ErrNotFound when nothing was recorded.
func (l *Ledger) Entry(ctx context.Context, day, locationID string) (LedgerEntry, error) {
	b, err := l.store.Get(ctx, collLedger, ledgerKey(day, locationID))
	if err != nil {
		return LedgerEntry{}, err
	}
	e, err := decodeEntry(b)
	if err != nil {
		return LedgerEntry{}, err
	}
	return *e, nil
}

// Entries lists the day's entries ordered by location id.
func (l *Ledger) Entries(ctx context.Context, day string) ([]LedgerEntry, error) {
	if _, err := ParseDay(day); err != nil {
		return nil, err
	}
	docs, err := l.store.Query(ctx, collLedger, docstore.Filter{KeyPrefix: day + "/"})
	if err != nil {
		return nil, fmt.Errorf("query ledger %s: %w", day, err)
	}
	out := make([]LedgerEntry, 0, len(docs))
	for _, d := range docs {
		e, err := decodeEntry(d.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocationID < out[j].LocationID })
	return out, nil
}

// ForDay is Entries keyed by location id.
func (l *Ledger) ForDay(ctx context.Context, day string) (map[string]LedgerEntry, error) {
	entries, err := l.Entries(ctx, day)
	if err != nil {
		return nil, err
	}
	out := make(map[string]LedgerEntry, len(entries))
	for _, e := range entries {
		out[e.LocationID] = e
	}
	return out, nil
}
