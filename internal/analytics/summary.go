package analytics

import (
	"time"

	"github.com/samber/lo"

	"beacon-presence-api/internal/presence"
	"beacon-presence-api/pkg"
)

// LocationSummary is the occupancy view of one ledger entry.
type LocationSummary struct {
	LocationID     string    `json:"location_id"`
	DisplayName    string    `json:"display_name"`
	Count          int       `json:"count"`
	Anonymous      int       `json:"anonymous"`
	UniqueVisitors int       `json:"unique_visitors"`
	MaxDwell       int       `json:"max_dwell"`
	MaxDwellLabel  string    `json:"max_dwell_label"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// Summarize builds one summary per entry. Locations missing from names are
// shown by id.
func Summarize(entries []presence.LedgerEntry, names map[string]string) []LocationSummary {
	return lo.Map(entries, func(e presence.LedgerEntry, _ int) LocationSummary {
		name := names[e.LocationID]
		if name == "" {
			name = e.LocationID
		}
		maxDwell := lo.Max(lo.Map(e.Visits, func(r presence.VisitRecord, _ int) int { return r.TotalTime }))
		visitors := lo.Uniq(lo.Map(e.Visits, func(r presence.VisitRecord, _ int) string { return r.Subject() }))
		return LocationSummary{
			LocationID:     e.LocationID,
			DisplayName:    name,
			Count:          e.Count,
			Anonymous:      e.Anonymous,
			UniqueVisitors: len(visitors),
			MaxDwell:       maxDwell,
			MaxDwellLabel:  pkg.FormatDwell(maxDwell),
			FirstSeen:      e.FirstSeen,
			LastSeen:       e.LastSeen,
		}
	})
}
