// Package analytics derives per-visitor sessions, prospects and movement
// patterns from a day of ledger entries. Everything here is read-only.
package analytics

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"beacon-presence-api/internal/presence"
)

// Thresholds tune session classification.
type Thresholds struct {
	// RevisitGap is the minimum time between two counted visits to one location.
	RevisitGap time.Duration
	// LongStayMinutes is the dwell that qualifies a session as a long stay.
	LongStayMinutes int
}

func DefaultThresholds() Thresholds {
	return Thresholds{RevisitGap: 30 * time.Second, LongStayMinutes: 5}
}

// Visit is a VisitRecord tagged with the location it was recorded at.
type Visit struct {
	LocationID string `json:"location_id"`
	presence.VisitRecord
}

// Session is the reconstruction of one visitor's day.
type Session struct {
	UserID string  `json:"user_id"`
	Visits []Visit `json:"visits"`
	// VisitEventCount holds counted visit events per location after the
	// re-entry gap is applied.
	VisitEventCount map[string]int `json:"visit_event_count"`
	TotalTime       int            `json:"total_time"`
	HasLongStay     bool           `json:"has_long_stay"`
	HasRevisit      bool           `json:"has_revisit"`
	IsProspect      bool           `json:"is_prospect"`
	VisitCount      int            `json:"visit_count"`
	RevisitCount    int            `json:"revisit_count"`
	Locations       []string       `json:"locations"`
	// DwellMismatches counts records whose stored total_time disagrees with
	// their own timestamps.
	DwellMismatches int                        `json:"dwell_mismatches"`
	Attributes      presence.VisitorAttributes `json:"attributes"`
}

// Reconstruct groups the day's records by visitor. When target is not empty
// only revisits to that location qualify a session.
func Reconstruct(entries []presence.LedgerEntry, target string, th Thresholds) map[string]Session {
	var all []Visit
	for _, e := range entries {
		for _, r := range e.Visits {
			all = append(all, Visit{LocationID: e.LocationID, VisitRecord: r})
		}
	}

	byUser := lo.GroupBy(all, func(v Visit) string { return v.UserID })
	out := make(map[string]Session, len(byUser))
	for user, visits := range byUser {
		if user == "" {
			continue
		}
		out[user] = buildSession(user, visits, target, th)
	}
	return out
}

func buildSession(user string, visits []Visit, target string, th Thresholds) Session {
	sort.SliceStable(visits, func(i, j int) bool { return visits[i].Timestamp.Before(visits[j].Timestamp) })

	s := Session{
		UserID:          user,
		Visits:          visits,
		VisitEventCount: map[string]int{},
	}
	lastCounted := map[string]time.Time{}
	anyLongStay := false

	for _, v := range visits {
		s.TotalTime = max(s.TotalTime, v.TotalTime)
		if v.TotalTime != presence.DwellMinutes(v.Timestamp, v.LastDetectedAt) {
			s.DwellMismatches++
		}
		if v.Kind == presence.KindLongStay {
			anyLongStay = true
			continue
		}
		s.VisitCount++
		prev, seen := lastCounted[v.LocationID]
		if !seen || v.Timestamp.Sub(prev) >= th.RevisitGap {
			s.VisitEventCount[v.LocationID]++
			lastCounted[v.LocationID] = v.Timestamp
		}
	}

	s.HasLongStay = s.TotalTime >= th.LongStayMinutes || anyLongStay
	for _, n := range s.VisitEventCount {
		if n >= 2 {
			s.RevisitCount++
		}
	}
	if target != "" {
		s.HasRevisit = s.VisitEventCount[target] >= 2
	} else {
		s.HasRevisit = s.RevisitCount > 0
	}
	s.IsProspect = s.HasRevisit && s.HasLongStay

	s.Locations = lo.Uniq(lo.Map(visits, func(v Visit, _ int) string { return v.LocationID }))
	sort.Strings(s.Locations)
	if len(visits) > 0 {
		s.Attributes = visits[0].Attributes
	}
	return s
}

// Prospects returns the qualified sessions, longest dwell first. Equal dwell
// is ordered by user id so the listing is stable across calls.
func Prospects(sessions map[string]Session) []Session {
	out := lo.Filter(lo.Values(sessions), func(s Session, _ int) bool { return s.IsProspect })
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTime != out[j].TotalTime {
			return out[i].TotalTime > out[j].TotalTime
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
