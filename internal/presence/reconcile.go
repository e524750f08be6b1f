package presence

import "time"

// DefaultVisitWindow is how long after a visit opens further detections of the
// same subject and kind still extend it.
const DefaultVisitWindow = 30 * time.Second

// Visit is what an admitted detection contributes to a ledger entry. DeviceID
// identifies the visitor when UserID is empty.
type Visit struct {
	ID         string
	UserID     string
	DeviceID   string
	Kind       Kind
	At         time.Time
	Attributes VisitorAttributes
}

// DwellMinutes is the elapsed time between from and to in minutes, rounded up.
func DwellMinutes(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

func subjectKey(userID, deviceID string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "device:" + deviceID
}

// openedBy returns the index of the newest record for (subject, kind) that
// opened at or before at, or -1. On equal timestamps the later index wins.
func openedBy(records []VisitRecord, subject string, kind Kind, at time.Time) int {
	best := -1
	for i, r := range records {
		if r.Kind != kind || r.Timestamp.After(at) || r.Subject() != subject {
			continue
		}
		if best < 0 || !r.Timestamp.Before(records[best].Timestamp) {
			best = i
		}
	}
	return best
}

// ReconcileVisit folds v into records. If the newest record for the same
// subject and kind that opened at or before v did so no more than window
// earlier, that record is extended and the result is ContinuedVisit;
// otherwise a fresh record is appended and the result is NewVisit. records is
// not modified.
func ReconcileVisit(records []VisitRecord, v Visit, window time.Duration) ([]VisitRecord, Decision) {
	out := make([]VisitRecord, len(records), len(records)+1)
	copy(out, records)

	i := openedBy(out, subjectKey(v.UserID, v.DeviceID), v.Kind, v.At)
	if i >= 0 && v.At.Sub(out[i].Timestamp) <= window {
		r := &out[i]
		// late arrivals never move the visit backwards
		if v.At.After(r.LastDetectedAt) {
			r.LastDetectedAt = v.At
		}
		r.TotalTime = DwellMinutes(r.Timestamp, r.LastDetectedAt)
		return out, ContinuedVisit
	}

	rec := VisitRecord{
		ID:             v.ID,
		UserID:         v.UserID,
		Timestamp:      v.At,
		LastDetectedAt: v.At,
		Kind:           v.Kind,
		TotalTime:      0,
		Attributes:     v.Attributes,
	}
	if v.UserID == "" {
		rec.DeviceID = v.DeviceID
	}
	return append(out, rec), NewVisit
}

// ApplyDetection computes the ledger entry that results from v. cur is nil when
// no entry exists yet for (locationID, day). The function is pure so it can be
// re-run by the store on a transaction conflict.
//
// Long-stay admissions never raise Count. Visits without a UserID are
// reconciled under their DeviceID and new ones also raise Anonymous.
func ApplyDetection(cur *LedgerEntry, locationID, day string, v Visit, window time.Duration) (LedgerEntry, Decision) {
	var next LedgerEntry
	if cur == nil {
		next = LedgerEntry{
			LocationID: locationID,
			Day:        day,
			FirstSeen:  v.At,
			LastSeen:   v.At,
		}
	} else {
		next = *cur
		if v.At.After(next.LastSeen) {
			next.LastSeen = v.At
		}
	}

	visits, decision := ReconcileVisit(next.Visits, v, window)
	next.Visits = visits
	if decision == NewVisit && v.Kind != KindLongStay {
		next.Count++
		if v.UserID == "" {
			next.Anonymous++
		}
	}
	return next, decision
}

// AuditReport compares a stored count with the one implied by the visit list.
type AuditReport struct {
	LocationID string `json:"location_id"`
	Day        string `json:"day"`
	Stored     int    `json:"stored"`
	Recomputed int    `json:"recomputed"`
	Anonymous  int    `json:"anonymous"`
	Consistent bool   `json:"consistent"`
}

// Audit recounts e from its records.
func Audit(e LedgerEntry) AuditReport {
	var n, anon int
	for _, r := range e.Visits {
		if r.Kind == KindLongStay {
			continue
		}
		n++
		if r.UserID == "" {
			anon++
		}
	}
	return AuditReport{
		LocationID: e.LocationID,
		Day:        e.Day,
		Stored:     e.Count,
		Recomputed: n,
		Anonymous:  anon,
		Consistent: n == e.Count && anon == e.Anonymous,
	}
}
