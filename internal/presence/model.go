// Package presence turns raw beacon detections into canonical visits and keeps
// the per-location, per-day ledger those visits are recorded in.
package presence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DayLayout is the calendar-day key format used by the ledger.
const DayLayout = "2006-01-02"

var (
	ErrInvalidDetection  = errors.New("presence: invalid detection")
	ErrInvalidAttributes = errors.New("presence: invalid visitor attributes")
	ErrUnknownLocation   = errors.New("presence: unknown location")
	ErrInvalidDay        = errors.New("presence: invalid day")
	ErrInvalidLocation   = errors.New("presence: invalid location")
)

// Kind distinguishes ordinary sightings from long-stay admissions.
type Kind string

const (
	KindVisit    Kind = "visit"
	KindLongStay Kind = "long_stay"
)

func (k Kind) Valid() bool { return k == KindVisit || k == KindLongStay }

// Detection is one raw beacon sighting. UserID is empty for devices that are
// not linked to a registered visitor.
type Detection struct {
	ID         string    `json:"id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	DeviceID   string    `json:"device_id,omitempty"`
	BeaconID   string    `json:"beacon_id"`
	ObservedAt time.Time `json:"observed_at"`
	Kind       Kind      `json:"kind"`
}

// Subject is the identity the noise filter keys on.
func (d Detection) Subject() string {
	if d.UserID != "" {
		return d.UserID
	}
	return d.DeviceID
}

func (d Detection) Anonymous() bool { return d.UserID == "" }

func (d Detection) Validate() error {
	switch {
	case strings.TrimSpace(d.BeaconID) == "":
		return fmt.Errorf("%w: beacon_id is required", ErrInvalidDetection)
	case strings.Contains(d.BeaconID, "/"):
		return fmt.Errorf("%w: beacon_id %q contains '/'", ErrInvalidDetection, d.BeaconID)
	case d.Subject() == "":
		return fmt.Errorf("%w: user_id or device_id is required", ErrInvalidDetection)
	case !d.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDetection, d.Kind)
	case d.ObservedAt.IsZero():
		return fmt.Errorf("%w: observed_at is required", ErrInvalidDetection)
	}
	return nil
}

// VisitorAttributes is the profile snapshot copied into each new visit.
// Every field is optional.
type VisitorAttributes struct {
	Age         *int     `json:"age,omitempty"`
	Gender      string   `json:"gender,omitempty"`
	Job         string   `json:"job,omitempty"`
	Company     string   `json:"company,omitempty"`
	Position    string   `json:"position,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	EventSource string   `json:"event_source,omitempty"`
	Interests   []string `json:"interests,omitempty"`
}

const maxAttrLen = 200

// Validate is applied whenever attributes cross into storage.
func (a VisitorAttributes) Validate() error {
	if a.Age != nil && (*a.Age < 0 || *a.Age > 130) {
		return fmt.Errorf("%w: age %d out of range", ErrInvalidAttributes, *a.Age)
	}
	fields := map[string]string{
		"gender": a.Gender, "job": a.Job, "company": a.Company,
		"position": a.Position, "industry": a.Industry, "event_source": a.EventSource,
	}
	for name, v := range fields {
		if len(v) > maxAttrLen {
			return fmt.Errorf("%w: %s longer than %d", ErrInvalidAttributes, name, maxAttrLen)
		}
	}
	for _, in := range a.Interests {
		if strings.TrimSpace(in) == "" || len(in) > maxAttrLen {
			return fmt.Errorf("%w: bad interest %q", ErrInvalidAttributes, in)
		}
	}
	return nil
}

type VisitorProfile struct {
	UserID     string            `json:"user_id"`
	Attributes VisitorAttributes `json:"attributes"`
	CreatedAt  time.Time         `json:"created_at"`
}

// VisitRecord is one visit instance inside a ledger entry. Timestamp is when
// the visit opened, LastDetectedAt the latest detection that extended it and
// TotalTime the dwell in whole minutes, rounded up. DeviceID is only set on
// anonymous records.
type VisitRecord struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	DeviceID       string            `json:"device_id,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	LastDetectedAt time.Time         `json:"last_detected_at"`
	Kind           Kind              `json:"kind"`
	TotalTime      int               `json:"total_time"`
	Attributes     VisitorAttributes `json:"attributes"`
}

// Subject identifies the visitor: the user when known, otherwise the device.
func (r VisitRecord) Subject() string { return subjectKey(r.UserID, r.DeviceID) }

// Anonymous reports whether the record belongs to an unregistered device.
func (r VisitRecord) Anonymous() bool { return r.UserID == "" }

// LedgerEntry aggregates one location for one calendar day.
// Anonymous is the part of Count opened by devices with no user.
type LedgerEntry struct {
	LocationID string        `json:"location_id"`
	Day        string        `json:"day"`
	Count      int           `json:"count"`
	Anonymous  int           `json:"anonymous"`
	FirstSeen  time.Time     `json:"first_seen"`
	LastSeen   time.Time     `json:"last_seen"`
	Visits     []VisitRecord `json:"visits"`
}

type Location struct {
	ID          string  `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	DisplayName string  `json:"display_name"`
}

// Decision is the outcome of recording a detection.
type Decision int

const (
	Skip Decision = iota
	NewVisit
	ContinuedVisit
)

func (d Decision) String() string {
	switch d {
	case NewVisit:
		return "new_visit"
	case ContinuedVisit:
		return "continued_visit"
	default:
		return "skip"
	}
}

func (d Decision) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Decision) UnmarshalText(b []byte) error {
	switch string(b) {
	case "skip":
		*d = Skip
	case "new_visit":
		*d = NewVisit
	case "continued_visit":
		*d = ContinuedVisit
	default:
		return fmt.Errorf("unknown decision %q", b)
	}
	return nil
}

// ParseDay validates a YYYY-MM-DD key.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}
	return t, nil
}

// DayOf returns the ledger day for t in loc.
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}
