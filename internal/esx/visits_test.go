package esx

import (
	"context"
	"testing"
	"time"

	"beacon-presence-api/internal/presence"
)

func TestToDoc_UsesRecordWhenPresent(t *testing.T) {
	opened := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := presence.Event{
		Decision:   presence.ContinuedVisit,
		Detection:  presence.Detection{ID: "det-2", UserID: "u1", Kind: presence.KindVisit, ObservedAt: opened.Add(20 * time.Second)},
		LocationID: "A",
		Day:        "2024-05-01",
		Record: &presence.VisitRecord{
			ID: "det-1", UserID: "u1", Timestamp: opened, LastDetectedAt: opened.Add(20 * time.Second), TotalTime: 1,
			Attributes: presence.VisitorAttributes{Company: "Acme"},
		},
	}
	doc := ToDoc(ev)
	if doc.ID != "det-1" || doc.TotalTime != 1 || doc.Company != "Acme" || doc.Decision != "continued_visit" {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Timestamp != "2024-05-01T10:00:00Z" {
		t.Fatalf("timestamp = %s", doc.Timestamp)
	}
}

func TestToDoc_AnonymousKeyedByRecord(t *testing.T) {
	opened := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	doc := ToDoc(presence.Event{
		Decision:   presence.ContinuedVisit,
		Detection:  presence.Detection{ID: "det-9", DeviceID: "dev", Kind: presence.KindVisit, ObservedAt: opened.Add(10 * time.Second)},
		LocationID: "B",
		Record:     &presence.VisitRecord{ID: "det-8", DeviceID: "dev", Kind: presence.KindVisit, Timestamp: opened, LastDetectedAt: opened.Add(10 * time.Second), TotalTime: 1},
	})
	if doc.ID != "det-8" || doc.UserID != "" || doc.DeviceID != "dev" || doc.TotalTime != 1 {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestToDoc_WithoutRecordKeyedByDetection(t *testing.T) {
	doc := ToDoc(presence.Event{
		Decision:   presence.NewVisit,
		Detection:  presence.Detection{ID: "det-9", DeviceID: "dev", Kind: presence.KindVisit},
		LocationID: "B",
	})
	if doc.ID != "det-9" || doc.UserID != "" {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestNilClientIsNoop(t *testing.T) {
	idx := NewVisitIndexer(nil, "")
	if err := idx.VisitRecorded(context.Background(), presence.Event{Decision: presence.NewVisit}); err != nil {
		t.Fatalf("index: %v", err)
	}
	docs, total, err := idx.Search(context.Background(), "acme", 0, 10)
	if err != nil || total != 0 || len(docs) != 0 {
		t.Fatalf("search = %v %d %v", docs, total, err)
	}
}
