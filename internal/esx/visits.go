package esx

import (
	"context"
	"time"

	"beacon-presence-api/internal/presence"
)

// VisitIndexer keeps the reporting index in step with the ledger.
type VisitIndexer struct {
	es    *Client
	index string
}

func NewVisitIndexer(es *Client, index string) *VisitIndexer {
	if index == "" {
		index = DefaultIndex
	}
	return &VisitIndexer{es: es, index: index}
}

// ToDoc flattens an event. The document is keyed by the visit record so
// continuations overwrite the visit's document; an event without a record
// falls back to the detection id.
func ToDoc(ev presence.Event) VisitDoc {
	doc := VisitDoc{
		ID:             ev.Detection.ID,
		UserID:         ev.Detection.UserID,
		LocationID:     ev.LocationID,
		Day:            ev.Day,
		Kind:           string(ev.Detection.Kind),
		Decision:       ev.Decision.String(),
		Timestamp:      ev.Detection.ObservedAt.UTC().Format(time.RFC3339),
		LastDetectedAt: ev.Detection.ObservedAt.UTC().Format(time.RFC3339),
	}
	if r := ev.Record; r != nil {
		doc.ID = r.ID
		doc.DeviceID = r.DeviceID
		doc.Timestamp = r.Timestamp.UTC().Format(time.RFC3339)
		doc.LastDetectedAt = r.LastDetectedAt.UTC().Format(time.RFC3339)
		doc.TotalTime = r.TotalTime
		doc.Company = r.Attributes.Company
		doc.Industry = r.Attributes.Industry
		doc.Position = r.Attributes.Position
		doc.Interests = r.Attributes.Interests
	}
	return doc
}

func (v *VisitIndexer) VisitRecorded(ctx context.Context, ev presence.Event) error {
	if ev.Decision == presence.Skip {
		return nil
	}
	return IndexVisit(ctx, v.es, v.index, ToDoc(ev))
}

// Search is SearchVisits against the indexer's index.
func (v *VisitIndexer) Search(ctx context.Context, query string, from, size int) ([]VisitDoc, int, error) {
	return SearchVisits(ctx, v.es, v.index, query, from, size)
}
