package mqx

import (
	"context"
	"encoding/json"
	"testing"

	"beacon-presence-api/internal/presence"
)

type capture struct {
	keys   []string
	bodies [][]byte
}

func (c *capture) Publish(_ context.Context, key string, body []byte) error {
	c.keys = append(c.keys, key)
	c.bodies = append(c.bodies, body)
	return nil
}

func (c *capture) Close() error { return nil }

func TestVisitPublisher_RoutesByDecision(t *testing.T) {
	c := &capture{}
	p := NewVisitPublisher(c)
	ctx := context.Background()

	_ = p.VisitRecorded(ctx, presence.Event{Decision: presence.NewVisit, LocationID: "A", Count: 1})
	_ = p.VisitRecorded(ctx, presence.Event{Decision: presence.ContinuedVisit, LocationID: "A", Count: 1})
	_ = p.VisitRecorded(ctx, presence.Event{Decision: presence.Skip})

	if len(c.keys) != 2 || c.keys[0] != RoutingNewVisit || c.keys[1] != RoutingContinuedVisit {
		t.Fatalf("keys = %v", c.keys)
	}
	var got map[string]any
	if err := json.Unmarshal(c.bodies[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["decision"] != "new_visit" || got["location_id"] != "A" {
		t.Fatalf("body = %v", got)
	}
}
