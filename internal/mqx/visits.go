package mqx

import (
	"context"
	"encoding/json"
	"time"

	"beacon-presence-api/internal/presence"
)

const (
	RoutingNewVisit       = "visit.new"
	RoutingContinuedVisit = "visit.continued"
)

// VisitPublisher forwards committed ledger writes to a Publisher.
type VisitPublisher struct {
	pub     Publisher
	timeout time.Duration
}

func NewVisitPublisher(pub Publisher) *VisitPublisher {
	return &VisitPublisher{pub: pub, timeout: 2 * time.Second}
}

func routingKey(d presence.Decision) string {
	if d == presence.ContinuedVisit {
		return RoutingContinuedVisit
	}
	return RoutingNewVisit
}

func (v *VisitPublisher) VisitRecorded(ctx context.Context, ev presence.Event) error {
	if ev.Decision == presence.Skip {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	return v.pub.Publish(ctx, routingKey(ev.Decision), body)
}
