package analytics

import (
	"context"

	"go.uber.org/zap"

	"beacon-presence-api/internal/logx"
	"beacon-presence-api/internal/presence"
)

// EntrySource reads a day of ledger entries.
type EntrySource interface {
	Entries(ctx context.Context, day string) ([]presence.LedgerEntry, error)
}

// NameSource resolves location display names.
type NameSource interface {
	DisplayNames(ctx context.Context) (map[string]string, error)
}

// Engine answers the read-side queries over a ledger snapshot.
type Engine struct {
	entries    EntrySource
	names      NameSource
	thresholds func() Thresholds
	log        *logx.Logger
}

func NewEngine(entries EntrySource, names NameSource, thresholds func() Thresholds) *Engine {
	if thresholds == nil {
		thresholds = DefaultThresholds
	}
	return &Engine{entries: entries, names: names, thresholds: thresholds, log: logx.GetScope("analytics")}
}

func (e *Engine) Sessions(ctx context.Context, day, target string) (map[string]Session, error) {
	entries, err := e.entries.Entries(ctx, day)
	if err != nil {
		return nil, err
	}
	sessions := Reconstruct(entries, target, e.thresholds())
	mismatched := 0
	for _, s := range sessions {
		mismatched += s.DwellMismatches
	}
	if mismatched > 0 {
		e.log.Warn("dwell time disagrees with record timestamps",
			zap.String("day", day), zap.Int("records", mismatched))
	}
	return sessions, nil
}

func (e *Engine) Prospects(ctx context.Context, day string) ([]Session, error) {
	sessions, err := e.Sessions(ctx, day, "")
	if err != nil {
		return nil, err
	}
	return Prospects(sessions), nil
}

func (e *Engine) Movements(ctx context.Context, day string) ([]Transition, error) {
	sessions, err := e.Sessions(ctx, day, "")
	if err != nil {
		return nil, err
	}
	return MovementPatterns(sessions), nil
}

// Summary degrades to ids as display names when the location store fails.
func (e *Engine) Summary(ctx context.Context, day string) ([]LocationSummary, error) {
	entries, err := e.entries.Entries(ctx, day)
	if err != nil {
		return nil, err
	}
	names := map[string]string{}
	if e.names != nil {
		if n, err := e.names.DisplayNames(ctx); err != nil {
			e.log.Warn("display names unavailable", zap.Error(err))
		} else {
			names = n
		}
	}
	return Summarize(entries, names), nil
}
