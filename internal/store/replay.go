package store

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/roach88/morgisync/internal/engine"
	"github.com/roach88/morgisync/internal/model"
)

// ReplayResult is the mirror rebuilt from a journal session.
type ReplayResult struct {
	Session    string
	Events     int
	Images     []model.Image
	Categories []model.Category
}

// LoadEvents decodes the events of a session in seq order.
func (s *Store) LoadEvents(ctx context.Context, session string) ([]engine.Event, error) {
	records, err := s.ReadEvents(ctx, session)
	if err != nil {
		return nil, err
	}
	events := make([]engine.Event, 0, len(records))
	for _, rec := range records {
		ev, err := engine.DecodeEvent(rec.Kind, rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", rec.Seq, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Replay rebuilds the mirror of session by applying its events to a fresh
// engine. With doubled set, every event is applied twice in a row; the
// result must equal a single application.
func (s *Store) Replay(ctx context.Context, session string, doubled bool, logger *slog.Logger) (ReplayResult, error) {
	events, err := s.LoadEvents(ctx, session)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay %s: %w", session, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := engine.New(nil, engine.WithLogger(logger))
	for _, ev := range events {
		e.Apply(ctx, ev)
		if doubled {
			e.Apply(ctx, ev)
		}
	}

	return ReplayResult{
		Session:    session,
		Events:     len(events),
		Images:     e.Images(),
		Categories: e.Categories(),
	}, nil
}

// VerifyReplay replays session once and doubled, and returns an error
// describing the first difference between the two mirrors.
func (s *Store) VerifyReplay(ctx context.Context, session string, logger *slog.Logger) (ReplayResult, error) {
	once, err := s.Replay(ctx, session, false, logger)
	if err != nil {
		return ReplayResult{}, err
	}
	twice, err := s.Replay(ctx, session, true, logger)
	if err != nil {
		return ReplayResult{}, err
	}
	if err := diffMirrors(once, twice); err != nil {
		return once, fmt.Errorf("replay %s: doubled application diverged: %w", session, err)
	}
	return once, nil
}

func diffMirrors(a, b ReplayResult) error {
	if len(a.Images) != len(b.Images) {
		return fmt.Errorf("image count %d != %d", len(a.Images), len(b.Images))
	}
	for i := range a.Images {
		if !reflect.DeepEqual(a.Images[i], b.Images[i]) {
			return fmt.Errorf("image %d: %+v != %+v", i, a.Images[i], b.Images[i])
		}
	}
	if !reflect.DeepEqual(a.Categories, b.Categories) {
		return fmt.Errorf("categories %v != %v", a.Categories, b.Categories)
	}
	return nil
}
