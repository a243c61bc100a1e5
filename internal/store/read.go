package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/morgisync/internal/model"
)

// ErrNoSnapshot is returned by LoadSnapshot when nothing was saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Record is one journaled event.
type Record struct {
	Session string
	Seq     int64
	Kind    string
	Payload []byte
}

// ReadEvents returns the events of a session ordered by seq.
//
// Returns an empty slice (not nil) if the session has no events.
func (s *Store) ReadEvents(ctx context.Context, session string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, seq, kind, payload
		FROM events
		WHERE session = ?
		ORDER BY seq ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			rec     Record
			payload string
		)
		if err := rows.Scan(&rec.Session, &rec.Seq, &rec.Kind, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Payload = []byte(payload)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// MaxSeq returns the highest seq recorded for session, or 0.
func (s *Store) MaxSeq(ctx context.Context, session string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(seq) FROM events WHERE session = ?", session,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

// Sessions returns the journaled session ids, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session
		FROM events
		GROUP BY session
		ORDER BY MIN(id) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the most recently started session id.
// Returns sql.ErrNoRows if the journal is empty.
func (s *Store) LatestSession(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT session FROM events ORDER BY id DESC LIMIT 1",
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("latest session: %w", err)
	}
	return id, nil
}

// LoadSnapshot returns the saved snapshot, or ErrNoSnapshot.
func (s *Store) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx,
		"SELECT session, seq, active FROM snapshots WHERE id = 1",
	).Scan(&snap.Session, &snap.Seq, &snap.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	images, err := s.readSnapshotImages(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Images = images

	categories, err := s.readSnapshotCategories(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Categories = categories

	return snap, nil
}

func (s *Store) readSnapshotImages(ctx context.Context) ([]model.Image, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM snapshot_images ORDER BY position ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshot images: %w", err)
	}
	defer rows.Close()

	images := []model.Image{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan snapshot image: %w", err)
		}
		img, err := unmarshalImage(payload)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot images: %w", err)
	}
	return images, nil
}

func (s *Store) readSnapshotCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM snapshot_categories ORDER BY position ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshot categories: %w", err)
	}
	defer rows.Close()

	categories := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.Name); err != nil {
			return nil, fmt.Errorf("scan snapshot category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot categories: %w", err)
	}
	return categories, nil
}

// IsSaved reports whether url is on the capture allow-list.
func (s *Store) IsSaved(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM saved_urls WHERE url = ?)", url,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is saved: %w", err)
	}
	return exists, nil
}

// SavedImageID returns the image id recorded for url, or "".
func (s *Store) SavedImageID(ctx context.Context, url string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT image_id FROM saved_urls WHERE url = ?", url,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("saved image id: %w", err)
	}
	return id, nil
}
