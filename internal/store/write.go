package store

import (
	"context"
	"fmt"

	"github.com/roach88/morgisync/internal/model"
)

// Append records one applied event. It satisfies engine.Journal.
//
// Uses ON CONFLICT(session, seq) DO NOTHING for idempotency - rewriting
// the same sequence number is silently ignored.
func (s *Store) Append(ctx context.Context, session string, seq int64, kind string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (session, seq, kind, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session, seq) DO NOTHING
	`, session, seq, kind, string(payload))
	if err != nil {
		return fmt.Errorf("append event %d: %w", seq, err)
	}
	return nil
}

// SaveSnapshot replaces the stored snapshot with snap in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, stmt := range []string{
		"DELETE FROM snapshot_images",
		"DELETE FROM snapshot_categories",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("save snapshot: clear: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, session, seq, active)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session = excluded.session,
			seq = excluded.seq,
			active = excluded.active
	`, snap.Session, snap.Seq, snap.Active)
	if err != nil {
		return fmt.Errorf("save snapshot: header: %w", err)
	}

	for i, img := range snap.Images {
		payload, err := marshalImage(img)
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO snapshot_images (position, id, payload) VALUES (?, ?, ?)",
			i, img.ID, payload,
		); err != nil {
			return fmt.Errorf("save snapshot: image %s: %w", img.ID, err)
		}
	}

	for i, c := range snap.Categories {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO snapshot_categories (position, name) VALUES (?, ?)",
			i, c.Name,
		); err != nil {
			return fmt.Errorf("save snapshot: category %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: commit: %w", err)
	}
	return nil
}

// MarkSaved adds url to the capture allow-list. Marking the same URL again
// keeps the first image id unless it was empty.
func (s *Store) MarkSaved(ctx context.Context, url, imageID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_urls (url, image_id)
		VALUES (?, ?)
		ON CONFLICT(url) DO UPDATE SET
			image_id = CASE WHEN saved_urls.image_id = '' THEN excluded.image_id ELSE saved_urls.image_id END
	`, url, imageID)
	if err != nil {
		return fmt.Errorf("mark saved: %w", err)
	}
	return nil
}

// Snapshot is a saved copy of the mirror.
type Snapshot struct {
	Session    string
	Seq        int64
	Active     string
	Images     []model.Image
	Categories []model.Category
}
