package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/twinsync/internal/change"
	"github.com/roach88/twinsync/internal/dialect"
	"github.com/roach88/twinsync/internal/syncerr"
)

// Watermark records the last change id of each side already accounted for.
// It lives on the edge; each advance appends a row.
type Watermark struct {
	ID           int64  `json:"id"`
	LocalLastID  int64  `json:"local_last_id"`
	RemoteLastID int64  `json:"remote_last_id"`
	SyncedAt     string `json:"synced_at,omitempty"`
}

// LoadWatermark returns the newest watermark, or a zero watermark if no
// cycle has advanced yet.
func (s *Store) LoadWatermark(ctx context.Context) (Watermark, error) {
	if err := s.requireEdge("load watermark"); err != nil {
		return Watermark{}, err
	}
	if err := s.requireTable(ctx, dialect.WatermarkTable); err != nil {
		return Watermark{}, err
	}

	var wm Watermark
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, local_last_id, remote_last_id, synced_at
		FROM %s
		ORDER BY id DESC
		LIMIT 1
	`, change.QuoteIdent(dialect.WatermarkTable))).Scan(&wm.ID, &wm.LocalLastID, &wm.RemoteLastID, &wm.SyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Watermark{}, nil
	}
	if err != nil {
		return Watermark{}, syncerr.Database(s.Name(), err, "load watermark")
	}
	return wm, nil
}

// SaveWatermark appends a watermark row.
func (s *Store) SaveWatermark(ctx context.Context, localLastID, remoteLastID int64) error {
	if err := s.requireEdge("save watermark"); err != nil {
		return err
	}
	_, err := s.Exec(ctx, fmt.Sprintf(
		"INSERT INTO %s (local_last_id, remote_last_id) VALUES (?, ?)",
		change.QuoteIdent(dialect.WatermarkTable),
	), localLastID, remoteLastID)
	if err != nil {
		return fmt.Errorf("save watermark: %w", err)
	}
	return nil
}

// WatermarkHistory returns up to limit watermark rows, newest first.
func (s *Store) WatermarkHistory(ctx context.Context, limit int) ([]Watermark, error) {
	if err := s.requireEdge("watermark history"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, local_last_id, remote_last_id, synced_at
		FROM %s
		ORDER BY id DESC
		LIMIT ?
	`, change.QuoteIdent(dialect.WatermarkTable)), limit)
	if err != nil {
		return nil, syncerr.Database(s.Name(), err, "watermark history")
	}
	defer rows.Close()

	history := []Watermark{}
	for rows.Next() {
		var wm Watermark
		if err := rows.Scan(&wm.ID, &wm.LocalLastID, &wm.RemoteLastID, &wm.SyncedAt); err != nil {
			return nil, syncerr.Database(s.Name(), err, "scan watermark")
		}
		history = append(history, wm)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerr.Database(s.Name(), err, "iterate watermarks")
	}
	return history, nil
}

func (s *Store) requireEdge(op string) error {
	if s.role != dialect.RoleEdge {
		return syncerr.NewInvalid(syncerr.ReasonWrongSide, fmt.Sprintf("%s: watermarks are stored on the edge, not the %s", op, s.role))
	}
	return nil
}
