package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/twinsync/internal/change"
	"github.com/roach88/twinsync/internal/syncerr"
)

// Replay executes a rendered statement with the carry-through marker set to
// the statement's original timestamp, so this side's capture trigger records
// that time instead of now.
//
// The marker set, the statement and the marker clear run in one transaction
// on one pinned connection. When the replay fails, the marker is cleared
// again on that connection after rollback, since a session variable
// survives a rollback and the connection goes back to the pool.
// Returns the statement's affected rows.
func (s *Store) Replay(ctx context.Context, stmt change.Statement) (int64, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, syncerr.Database(s.Name(), err, "acquire replay connection")
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, syncerr.Database(s.Name(), err, "begin replay")
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tx.Rollback()
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), s.dialect.ClearMarker()); err != nil {
			slog.Warn("clear timestamp marker after failed replay", "side", s.Name(), "error", err)
		}
	}()

	markerSQL, markerArgs := s.dialect.SetMarker(stmt.Marker)
	if _, err := tx.ExecContext(ctx, markerSQL, markerArgs...); err != nil {
		return 0, syncerr.Database(s.Name(), err, "set timestamp marker")
	}

	res, err := tx.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		e := syncerr.Database(s.Name(), err, "replay %s", stmt.Kind)
		e.Table = stmt.Table
		return 0, e
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, syncerr.Database(s.Name(), err, "rows affected")
	}

	if _, err := tx.ExecContext(ctx, s.dialect.ClearMarker()); err != nil {
		return 0, syncerr.Database(s.Name(), err, "clear timestamp marker")
	}

	if err := tx.Commit(); err != nil {
		return 0, syncerr.Database(s.Name(), err, "commit replay")
	}
	committed = true

	return affected, nil
}

// ReplayRecord renders r and replays it.
func (s *Store) ReplayRecord(ctx context.Context, r change.Record) (int64, error) {
	stmt, err := change.Render(r)
	if err != nil {
		return 0, fmt.Errorf("render change %d: %w", r.ID, err)
	}
	return s.Replay(ctx, stmt)
}
