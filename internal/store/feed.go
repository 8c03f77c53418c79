package store

import (
	"context"
	"fmt"

	"github.com/roach88/twinsync/internal/change"
	"github.com/roach88/twinsync/internal/dialect"
	"github.com/roach88/twinsync/internal/syncerr"
)

// RecordsAfter returns change records with id > afterID in insertion order.
//
// Returns an empty slice (not nil) if there are none. A missing change log
// is an initialization failure; a malformed row is a query parse error.
func (s *Store) RecordsAfter(ctx context.Context, afterID int64) ([]change.Record, error) {
	if err := s.requireTable(ctx, dialect.ChangeLogTable); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, table_name, query_type, new_record, old_record, query_timestamp
		FROM %s
		WHERE id > ?
		ORDER BY id ASC
	`, change.QuoteIdent(dialect.ChangeLogTable)), afterID)
	if err != nil {
		return nil, syncerr.Database(s.Name(), err, "read change log")
	}
	defer rows.Close()

	records := []change.Record{}
	for rows.Next() {
		var row change.LogRow
		if err := rows.Scan(&row.ID, &row.TableName, &row.QueryType, &row.NewRecord, &row.OldRecord, &row.QueryTimestamp); err != nil {
			return nil, syncerr.Database(s.Name(), err, "scan change log")
		}
		rec, err := change.FromLog(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerr.Database(s.Name(), err, "iterate change log")
	}

	return records, nil
}

// LatestID returns the highest change-log id, or 0 for an empty log.
func (s *Store) LatestID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COALESCE(MAX(id), 0) FROM %s", change.QuoteIdent(dialect.ChangeLogTable),
	)).Scan(&id)
	if err != nil {
		return 0, syncerr.Database(s.Name(), err, "read latest change id")
	}
	return id, nil
}

// RewriteOldValues persists a rebased pre-image onto a change-log row.
//
// Rewriting a row with the values it already holds succeeds; only a missing
// row is an error.
func (s *Store) RewriteOldValues(ctx context.Context, id int64, old change.Values) error {
	n, err := s.Exec(ctx, fmt.Sprintf(
		"UPDATE %s SET old_record = ? WHERE id = ?", change.QuoteIdent(dialect.ChangeLogTable),
	), old.String(), id)
	if err != nil {
		return fmt.Errorf("rewrite old values of change %d: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	// Drivers that report changed rather than matched rows return 0 here
	// for an identical rewrite.
	var found int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE id = ?", change.QuoteIdent(dialect.ChangeLogTable),
	), id).Scan(&found)
	if err != nil {
		return syncerr.Database(s.Name(), err, "look up change %d", id)
	}
	if found == 0 {
		return fmt.Errorf("rewrite old values of change %d: %w", id,
			syncerr.NewNotFound(s.Name(), "change", fmt.Sprintf("%d", id)))
	}
	return nil
}

// requireTable fails with an initialization error when table is missing.
func (s *Store) requireTable(ctx context.Context, table string) error {
	ok, err := s.HasTable(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return syncerr.NewInitializationFailure(s.Name(),
			fmt.Sprintf("required table %q is missing", table), nil)
	}
	return nil
}

// HasTable reports whether table exists.
func (s *Store) HasTable(ctx context.Context, table string) (bool, error) {
	tables, err := s.AllTables(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t == table {
			return true, nil
		}
	}
	return false, nil
}
