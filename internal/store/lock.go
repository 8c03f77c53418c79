package store

import (
	"context"
	"fmt"

	"github.com/roach88/twinsync/internal/change"
	"github.com/roach88/twinsync/internal/dialect"
	"github.com/roach88/twinsync/internal/syncerr"
)

// AcquireLock sets the hub's sync flag.
//
// Without force the flag is taken with a single conditional update, so two
// processes can never both observe it clear. Zero affected rows means another
// cycle holds it. With force the flag is set regardless.
func (s *Store) AcquireLock(ctx context.Context, force bool) error {
	if err := s.requireHub("acquire lock"); err != nil {
		return err
	}
	if err := s.requireTable(ctx, dialect.LockTable); err != nil {
		return err
	}

	lock := change.QuoteIdent(dialect.LockTable)
	if force {
		// MySQL reports zero affected rows when the flag is already set, so
		// the count is not checked here.
		if _, err := s.Exec(ctx, fmt.Sprintf("UPDATE %s SET sync_status = 1 WHERE id = 1", lock)); err != nil {
			return fmt.Errorf("force lock: %w", err)
		}
		return nil
	}

	n, err := s.Exec(ctx, fmt.Sprintf("UPDATE %s SET sync_status = 1 WHERE id = 1 AND sync_status = 0", lock))
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if n == 0 {
		return syncerr.NewSyncInProgress(s.Name())
	}
	return nil
}

// ReleaseLock clears the hub's sync flag.
func (s *Store) ReleaseLock(ctx context.Context) error {
	if err := s.requireHub("release lock"); err != nil {
		return err
	}
	_, err := s.Exec(ctx, fmt.Sprintf("UPDATE %s SET sync_status = 0 WHERE id = 1", change.QuoteIdent(dialect.LockTable)))
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// LockHeld reports whether the sync flag is set.
func (s *Store) LockHeld(ctx context.Context) (bool, error) {
	if err := s.requireHub("read lock"); err != nil {
		return false, err
	}
	var status int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT sync_status FROM %s WHERE id = 1", change.QuoteIdent(dialect.LockTable),
	)).Scan(&status)
	if err != nil {
		return false, syncerr.Database(s.Name(), err, "read lock")
	}
	return status != 0, nil
}

func (s *Store) requireHub(op string) error {
	if s.role != dialect.RoleHub {
		return syncerr.NewInvalid(syncerr.ReasonWrongSide, fmt.Sprintf("%s: the sync lock is stored on the hub, not the %s", op, s.role))
	}
	return nil
}
