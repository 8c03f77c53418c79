package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/twinsync/internal/dialect"
	"github.com/roach88/twinsync/internal/syncerr"
)

// Store is one side of a sync pair: a database handle plus the dialect and
// role needed to read its change log and bookkeeping rows.
type Store struct {
	db      *sql.DB
	dialect dialect.Dialect
	role    dialect.Role
}

// Open connects to a side database.
//
// SQLite handles are configured with:
//   - a single connection, so the replay marker and the statement it
//     annotates always share one session
//   - WAL mode and NORMAL synchronous mode
//   - a 5-second busy timeout for lock contention
//
// MySQL DSNs are rewritten by MySQLDSN before connecting.
//
// Open does not create bookkeeping tables; see package provision.
func Open(ctx context.Context, driver, dsn string, role dialect.Role) (*Store, error) {
	d, err := dialect.ForDriver(driver)
	if err != nil {
		return nil, err
	}

	if _, ok := d.(dialect.MySQL); ok {
		if dsn, err = MySQLDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.Name(), dsn)
	if err != nil {
		return nil, syncerr.Database(string(role), err, "open %s database", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, syncerr.Database(string(role), err, "connect to %s database", driver)
	}

	switch d.(type) {
	case dialect.SQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, syncerr.Database(string(role), err, "apply pragmas")
		}
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &Store{db: db, dialect: d, role: role}, nil
}

// New wraps an existing handle.
func New(db *sql.DB, d dialect.Dialect, role dialect.Role) *Store {
	return &Store{db: db, dialect: d, role: role}
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the side's SQL dialect.
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

// Role returns whether this is the edge or the hub.
func (s *Store) Role() dialect.Role {
	return s.role
}

// Name returns the role as a string, for logs and errors.
func (s *Store) Name() string {
	return string(s.role)
}

// Query runs a statement that returns rows. Callers close the rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, syncerr.Database(s.Name(), err, "query")
	}
	return rows, nil
}

// Exec runs a statement and returns the number of affected rows.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, syncerr.Database(s.Name(), err, "exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, syncerr.Database(s.Name(), err, "rows affected")
	}
	return n, nil
}

// Tables lists user tables, excluding bookkeeping tables.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	all, err := s.queryStrings(ctx, "list tables", s.dialect.TablesQuery())
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(all))
	for _, t := range all {
		if !dialect.IsBookkeeping(t) {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

// AllTables lists every table, bookkeeping tables included.
func (s *Store) AllTables(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "list tables", s.dialect.TablesQuery())
}

// Columns lists a table's columns in declaration order.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	return s.queryStrings(ctx, "list columns of "+table, s.dialect.ColumnsQuery(), table)
}

// Triggers lists trigger names.
func (s *Store) Triggers(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "list triggers", s.dialect.TriggersQuery())
}

func (s *Store) queryStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, syncerr.Database(s.Name(), err, "%s", op)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, syncerr.Database(s.Name(), err, "%s: scan", op)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerr.Database(s.Name(), err, "%s: iterate", op)
	}
	return out, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
