package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/twinsync/internal/change"
	"github.com/roach88/twinsync/internal/dialect"
	"github.com/roach88/twinsync/internal/provision"
	"github.com/roach88/twinsync/internal/store"
)

// UsersSchema is the application schema most tests share.
const UsersSchema = `
CREATE TABLE users (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT
);
`

// Pair is a provisioned edge/hub pair of SQLite databases.
type Pair struct {
	Edge  *store.Store
	Hub   *store.Store
	Clock *Clock
}

// NewPair creates both sides with the same application schema.
func NewPair(t *testing.T, schema string) *Pair {
	t.Helper()
	return NewPairWith(t, schema, schema)
}

// NewPairWith creates the sides with different application schemas.
func NewPairWith(t *testing.T, edgeSchema, hubSchema string) *Pair {
	t.Helper()
	return &Pair{
		Edge:  OpenSide(t, dialect.RoleEdge, edgeSchema),
		Hub:   OpenSide(t, dialect.RoleHub, hubSchema),
		Clock: NewClock(),
	}
}

// OpenSide opens a SQLite side in t.TempDir, applies schema and provisions it.
func OpenSide(t *testing.T, role dialect.Role, schema string) *store.Store {
	t.Helper()
	st := OpenRaw(t, role, schema)
	_, err := provision.Convert(context.Background(), st)
	require.NoError(t, err)
	return st
}

// OpenRaw opens a SQLite side and applies schema without provisioning.
func OpenRaw(t *testing.T, role dialect.Role, schema string) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), string(role)+".db")
	st, err := store.Open(context.Background(), "sqlite3", path, role)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if schema != "" {
		_, err = st.DB().Exec(schema)
		require.NoError(t, err)
	}
	return st
}

// Exec runs an application statement, stamped with the current time by the
// capture trigger.
func Exec(t *testing.T, st *store.Store, query string, args ...any) {
	t.Helper()
	_, err := st.DB().Exec(query, args...)
	require.NoError(t, err)
}

// WriteAt runs an application statement whose change-log row is stamped ts.
func WriteAt(t *testing.T, st *store.Store, ts time.Time, query string, args ...any) {
	t.Helper()
	_, err := st.Replay(context.Background(), change.Statement{
		SQL:    query,
		Args:   args,
		Marker: change.FormatTimestamp(ts),
	})
	require.NoError(t, err)
}

// ChangeLog returns every change record on st.
func ChangeLog(t *testing.T, st *store.Store) []change.Record {
	t.Helper()
	records, err := st.RecordsAfter(context.Background(), 0)
	require.NoError(t, err)
	return records
}

// QueryString reads a single string value, mapping NULL to "<nil>".
func QueryString(t *testing.T, st *store.Store, query string, args ...any) string {
	t.Helper()
	var v *string
	require.NoError(t, st.DB().QueryRow(query, args...).Scan(&v))
	if v == nil {
		return "<nil>"
	}
	return *v
}

// QueryInt reads a single integer value.
func QueryInt(t *testing.T, st *store.Store, query string, args ...any) int64 {
	t.Helper()
	var v int64
	require.NoError(t, st.DB().QueryRow(query, args...).Scan(&v))
	return v
}
