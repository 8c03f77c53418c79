package mapper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/twinsync/internal/syncerr"
)

// fakeSide is an in-memory Introspector.
type fakeSide struct {
	order   []string
	columns map[string][]string
	err     error
}

func newFakeSide(tables ...string) *fakeSide {
	return &fakeSide{order: tables, columns: map[string][]string{}}
}

func (f *fakeSide) with(table string, cols ...string) *fakeSide {
	f.columns[table] = cols
	return f
}

func (f *fakeSide) Tables(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeSide) Columns(ctx context.Context, table string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.columns[table], nil
}

func TestBuild_PairsByName(t *testing.T) {
	local := newFakeSide("users", "notes").
		with("users", "id", "name", "secret").
		with("notes", "id", "body")
	remote := newFakeSide("users", "orders").
		with("users", "id", "name", "created_at").
		with("orders", "id")

	m, err := Build(context.Background(), local, remote, nil)
	require.NoError(t, err)

	users, ok := m.ByLocalTable("users")
	require.True(t, ok)
	assert.True(t, users.Paired())
	assert.Equal(t, "users", users.Remote)

	name, ok := users.ByLocalColumn("name")
	require.True(t, ok)
	assert.Equal(t, "name", name.Remote)

	secret, ok := users.ByLocalColumn("secret")
	require.True(t, ok)
	assert.False(t, secret.Paired(), "local-only column maps to absent")

	created, ok := users.ByRemoteColumn("created_at")
	require.True(t, ok)
	assert.Equal(t, "", created.Local)

	notes, ok := m.ByLocalTable("notes")
	require.True(t, ok)
	assert.False(t, notes.Paired())

	orders, ok := m.ByRemoteTable("orders")
	require.True(t, ok)
	assert.Equal(t, "", orders.Local)

	_, ok = m.ByLocalTable("missing")
	assert.False(t, ok)

	assert.Len(t, m.Tables(), 3)
}

func TestBuild_RenameOverrides(t *testing.T) {
	local := newFakeSide("customers").with("customers", "id", "name", "pw")
	remote := newFakeSide("clients").with("clients", "id", "full_name", "pw")

	ov, err := ParseOverrides([]byte(`
tables:
  - local: customers
    remote: clients
    columns:
      name: full_name
    exclude: [pw]
`))
	require.NoError(t, err)

	m, err := Build(context.Background(), local, remote, ov)
	require.NoError(t, err)

	tm, ok := m.ByRemoteTable("clients")
	require.True(t, ok)
	assert.Equal(t, "customers", tm.Local)

	col, ok := tm.ByLocalColumn("name")
	require.True(t, ok)
	assert.Equal(t, "full_name", col.Remote)

	col, ok = tm.ByRemoteColumn("full_name")
	require.True(t, ok)
	assert.Equal(t, "name", col.Local)

	pw, ok := tm.ByLocalColumn("pw")
	require.True(t, ok)
	assert.False(t, pw.Paired())

	remotePw, ok := tm.ByRemoteColumn("pw")
	require.True(t, ok)
	assert.Equal(t, "", remotePw.Local)
}

func TestBuild_RenameShadowsSameName(t *testing.T) {
	// name -> full_name on a remote that also has a "name" column: local
	// "name" must not pair twice.
	local := newFakeSide("users").with("users", "id", "name", "full_name")
	remote := newFakeSide("users").with("users", "id", "name", "full_name")

	ov, err := ParseOverrides([]byte(`
tables:
  - local: users
    columns:
      name: full_name
`))
	require.NoError(t, err)

	m, err := Build(context.Background(), local, remote, ov)
	require.NoError(t, err)
	tm, _ := m.ByLocalTable("users")

	name, _ := tm.ByLocalColumn("name")
	assert.Equal(t, "full_name", name.Remote)
	full, _ := tm.ByLocalColumn("full_name")
	assert.Equal(t, "", full.Remote)
	remoteName, ok := tm.ByRemoteColumn("name")
	require.True(t, ok)
	assert.Equal(t, "", remoteName.Local)
}

func TestBuild_ExcludeTable(t *testing.T) {
	local := newFakeSide("audit", "users").with("users", "id")
	remote := newFakeSide("audit", "users").with("users", "id")

	m, err := Build(context.Background(), local, remote, &Overrides{Exclude: []string{"audit"}})
	require.NoError(t, err)

	audit, ok := m.ByLocalTable("audit")
	require.True(t, ok)
	assert.False(t, audit.Paired())

	remoteAudit, ok := m.ByRemoteTable("audit")
	require.True(t, ok)
	assert.False(t, remoteAudit.Paired())
}

func TestBuild_RejectsUnknownOverrideNames(t *testing.T) {
	local := newFakeSide("users").with("users", "id")
	remote := newFakeSide("users").with("users", "id")

	cases := map[string]*Overrides{
		"local table":  {Tables: []TableOverride{{Local: "nope", Remote: "users"}}},
		"remote table": {Tables: []TableOverride{{Local: "users", Remote: "nope"}}},
		"column":       {Tables: []TableOverride{{Local: "users", Remote: "users", Columns: map[string]string{"id": "nope"}}}},
		"exclude":      {Exclude: []string{"nope"}},
	}
	for name, ov := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(context.Background(), local, remote, ov)
			require.Error(t, err)
			assert.True(t, syncerr.IsInvalid(err))
			var se *syncerr.Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, syncerr.ReasonBadOverride, se.Details["reason"])
		})
	}
}

func TestBuild_IntrospectionFailure(t *testing.T) {
	boom := errors.New("boom")
	remote := newFakeSide("users")
	remote.err = boom

	_, err := Build(context.Background(), newFakeSide("users"), remote, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestParseOverrides_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseOverrides([]byte("tabels: []\n"))
	require.Error(t, err)
	assert.True(t, syncerr.IsInvalid(err))

	_, err = ParseOverrides([]byte("tables:\n  - remote: x\n"))
	require.Error(t, err)
}

func TestParseOverrides_DefaultsRemoteToLocal(t *testing.T) {
	ov, err := ParseOverrides([]byte("tables:\n  - local: users\n"))
	require.NoError(t, err)
	assert.Equal(t, "users", ov.Tables[0].Remote)
}

func TestLoadOverrides(t *testing.T) {
	ov, err := LoadOverrides("")
	require.NoError(t, err)
	assert.Empty(t, ov.Tables)

	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exclude: [audit]\n"), 0644))
	ov, err = LoadOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit"}, ov.Exclude)

	_, err = LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
