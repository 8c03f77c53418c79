package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/twinsync/internal/change"
	"github.com/roach88/twinsync/internal/mapper"
	"github.com/roach88/twinsync/internal/testutil"
)

const edgeGapSchema = `
CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT);
CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT);
CREATE TABLE tags (label TEXT);
`

const hubGapSchema = `
CREATE TABLE users (id INTEGER PRIMARY KEY, full_name TEXT NOT NULL);
CREATE TABLE tags (title TEXT);
CREATE TABLE audit (id INTEGER PRIMARY KEY, what TEXT);
`

func newGapApplier(t *testing.T) (*Applier, *testutil.Pair) {
	t.Helper()
	p := testutil.NewPairWith(t, edgeGapSchema, hubGapSchema)
	ov, err := mapper.ParseOverrides([]byte("tables:\n  - local: users\n    columns:\n      name: full_name\n"))
	require.NoError(t, err)
	m, err := mapper.Build(context.Background(), p.Edge, p.Hub, ov)
	require.NoError(t, err)
	return NewApplier(m, p.Edge, p.Hub, nil), p
}

func TestApplier_TranslateRenamesAndDropsColumns(t *testing.T) {
	a, p := newGapApplier(t)

	rec := change.NewUpdate("users",
		change.Of("id", "1", "name", "Bea", "email", "bea@example.com"),
		change.Of("id", "1", "name", "Ann", "email", "ann@example.com"),
		p.Clock.Next())
	out, outcome := a.Translate(&DirectedChange{Record: rec, Direction: LocalToRemote})

	require.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, "users", out.Table)
	assert.Equal(t, []string{"id", "full_name"}, out.New.Columns())
	assert.Equal(t, []string{"id", "full_name"}, out.Old.Columns())
	f, _ := out.Old.Get("full_name")
	assert.Equal(t, "Ann", f.Value)
	assert.Equal(t, rec.Timestamp, out.Timestamp)

	// The source record is untouched.
	assert.Equal(t, 3, rec.New.Len())
}

func TestApplier_TranslateRemoteToLocal(t *testing.T) {
	a, p := newGapApplier(t)

	v := change.Of("id", "4")
	v.SetNull("full_name")
	rec := change.NewInsert("users", v, p.Clock.Next())
	out, outcome := a.Translate(&DirectedChange{Record: rec, Direction: RemoteToLocal})

	require.Equal(t, OutcomeApplied, outcome)
	f, ok := out.New.Get("name")
	require.True(t, ok)
	assert.True(t, f.Null)
}

func TestApplier_TranslateUnmappedTable(t *testing.T) {
	a, p := newGapApplier(t)

	_, outcome := a.Translate(&DirectedChange{
		Record:    change.NewInsert("notes", change.Of("id", "1", "body", "x"), p.Clock.Next()),
		Direction: LocalToRemote,
	})
	assert.Equal(t, OutcomeUnmappedTable, outcome)

	_, outcome = a.Translate(&DirectedChange{
		Record:    change.NewInsert("audit", change.Of("id", "1"), p.Clock.Next()),
		Direction: RemoteToLocal,
	})
	assert.Equal(t, OutcomeUnmappedTable, outcome)

	_, outcome = a.Translate(&DirectedChange{
		Record:    change.NewInsert("ghost", change.Of("id", "1"), p.Clock.Next()),
		Direction: LocalToRemote,
	})
	assert.Equal(t, OutcomeUnmappedTable, outcome)
}

func TestApplier_TranslateNoColumns(t *testing.T) {
	a, p := newGapApplier(t)

	_, outcome := a.Translate(&DirectedChange{
		Record:    change.NewInsert("tags", change.Of("label", "red"), p.Clock.Next()),
		Direction: LocalToRemote,
	})
	assert.Equal(t, OutcomeNoColumns, outcome)
}

func TestApplier_ApplyReplaysOnOppositeSide(t *testing.T) {
	a, p := newGapApplier(t)
	ctx := context.Background()
	ts := p.Clock.Next()

	res, err := a.Apply(ctx, &DirectedChange{
		Record:    change.NewInsert("users", change.Of("id", "1", "name", "Ann", "email", "a@x"), ts),
		Direction: LocalToRemote,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, int64(1), res.Affected)
	assert.Equal(t, "users", res.TargetTable)
	assert.Equal(t, change.KindInsert.String(), res.Kind)

	assert.Equal(t, "Ann", testutil.QueryString(t, p.Hub, "SELECT full_name FROM users WHERE id = 1"))
	hubLog := testutil.ChangeLog(t, p.Hub)
	require.Len(t, hubLog, 1)
	assert.True(t, ts.Equal(hubLog[0].Timestamp), "replay keeps the origin timestamp")
	assert.Empty(t, testutil.ChangeLog(t, p.Edge))
}

func TestApplier_ApplyDroppedDoesNotWrite(t *testing.T) {
	a, p := newGapApplier(t)

	res, err := a.Apply(context.Background(), &DirectedChange{
		Record:    change.NewInsert("notes", change.Of("id", "1", "body", "x"), p.Clock.Next()),
		Direction: LocalToRemote,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmappedTable, res.Outcome)
	assert.Empty(t, res.TargetTable)
	assert.Empty(t, testutil.ChangeLog(t, p.Hub))
}

func TestApplier_ApplyPreconditionMiss(t *testing.T) {
	a, p := newGapApplier(t)
	testutil.WriteAt(t, p.Hub, p.Clock.Next(), "INSERT INTO users (id, full_name) VALUES (1, 'Cat')")

	res, err := a.Apply(context.Background(), &DirectedChange{
		Record: change.NewUpdate("users",
			change.Of("id", "1", "name", "Bea"),
			change.Of("id", "1", "name", "Ann"),
			p.Clock.Next()),
		Direction: LocalToRemote,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, int64(0), res.Affected)
	assert.Equal(t, "Cat", testutil.QueryString(t, p.Hub, "SELECT full_name FROM users WHERE id = 1"))
}

func TestSyncDirection_String(t *testing.T) {
	assert.Equal(t, "local_to_remote", LocalToRemote.String())
	assert.Equal(t, "remote_to_local", RemoteToLocal.String())
	assert.Equal(t, "unknown", SyncDirection(0).String())

	text, err := RemoteToLocal.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "remote_to_local", string(text))
}
