package change

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/twinsync/internal/syncerr"
)

var fixedTS = time.Date(2026, 10, 14, 9, 30, 0, 125_000_000, time.UTC)

// formatStatement renders a statement for golden comparison.
func formatStatement(s Statement) []byte {
	var b strings.Builder
	b.WriteString(s.SQL)
	b.WriteString("\n-- args:")
	for _, a := range s.Args {
		if a == nil {
			b.WriteString(" NULL")
			continue
		}
		fmt.Fprintf(&b, " %q", a)
	}
	b.WriteString("\n-- marker: ")
	b.WriteString(s.Marker)
	b.WriteString("\n")
	return []byte(b.String())
}

func TestRender_Golden(t *testing.T) {
	nullableOld := Of("id", "1", "name", "Ann")
	nullableOld.SetNull("nickname")

	injection := Of("select", "x'; DROP TABLE users; --")
	injection.SetNull("note")

	tests := []struct {
		name   string
		record Record
	}{
		{
			name:   "insert_users",
			record: NewInsert("users", Of("id", "1", "name", "Ann"), fixedTS),
		},
		{
			name:   "update_null_precondition",
			record: NewUpdate("users", Of("name", "Bea"), nullableOld, fixedTS),
		},
		{
			name:   "quoted_identifiers",
			record: NewInsert("odd`table", injection, fixedTS),
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Render(tt.record)
			require.NoError(t, err)
			g.Assert(t, tt.name, formatStatement(stmt))
		})
	}
}

func TestRender_ValuesAreNeverInlined(t *testing.T) {
	stmt, err := Render(NewUpdate("users",
		Of("name", "Robert'); DROP TABLE users;--"),
		Of("id", "7"),
		fixedTS))
	require.NoError(t, err)

	assert.NotContains(t, stmt.SQL, "DROP")
	assert.Equal(t, []any{"Robert'); DROP TABLE users;--", "7"}, stmt.Args)
	assert.Equal(t, "users", stmt.Table)
	assert.Equal(t, KindUpdate, stmt.Kind)
}

func TestRender_MarkerIsOriginalTimestamp(t *testing.T) {
	ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	stmt, err := Render(NewInsert("users", Of("id", "1"), ts))
	require.NoError(t, err)
	assert.Equal(t, "2020-01-02 03:04:05.000", stmt.Marker)
}

func TestRender_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		record Record
	}{
		{"no table", NewInsert("", Of("id", "1"), fixedTS)},
		{"insert without values", NewInsert("users", Values{}, fixedTS)},
		{"update without values", NewUpdate("users", Values{}, Of("id", "1"), fixedTS)},
		{"update without precondition", NewUpdate("users", Of("name", "Ann"), Values{}, fixedTS)},
		{"unknown kind", Record{Table: "users", New: Of("id", "1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Render(tt.record)
			require.Error(t, err)
			assert.True(t, syncerr.IsQueryParse(err), "want QUERY_PARSE, got %v", err)
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "`users`", QuoteIdent("users"))
	assert.Equal(t, "`a``b`", QuoteIdent("a`b"))
}

func TestCheckParses_KindMismatch(t *testing.T) {
	err := checkParses("INSERT INTO `t` (`a`) VALUES (?)", KindUpdate)
	require.Error(t, err)

	err = checkParses("UPDATE `t` SET `a` = ?", KindUpdate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WHERE")

	err = checkParses("DELETE FROM `t` WHERE `a` = ?", KindInsert)
	require.Error(t, err)
}
