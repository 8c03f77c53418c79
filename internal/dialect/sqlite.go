package dialect

import (
	"fmt"
	"strings"

	"github.com/roach88/twinsync/internal/change"
)

// sqliteNow matches the wire layout of change.TimestampLayout.
const sqliteNow = "strftime('%Y-%m-%d %H:%M:%f', 'now')"

// SQLite is the dialect for github.com/mattn/go-sqlite3.
//
// SQLite has no session variables, so the carry-through marker lives in a
// single-row table that is written and cleared inside the replay
// transaction.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite3" }

func (SQLite) TablesQuery() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
}

func (SQLite) ColumnsQuery() string {
	return "SELECT name FROM pragma_table_info(?) ORDER BY cid"
}

func (SQLite) TriggersQuery() string {
	return "SELECT name FROM sqlite_master WHERE type = 'trigger' ORDER BY name"
}

func (SQLite) NeedsMarkerTable() bool { return true }

func (SQLite) TransactionalDDL() bool { return true }

func (SQLite) BookkeepingDDL(role Role) []string {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    table_name TEXT NOT NULL,
    query_type TEXT NOT NULL CHECK (query_type IN ('INSERT', 'UPDATE')),
    new_record TEXT NOT NULL,
    old_record TEXT,
    query_timestamp TEXT NOT NULL DEFAULT (%s)
)`, change.QuoteIdent(ChangeLogTable), sqliteNow),
		fmt.Sprintf(`CREATE TABLE %s (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    query_timestamp TEXT NOT NULL
)`, change.QuoteIdent(MarkerTable)),
	}

	if role == RoleEdge {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE %s (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    local_last_id INTEGER NOT NULL DEFAULT 0,
    remote_last_id INTEGER NOT NULL DEFAULT 0,
    synced_at TEXT NOT NULL DEFAULT (%s)
)`, change.QuoteIdent(WatermarkTable), sqliteNow))
		return stmts
	}

	return append(stmts,
		fmt.Sprintf(`CREATE TABLE %s (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    sync_status INTEGER NOT NULL DEFAULT 0
)`, change.QuoteIdent(LockTable)),
		fmt.Sprintf("INSERT INTO %s (id, sync_status) VALUES (1, 0)", change.QuoteIdent(LockTable)),
	)
}

func (SQLite) TriggerDDL(kind TriggerKind, table string, columns []string) string {
	event := "INSERT"
	queryType := "'INSERT'"
	oldRecord := "NULL"
	if kind == TriggerUpdate {
		event = "UPDATE"
		queryType = "'UPDATE'"
		oldRecord = sqliteRowImage("OLD", columns)
	}

	return fmt.Sprintf(`CREATE TRIGGER %s AFTER %s ON %s
FOR EACH ROW
BEGIN
    INSERT INTO %s (table_name, query_type, new_record, old_record, query_timestamp)
    VALUES (%s, %s, %s, %s,
        COALESCE((SELECT query_timestamp FROM %s WHERE id = 1), %s));
END`,
		change.QuoteIdent(TriggerName(kind, table)), event, change.QuoteIdent(table),
		change.QuoteIdent(ChangeLogTable),
		sqliteLiteral(table), queryType, sqliteRowImage("NEW", columns), oldRecord,
		change.QuoteIdent(MarkerTable), sqliteNow)
}

func (SQLite) SetMarker(ts string) (string, []any) {
	return fmt.Sprintf(
		"INSERT INTO %s (id, query_timestamp) VALUES (1, ?) ON CONFLICT (id) DO UPDATE SET query_timestamp = excluded.query_timestamp",
		change.QuoteIdent(MarkerTable)), []any{ts}
}

func (SQLite) ClearMarker() string {
	return fmt.Sprintf("DELETE FROM %s", change.QuoteIdent(MarkerTable))
}

// sqliteRowImage builds json_object('col', CAST(NEW.`col` AS TEXT), ...).
// NULL columns serialize as JSON null.
func sqliteRowImage(ref string, columns []string) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, fmt.Sprintf("%s, CAST(%s.%s AS TEXT)", sqliteLiteral(c), ref, change.QuoteIdent(c)))
	}
	return "json_object(" + strings.Join(parts, ", ") + ")"
}

func sqliteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
