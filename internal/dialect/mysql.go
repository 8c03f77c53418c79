package dialect

import (
	"fmt"
	"strings"

	"github.com/roach88/twinsync/internal/change"
)

// markerVar is the session variable read by MySQL capture triggers.
const markerVar = "@twinsync_query_timestamp"

// MySQL is the dialect for github.com/go-sql-driver/mysql.
//
// Row images are stored as LONGTEXT rather than JSON so the server keeps
// the trigger's key order.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) TablesQuery() string {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name"
}

func (MySQL) ColumnsQuery() string {
	return "SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position"
}

func (MySQL) TriggersQuery() string {
	return "SELECT trigger_name FROM information_schema.triggers WHERE trigger_schema = DATABASE() ORDER BY trigger_name"
}

func (MySQL) NeedsMarkerTable() bool { return false }

// TransactionalDDL is false: MySQL commits implicitly around DDL.
func (MySQL) TransactionalDDL() bool { return false }

func (MySQL) BookkeepingDDL(role Role) []string {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE %s (
    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    table_name VARCHAR(255) NOT NULL,
    query_type VARCHAR(10) NOT NULL,
    new_record LONGTEXT NOT NULL,
    old_record LONGTEXT NULL,
    query_timestamp TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
)`, change.QuoteIdent(ChangeLogTable)),
	}

	if role == RoleEdge {
		return append(stmts, fmt.Sprintf(`CREATE TABLE %s (
    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
    local_last_id BIGINT NOT NULL DEFAULT 0,
    remote_last_id BIGINT NOT NULL DEFAULT 0,
    synced_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
)`, change.QuoteIdent(WatermarkTable)))
	}

	return append(stmts,
		fmt.Sprintf(`CREATE TABLE %s (
    id INT NOT NULL PRIMARY KEY,
    sync_status TINYINT(1) NOT NULL DEFAULT 0
)`, change.QuoteIdent(LockTable)),
		fmt.Sprintf("INSERT INTO %s (id, sync_status) VALUES (1, 0)", change.QuoteIdent(LockTable)),
	)
}

func (MySQL) TriggerDDL(kind TriggerKind, table string, columns []string) string {
	event := "INSERT"
	queryType := "'INSERT'"
	oldRecord := "NULL"
	if kind == TriggerUpdate {
		event = "UPDATE"
		queryType = "'UPDATE'"
		oldRecord = mysqlRowImage("OLD", columns)
	}

	return fmt.Sprintf(`CREATE TRIGGER %s AFTER %s ON %s
FOR EACH ROW
INSERT INTO %s (table_name, query_type, new_record, old_record, query_timestamp)
VALUES (%s, %s, %s, %s,
    IF(%s IS NULL, CURRENT_TIMESTAMP(3), %s))`,
		change.QuoteIdent(TriggerName(kind, table)), event, change.QuoteIdent(table),
		change.QuoteIdent(ChangeLogTable),
		mysqlLiteral(table), queryType, mysqlRowImage("NEW", columns), oldRecord,
		markerVar, markerVar)
}

func (MySQL) SetMarker(ts string) (string, []any) {
	return "SET " + markerVar + " = ?", []any{ts}
}

func (MySQL) ClearMarker() string {
	return "SET " + markerVar + " = NULL"
}

func mysqlRowImage(ref string, columns []string) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, fmt.Sprintf("%s, CAST(%s.%s AS CHAR)", mysqlLiteral(c), ref, change.QuoteIdent(c)))
	}
	return "JSON_OBJECT(" + strings.Join(parts, ", ") + ")"
}

// mysqlLiteral escapes for the default sql_mode, where backslash escapes.
func mysqlLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
