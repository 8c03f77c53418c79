// Package dialect holds the per-database SQL for introspection, bookkeeping
// tables, capture triggers and the carry-through timestamp marker.
package dialect

import (
	"fmt"
	"strings"

	"github.com/roach88/twinsync/internal/syncerr"
)

// Bookkeeping table names. None of these is ever mapped or replayed.
const (
	ChangeLogTable = "twinsync_change_log"
	WatermarkTable = "twinsync_watermark"
	LockTable      = "twinsync_lock"
	MarkerTable    = "twinsync_marker"
)

// IsBookkeeping reports whether table belongs to the sync engine.
func IsBookkeeping(table string) bool {
	switch table {
	case ChangeLogTable, WatermarkTable, LockTable, MarkerTable:
		return true
	}
	return false
}

// Role distinguishes the two sides.
type Role string

const (
	RoleEdge Role = "edge"
	RoleHub  Role = "hub"
)

// ParseRole parses "edge"/"local" or "hub"/"remote".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "edge", "local":
		return RoleEdge, nil
	case "hub", "remote":
		return RoleHub, nil
	}
	return "", syncerr.NewInvalid(syncerr.ReasonMissingArgument, fmt.Sprintf("unknown side %q: must be edge or hub", s))
}

// BookkeepingTables returns the tables a side of the given role must carry.
func BookkeepingTables(d Dialect, role Role) []string {
	tables := []string{ChangeLogTable}
	if d.NeedsMarkerTable() {
		tables = append(tables, MarkerTable)
	}
	if role == RoleEdge {
		tables = append(tables, WatermarkTable)
	} else {
		tables = append(tables, LockTable)
	}
	return tables
}

// TriggerKind is the mutation a capture trigger fires on.
type TriggerKind string

const (
	TriggerInsert TriggerKind = "insert"
	TriggerUpdate TriggerKind = "update"
)

// TriggerName returns the name of the capture trigger for table.
func TriggerName(kind TriggerKind, table string) string {
	return fmt.Sprintf("trigger_%s_%s", kind, table)
}

// Dialect generates the SQL that differs between database engines.
type Dialect interface {
	// Name returns the database/sql driver name.
	Name() string

	// TablesQuery lists base tables, one name per row.
	TablesQuery() string

	// ColumnsQuery lists the columns of the table bound to its single
	// placeholder, in declaration order.
	ColumnsQuery() string

	// TriggersQuery lists trigger names, one per row.
	TriggersQuery() string

	// BookkeepingDDL returns the statements creating the role's tables.
	BookkeepingDDL(role Role) []string

	// TriggerDDL returns the statement creating a capture trigger.
	TriggerDDL(kind TriggerKind, table string, columns []string) string

	// SetMarker returns the statement and args that set the carry-through
	// timestamp for the current connection.
	SetMarker(ts string) (string, []any)

	// ClearMarker returns the statement that unsets the marker.
	ClearMarker() string

	// NeedsMarkerTable reports whether the marker is stored in MarkerTable.
	NeedsMarkerTable() bool

	// TransactionalDDL reports whether CREATE TABLE and CREATE TRIGGER
	// roll back with their transaction.
	TransactionalDDL() bool
}

// ForDriver returns the dialect for a database/sql driver name.
func ForDriver(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3":
		return SQLite{}, nil
	case "mysql":
		return MySQL{}, nil
	}
	return nil, syncerr.NewInvalid(syncerr.ReasonMissingArgument, fmt.Sprintf("unsupported driver %q", driver))
}
