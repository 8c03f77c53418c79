// Package change models captured mutations and renders them as replay
// statements.
//
// A Record is one row of a side's change log: the table it touched, whether
// it was an INSERT or an UPDATE, the new row image, the prior row image for
// updates, and the capture timestamp. Render turns a Record into a single
// parameterized statement plus the timestamp marker that lets the target's
// capture trigger record the original event time.
package change

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/twinsync/internal/syncerr"
)

// TimestampLayout is the wire form of query_timestamp and the marker.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Kind discriminates the two change cases.
type Kind int

const (
	KindInsert Kind = iota + 1
	KindUpdate
)

// String returns the query_type text.
func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// ParseKind parses a query_type value.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INSERT":
		return KindInsert, nil
	case "UPDATE":
		return KindUpdate, nil
	default:
		return 0, syncerr.NewQueryParse("", fmt.Sprintf("unknown query type %q", s), nil)
	}
}

// Record is one captured mutation.
type Record struct {
	ID        int64
	Table     string
	Kind      Kind
	New       Values
	Old       Values // empty for inserts
	Timestamp time.Time
}

// NewInsert creates an insert record.
func NewInsert(table string, newValues Values, ts time.Time) Record {
	return Record{Table: table, Kind: KindInsert, New: newValues, Timestamp: ts}
}

// NewUpdate creates an update record.
func NewUpdate(table string, newValues, oldValues Values, ts time.Time) Record {
	return Record{Table: table, Kind: KindUpdate, New: newValues, Old: oldValues, Timestamp: ts}
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	c := r
	c.New = r.New.Clone()
	c.Old = r.Old.Clone()
	return c
}

// CompareOldRecordTo reports whether r and other are both updates with
// exactly equal pre-images. Two such updates are treated as concurrent edits
// of the same row.
func (r *Record) CompareOldRecordTo(other *Record) bool {
	if r.Kind != KindUpdate || other.Kind != KindUpdate {
		return false
	}
	return r.Old.Equal(other.Old)
}

// LogRow is the raw shape of a change-log row.
type LogRow struct {
	ID             int64
	TableName      string
	QueryType      string
	NewRecord      string
	OldRecord      sql.NullString
	QueryTimestamp string
}

// FromLog decodes a change-log row.
func FromLog(row LogRow) (Record, error) {
	kind, err := ParseKind(row.QueryType)
	if err != nil {
		return Record{}, withTable(err, row.TableName)
	}

	newValues, err := DecodeValues(row.NewRecord)
	if err != nil {
		return Record{}, syncerr.NewQueryParse(row.TableName, fmt.Sprintf("change %d: new_record", row.ID), err)
	}

	var oldValues Values
	if kind == KindUpdate && row.OldRecord.Valid {
		oldValues, err = DecodeValues(row.OldRecord.String)
		if err != nil {
			return Record{}, syncerr.NewQueryParse(row.TableName, fmt.Sprintf("change %d: old_record", row.ID), err)
		}
	}

	ts, err := ParseTimestamp(row.QueryTimestamp)
	if err != nil {
		return Record{}, syncerr.NewQueryParse(row.TableName, fmt.Sprintf("change %d: query_timestamp", row.ID), err)
	}

	return Record{
		ID:        row.ID,
		Table:     row.TableName,
		Kind:      kind,
		New:       newValues,
		Old:       oldValues,
		Timestamp: ts,
	}, nil
}

// ParseTimestamp accepts the wire layout with or without fractional seconds,
// and RFC 3339.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// FormatTimestamp renders t in the wire layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func withTable(err error, table string) error {
	if se, ok := err.(*syncerr.Error); ok && se.Table == "" {
		se.Table = table
	}
	return err
}
