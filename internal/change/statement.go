package change

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/roach88/twinsync/internal/syncerr"
)

// Statement is a parameterized replay statement.
type Statement struct {
	Table string
	Kind  Kind
	SQL   string
	Args  []any

	// Marker is the original capture time, set as the carry-through
	// timestamp immediately before SQL executes.
	Marker string
}

// QuoteIdent quotes a table or column name with backticks.
// Both MySQL and SQLite accept this form.
func QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Render builds the single replay statement for r.
//
// Inserts write every new value. Updates set every new value and require
// every old value to still hold, so an update whose target row moved on is a
// no-op. Values are bound with ? placeholders; names are quoted.
func Render(r Record) (Statement, error) {
	if r.Table == "" {
		return Statement{}, syncerr.NewQueryParse("", "change has no table name", nil)
	}
	if r.New.IsEmpty() {
		return Statement{}, syncerr.NewQueryParse(r.Table, "change has no new values", nil)
	}

	var (
		query string
		args  []any
	)
	switch r.Kind {
	case KindInsert:
		query, args = renderInsert(r)
	case KindUpdate:
		if r.Old.IsEmpty() {
			return Statement{}, syncerr.NewQueryParse(r.Table, "update has no prior values to match", nil)
		}
		query, args = renderUpdate(r)
	default:
		return Statement{}, syncerr.NewQueryParse(r.Table, fmt.Sprintf("unsupported change kind %d", r.Kind), nil)
	}

	if err := checkParses(query, r.Kind); err != nil {
		return Statement{}, syncerr.NewQueryParse(r.Table, "rendered statement is not valid SQL", err)
	}

	return Statement{
		Table:  r.Table,
		Kind:   r.Kind,
		SQL:    query,
		Args:   args,
		Marker: FormatTimestamp(r.Timestamp),
	}, nil
}

func renderInsert(r Record) (string, []any) {
	fields := r.New.fields
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		cols[i] = QuoteIdent(f.Column)
		marks[i] = "?"
		args[i] = bindValue(f)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdent(r.Table),
		strings.Join(cols, ", "),
		strings.Join(marks, ", "))
	return query, args
}

func renderUpdate(r Record) (string, []any) {
	args := make([]any, 0, r.New.Len()+r.Old.Len())

	sets := make([]string, 0, r.New.Len())
	for _, f := range r.New.fields {
		sets = append(sets, QuoteIdent(f.Column)+" = ?")
		args = append(args, bindValue(f))
	}

	preds := make([]string, 0, r.Old.Len())
	for _, f := range r.Old.fields {
		if f.Null {
			preds = append(preds, QuoteIdent(f.Column)+" IS NULL")
			continue
		}
		preds = append(preds, QuoteIdent(f.Column)+" = ?")
		args = append(args, f.Value)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		QuoteIdent(r.Table),
		strings.Join(sets, ", "),
		strings.Join(preds, " AND "))
	return query, args
}

func bindValue(f Field) any {
	if f.Null {
		return nil
	}
	return f.Value
}

// checkParses confirms the rendered text is one statement of the expected kind.
func checkParses(query string, kind Kind) error {
	parsed, err := sqlparser.Parse(query)
	if err != nil {
		return err
	}
	switch stmt := parsed.(type) {
	case *sqlparser.Insert:
		if kind != KindInsert {
			return fmt.Errorf("parsed as INSERT, want %s", kind)
		}
	case *sqlparser.Update:
		if kind != KindUpdate {
			return fmt.Errorf("parsed as UPDATE, want %s", kind)
		}
		if stmt.Where == nil {
			return fmt.Errorf("update without WHERE clause")
		}
	default:
		return fmt.Errorf("unexpected statement type %T", parsed)
	}
	return nil
}
