// Package mapper pairs the tables and columns of the two sides.
//
// A Mapper is built once per sync session by introspecting both databases.
// Tables and columns pair by identical name unless an override renames or
// excludes them. A name with no counterpart maps to absent (the empty
// string), meaning changes touching it are not replayed.
package mapper

import (
	"context"
	"fmt"

	"github.com/roach88/twinsync/internal/syncerr"
)

// Introspector lists a side's user tables and their columns.
// *store.Store satisfies it.
type Introspector interface {
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]string, error)
}

// ColumnMapping pairs one column across the sides. An empty name is absent.
type ColumnMapping struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// Paired reports whether both sides have the column.
func (c ColumnMapping) Paired() bool {
	return c.Local != "" && c.Remote != ""
}

// TableMapping pairs one table across the sides. An empty name is absent.
type TableMapping struct {
	Local   string          `json:"local"`
	Remote  string          `json:"remote"`
	Columns []ColumnMapping `json:"columns,omitempty"`

	byLocal  map[string]int
	byRemote map[string]int
}

// Paired reports whether both sides have the table.
func (t *TableMapping) Paired() bool {
	return t.Local != "" && t.Remote != ""
}

// ByLocalColumn looks up a column by its local name.
func (t *TableMapping) ByLocalColumn(name string) (ColumnMapping, bool) {
	i, ok := t.byLocal[name]
	if !ok {
		return ColumnMapping{}, false
	}
	return t.Columns[i], true
}

// ByRemoteColumn looks up a column by its remote name.
func (t *TableMapping) ByRemoteColumn(name string) (ColumnMapping, bool) {
	i, ok := t.byRemote[name]
	if !ok {
		return ColumnMapping{}, false
	}
	return t.Columns[i], true
}

func (t *TableMapping) addColumn(c ColumnMapping) {
	if t.byLocal == nil {
		t.byLocal = make(map[string]int)
		t.byRemote = make(map[string]int)
	}
	t.Columns = append(t.Columns, c)
	i := len(t.Columns) - 1
	if c.Local != "" {
		t.byLocal[c.Local] = i
	}
	if c.Remote != "" {
		t.byRemote[c.Remote] = i
	}
}

// Mapper resolves names between the sides.
type Mapper struct {
	tables   []*TableMapping
	byLocal  map[string]*TableMapping
	byRemote map[string]*TableMapping
}

// ByLocalTable looks up a table by its local name.
func (m *Mapper) ByLocalTable(name string) (*TableMapping, bool) {
	t, ok := m.byLocal[name]
	return t, ok
}

// ByRemoteTable looks up a table by its remote name.
func (m *Mapper) ByRemoteTable(name string) (*TableMapping, bool) {
	t, ok := m.byRemote[name]
	return t, ok
}

// Tables returns every mapping: local tables in introspection order, then
// remote-only tables.
func (m *Mapper) Tables() []*TableMapping {
	out := make([]*TableMapping, len(m.tables))
	copy(out, m.tables)
	return out
}

// Build introspects both sides and pairs their tables and columns.
// A nil overrides pairs by name only.
func Build(ctx context.Context, local, remote Introspector, overrides *Overrides) (*Mapper, error) {
	if overrides == nil {
		overrides = &Overrides{}
	}

	localTables, err := local.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("build mapper: local tables: %w", err)
	}
	remoteTables, err := remote.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("build mapper: remote tables: %w", err)
	}

	if err := overrides.check(localTables, remoteTables); err != nil {
		return nil, err
	}

	m := &Mapper{
		byLocal:  make(map[string]*TableMapping),
		byRemote: make(map[string]*TableMapping),
	}

	remoteSet := toSet(remoteTables)
	claimed := make(map[string]bool)
	for _, lt := range localTables {
		tm := &TableMapping{Local: lt}
		if !overrides.excludesTable(lt) {
			if rt, ok := overrides.remoteTable(lt); ok {
				tm.Remote = rt
			} else if remoteSet[lt] && !overrides.renamesTo(lt) {
				tm.Remote = lt
			}
		}
		if tm.Remote != "" {
			claimed[tm.Remote] = true
		}
		m.add(tm)
	}

	for _, rt := range remoteTables {
		if !claimed[rt] {
			m.add(&TableMapping{Remote: rt})
		}
	}

	for _, tm := range m.tables {
		if !tm.Paired() {
			continue
		}
		if err := pairColumns(ctx, tm, local, remote, overrides.forTable(tm.Local)); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Mapper) add(tm *TableMapping) {
	m.tables = append(m.tables, tm)
	if tm.Local != "" {
		m.byLocal[tm.Local] = tm
	}
	if tm.Remote != "" {
		m.byRemote[tm.Remote] = tm
	}
}

func pairColumns(ctx context.Context, tm *TableMapping, local, remote Introspector, ov *TableOverride) error {
	localCols, err := local.Columns(ctx, tm.Local)
	if err != nil {
		return fmt.Errorf("build mapper: local columns of %s: %w", tm.Local, err)
	}
	remoteCols, err := remote.Columns(ctx, tm.Remote)
	if err != nil {
		return fmt.Errorf("build mapper: remote columns of %s: %w", tm.Remote, err)
	}

	if ov != nil {
		if err := ov.checkColumns(localCols, remoteCols); err != nil {
			return err
		}
	}

	remoteSet := toSet(remoteCols)
	renamedTo := make(map[string]bool)
	if ov != nil {
		for _, rc := range ov.Columns {
			renamedTo[rc] = true
		}
	}

	claimed := make(map[string]bool)
	for _, lc := range localCols {
		cm := ColumnMapping{Local: lc}
		switch {
		case ov != nil && ov.excludesColumn(lc):
		case ov != nil && ov.Columns[lc] != "":
			cm.Remote = ov.Columns[lc]
		case remoteSet[lc] && !renamedTo[lc]:
			cm.Remote = lc
		}
		if cm.Remote != "" {
			claimed[cm.Remote] = true
		}
		tm.addColumn(cm)
	}
	for _, rc := range remoteCols {
		if !claimed[rc] {
			tm.addColumn(ColumnMapping{Remote: rc})
		}
	}
	return nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func invalidOverride(format string, args ...any) error {
	return syncerr.NewInvalid(syncerr.ReasonBadOverride, fmt.Sprintf(format, args...))
}
