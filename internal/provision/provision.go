// Package provision turns a plain database into a sync side and checks that
// a side is still fit to sync.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/twinsync/internal/change"
	"github.com/roach88/twinsync/internal/dialect"
	"github.com/roach88/twinsync/internal/store"
	"github.com/roach88/twinsync/internal/syncerr"
)

// Result lists what Convert created.
type Result struct {
	Side     string   `json:"side"`
	Tables   []string `json:"tables"`
	Triggers []string `json:"triggers"`
}

// Convert creates the bookkeeping tables for the store's role, plus insert
// and update capture triggers on every user table.
//
// A side that already has any bookkeeping table is rejected with an
// already-provisioned error and left untouched. Convert is all or nothing:
// where DDL is transactional it runs in one transaction, elsewhere every
// object created before a failure is dropped again.
func Convert(ctx context.Context, st *store.Store) (*Result, error) {
	if st == nil {
		return nil, syncerr.NewInvalid(syncerr.ReasonMissingArgument, "no database given to provision")
	}

	existing, err := st.AllTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("provision %s: %w", st.Name(), err)
	}
	var userTables []string
	for _, t := range existing {
		if dialect.IsBookkeeping(t) {
			return nil, syncerr.NewAlreadyProvisioned(st.Name(), t)
		}
		userTables = append(userTables, t)
	}

	d := st.Dialect()
	result := &Result{
		Side:     st.Name(),
		Tables:   dialect.BookkeepingTables(d, st.Role()),
		Triggers: []string{},
	}

	// Columns are read up front; a SQLite side has a single connection and
	// the transaction below holds it.
	var steps []step
	for _, ddl := range d.BookkeepingDDL(st.Role()) {
		steps = append(steps, step{ddl: ddl, what: "create bookkeeping"})
	}
	if len(steps) > 0 {
		steps[0].undo = bookkeepingDrops(d, st.Role())
	}
	for _, table := range userTables {
		cols, err := st.Columns(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("provision %s: %w", st.Name(), err)
		}
		for _, kind := range []dialect.TriggerKind{dialect.TriggerInsert, dialect.TriggerUpdate} {
			name := dialect.TriggerName(kind, table)
			steps = append(steps, step{
				ddl:  d.TriggerDDL(kind, table, cols),
				what: fmt.Sprintf("create %s trigger on %s", kind, table),
				undo: []string{"DROP TRIGGER IF EXISTS " + change.QuoteIdent(name)},
			})
			result.Triggers = append(result.Triggers, name)
		}
	}

	if d.TransactionalDDL() {
		err = runInTx(ctx, st, steps)
	} else {
		err = runWithUndo(ctx, st, steps)
	}
	if err != nil {
		return nil, fmt.Errorf("provision %s: %w", st.Name(), err)
	}

	slog.Info("side provisioned",
		"side", st.Name(),
		"tables", len(result.Tables),
		"triggers", len(result.Triggers))

	return result, nil
}

// step is one provisioning statement and the statements that remove what it
// created.
type step struct {
	ddl  string
	what string
	undo []string
}

// bookkeepingDrops returns the statements that remove the role's bookkeeping
// tables.
func bookkeepingDrops(d dialect.Dialect, role dialect.Role) []string {
	tables := dialect.BookkeepingTables(d, role)
	drops := make([]string, 0, len(tables))
	for i := len(tables) - 1; i >= 0; i-- {
		drops = append(drops, "DROP TABLE IF EXISTS "+change.QuoteIdent(tables[i]))
	}
	return drops
}

func runInTx(ctx context.Context, st *store.Store, steps []step) error {
	tx, err := st.DB().BeginTx(ctx, nil)
	if err != nil {
		return syncerr.Database(st.Name(), err, "begin provisioning")
	}
	defer tx.Rollback()

	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, s.ddl); err != nil {
			return syncerr.Database(st.Name(), err, "%s", s.what)
		}
	}
	if err := tx.Commit(); err != nil {
		return syncerr.Database(st.Name(), err, "commit provisioning")
	}
	return nil
}

// runWithUndo executes steps in order. On failure it runs the undo
// statements of every step that succeeded, newest first.
func runWithUndo(ctx context.Context, st *store.Store, steps []step) error {
	for i, s := range steps {
		if _, err := st.Exec(ctx, s.ddl); err != nil {
			undo(context.WithoutCancel(ctx), st, steps[:i])
			return fmt.Errorf("%s: %w", s.what, err)
		}
	}
	return nil
}

func undo(ctx context.Context, st *store.Store, done []step) {
	for i := len(done) - 1; i >= 0; i-- {
		for _, stmt := range done[i].undo {
			if _, err := st.Exec(ctx, stmt); err != nil {
				slog.Warn("undo provisioning step", "side", st.Name(), "statement", stmt, "error", err)
			}
		}
	}
}

// Validate checks that the side carries every bookkeeping table for its role
// and both capture triggers on every user table.
//
// Every problem is reported as a not-found error; the returned error joins
// them all. Returns nil for a healthy side.
func Validate(ctx context.Context, st *store.Store) error {
	if st == nil {
		return syncerr.NewInvalid(syncerr.ReasonMissingArgument, "no database given to validate")
	}

	all, err := st.AllTables(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(all))
	for _, t := range all {
		present[t] = true
	}

	var problems []error
	for _, t := range dialect.BookkeepingTables(st.Dialect(), st.Role()) {
		if !present[t] {
			problems = append(problems, syncerr.NewNotFound(st.Name(), "table", t))
		}
	}

	triggers, err := st.Triggers(ctx)
	if err != nil {
		return err
	}
	haveTrigger := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		haveTrigger[t] = true
	}

	for _, table := range all {
		if dialect.IsBookkeeping(table) {
			continue
		}
		for _, kind := range []dialect.TriggerKind{dialect.TriggerInsert, dialect.TriggerUpdate} {
			name := dialect.TriggerName(kind, table)
			if !haveTrigger[name] {
				problems = append(problems, syncerr.NewNotFound(st.Name(), "trigger", name))
			}
		}
	}

	return errors.Join(problems...)
}

// Unlock clears a sync lock left set by a cycle that never finished.
func Unlock(ctx context.Context, hub *store.Store) error {
	if hub == nil {
		return syncerr.NewInvalid(syncerr.ReasonMissingArgument, "no hub database given")
	}
	held, err := hub.LockHeld(ctx)
	if err != nil {
		return err
	}
	if !held {
		slog.Info("sync lock already clear", "side", hub.Name())
		return nil
	}
	if err := hub.ReleaseLock(ctx); err != nil {
		return err
	}
	slog.Warn("sync lock cleared by operator", "side", hub.Name())
	return nil
}
