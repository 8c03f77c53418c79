package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/twinsync/internal/change"
	"github.com/roach88/twinsync/internal/mapper"
	"github.com/roach88/twinsync/internal/store"
)

// Outcome classifies what happened to one scheduled change.
type Outcome string

const (
	// OutcomeApplied means the statement ran on the opposite side.
	// Affected may still be 0 when an update's precondition no longer held.
	OutcomeApplied Outcome = "applied"

	// OutcomeUnmappedTable means the table has no counterpart.
	OutcomeUnmappedTable Outcome = "dropped_unmapped_table"

	// OutcomeNoColumns means no new value survived column mapping.
	OutcomeNoColumns Outcome = "dropped_no_columns"
)

// ApplyResult describes one applied or dropped change.
type ApplyResult struct {
	ChangeID    int64         `json:"change_id"`
	Direction   SyncDirection `json:"direction"`
	Kind        string        `json:"kind"`
	Table       string        `json:"table"`
	TargetTable string        `json:"target_table,omitempty"`
	Outcome     Outcome       `json:"outcome"`
	Affected    int64         `json:"affected"`
}

// Applier replays changes onto the side opposite their origin.
type Applier struct {
	mapper *mapper.Mapper
	local  *store.Store
	remote *store.Store
	logger *slog.Logger
}

// NewApplier creates an applier. A nil logger uses slog.Default().
func NewApplier(m *mapper.Mapper, local, remote *store.Store, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{mapper: m, local: local, remote: remote, logger: logger}
}

// Translate rewrites a change into the opposite side's names.
//
// Columns without a counterpart are removed from both the new and old
// values. Returns the translated record and OutcomeApplied when something is
// left to replay, otherwise the reason the change is dropped.
func (a *Applier) Translate(dc *DirectedChange) (change.Record, Outcome) {
	rec := dc.Record

	var (
		tm *mapper.TableMapping
		ok bool
	)
	if dc.Direction == LocalToRemote {
		tm, ok = a.mapper.ByLocalTable(rec.Table)
	} else {
		tm, ok = a.mapper.ByRemoteTable(rec.Table)
	}
	if !ok || !tm.Paired() {
		return change.Record{}, OutcomeUnmappedTable
	}

	out := rec.Clone()
	if dc.Direction == LocalToRemote {
		out.Table = tm.Remote
	} else {
		out.Table = tm.Local
	}
	out.New = a.translateValues(tm, dc.Direction, rec.New)
	out.Old = a.translateValues(tm, dc.Direction, rec.Old)

	if out.New.IsEmpty() {
		return change.Record{}, OutcomeNoColumns
	}
	return out, OutcomeApplied
}

func (a *Applier) translateValues(tm *mapper.TableMapping, dir SyncDirection, in change.Values) change.Values {
	var out change.Values
	for _, f := range in.Fields() {
		var (
			cm     mapper.ColumnMapping
			ok     bool
			target string
		)
		if dir == LocalToRemote {
			cm, ok = tm.ByLocalColumn(f.Column)
			target = cm.Remote
		} else {
			cm, ok = tm.ByRemoteColumn(f.Column)
			target = cm.Local
		}
		if !ok || target == "" {
			continue
		}
		if f.Null {
			out.SetNull(target)
		} else {
			out.Set(target, f.Value)
		}
	}
	return out
}

// Apply translates dc and, unless it is dropped, replays it on the side
// opposite its origin.
func (a *Applier) Apply(ctx context.Context, dc *DirectedChange) (ApplyResult, error) {
	result := ApplyResult{
		ChangeID:  dc.Record.ID,
		Direction: dc.Direction,
		Kind:      dc.Record.Kind.String(),
		Table:     dc.Record.Table,
	}

	translated, outcome := a.Translate(dc)
	result.Outcome = outcome
	if outcome != OutcomeApplied {
		a.logger.Debug("change dropped",
			"change_id", dc.Record.ID,
			"direction", dc.Direction.String(),
			"table", dc.Record.Table,
			"reason", string(outcome))
		return result, nil
	}
	result.TargetTable = translated.Table

	target := a.remote
	if dc.Direction == RemoteToLocal {
		target = a.local
	}

	affected, err := target.ReplayRecord(ctx, translated)
	if err != nil {
		return result, fmt.Errorf("apply change %d from %s to %s: %w",
			dc.Record.ID, dc.Record.Table, translated.Table, err)
	}
	result.Affected = affected

	a.logger.Debug("change applied",
		"change_id", dc.Record.ID,
		"direction", dc.Direction.String(),
		"table", translated.Table,
		"kind", translated.Kind.String(),
		"affected", affected)

	return result, nil
}
