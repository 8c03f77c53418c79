package engine

import (
	"sort"

	"github.com/roach88/twinsync/internal/change"
)

// Absorption records an update dropped in favor of later updates that
// shared its pre-image. Each of Rebased had its old values replaced with
// Absorbed's new values.
type Absorption struct {
	Absorbed *DirectedChange
	Rebased  []*DirectedChange
}

// Coalesce orders one cycle's changes and resolves overlapping updates.
//
// Changes are stable-sorted by capture timestamp, so ties keep their input
// order. Then, walking in order, an update i whose pre-image equals the
// pre-image of any later update k is absorbed: every such k has its old
// values replaced with i's new values, and i is not replayed. The result is
// the same as comparing each change against every later one; an index keyed
// by each pending update's canonical pre-image finds the matches directly.
//
// The input slice is not modified; the DirectedChanges it points to are.
func Coalesce(changes []*DirectedChange) ([]*DirectedChange, []Absorption) {
	ordered := make([]*DirectedChange, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Record.Timestamp.Before(ordered[j].Record.Timestamp)
	})

	// Pre-image key -> ascending positions of updates not yet processed.
	index := make(map[string][]int)
	for i, dc := range ordered {
		if dc.Record.Kind == change.KindUpdate {
			key := dc.Record.Old.CanonicalKey()
			index[key] = append(index[key], i)
		}
	}

	scheduled := make([]*DirectedChange, 0, len(ordered))
	var absorbed []Absorption

	for i, dc := range ordered {
		if dc.Record.Kind != change.KindUpdate {
			scheduled = append(scheduled, dc)
			continue
		}

		key := dc.Record.Old.CanonicalKey()
		successors := removePosition(index[key], i)
		delete(index, key)

		if len(successors) == 0 {
			scheduled = append(scheduled, dc)
			continue
		}

		abs := Absorption{Absorbed: dc}
		newKey := dc.Record.New.CanonicalKey()
		for _, k := range successors {
			later := ordered[k]
			later.Record.Old = dc.Record.New.Clone()
			index[newKey] = insertPosition(index[newKey], k)
			abs.Rebased = append(abs.Rebased, later)
		}
		absorbed = append(absorbed, abs)
	}

	return scheduled, absorbed
}

func removePosition(positions []int, p int) []int {
	out := make([]int, 0, len(positions))
	for _, q := range positions {
		if q != p {
			out = append(out, q)
		}
	}
	return out
}

func insertPosition(positions []int, p int) []int {
	i := sort.SearchInts(positions, p)
	positions = append(positions, 0)
	copy(positions[i+1:], positions[i:])
	positions[i] = p
	return positions
}
