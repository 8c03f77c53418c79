package engine

import (
	"math/rand"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/twinsync/internal/change"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func update(id int64, dir SyncDirection, ts time.Time, oldV, newV change.Values) *DirectedChange {
	rec := change.NewUpdate("users", newV, oldV, ts)
	rec.ID = id
	return &DirectedChange{Record: rec, Direction: dir}
}

func insert(id int64, dir SyncDirection, ts time.Time, newV change.Values) *DirectedChange {
	rec := change.NewInsert("users", newV, ts)
	rec.ID = id
	return &DirectedChange{Record: rec, Direction: dir}
}

func ids(changes []*DirectedChange) []int64 {
	out := make([]int64, len(changes))
	for i, dc := range changes {
		out[i] = dc.Record.ID
	}
	return out
}

func TestCoalesce_LaterUpdateAbsorbsEarlier(t *testing.T) {
	a := update(1, LocalToRemote, at(1), change.Of("k", "1"), change.Of("k", "2"))
	b := update(2, RemoteToLocal, at(2), change.Of("k", "1"), change.Of("k", "3"))

	scheduled, absorbed := Coalesce([]*DirectedChange{b, a})

	require.Len(t, scheduled, 1)
	assert.Same(t, b, scheduled[0])
	assert.True(t, b.Record.Old.Equal(change.Of("k", "2")), "precondition rebased onto the absorbed change's outcome")

	require.Len(t, absorbed, 1)
	assert.Same(t, a, absorbed[0].Absorbed)
	assert.Equal(t, []*DirectedChange{b}, absorbed[0].Rebased)
}

func TestCoalesce_StableOrderOnTies(t *testing.T) {
	first := insert(10, LocalToRemote, at(5), change.Of("id", "1"))
	second := insert(3, RemoteToLocal, at(5), change.Of("id", "2"))
	earlier := insert(7, RemoteToLocal, at(1), change.Of("id", "3"))

	scheduled, absorbed := Coalesce([]*DirectedChange{first, second, earlier})

	assert.Empty(t, absorbed)
	assert.Equal(t, []int64{7, 10, 3}, ids(scheduled))
}

func TestCoalesce_InsertsNeverMatch(t *testing.T) {
	a := insert(1, LocalToRemote, at(1), change.Of("k", "1"))
	b := insert(2, RemoteToLocal, at(2), change.Of("k", "1"))

	scheduled, absorbed := Coalesce([]*DirectedChange{a, b})
	assert.Empty(t, absorbed)
	assert.Len(t, scheduled, 2)
}

func TestCoalesce_ChainOfUpdates(t *testing.T) {
	// a and b race from k=1; c then races with the rebased b.
	a := update(1, LocalToRemote, at(1), change.Of("k", "1"), change.Of("k", "2"))
	b := update(2, RemoteToLocal, at(2), change.Of("k", "1"), change.Of("k", "3"))
	c := update(3, LocalToRemote, at(3), change.Of("k", "2"), change.Of("k", "4"))

	scheduled, absorbed := Coalesce([]*DirectedChange{a, b, c})

	assert.Equal(t, []int64{3}, ids(scheduled))
	assert.True(t, c.Record.Old.Equal(change.Of("k", "3")))
	require.Len(t, absorbed, 2)
	assert.Equal(t, []int64{2}, ids(absorbed[0].Rebased))
	assert.Equal(t, []int64{3}, ids(absorbed[1].Rebased))
}

func TestCoalesce_AllMatchingSuccessorsRebased(t *testing.T) {
	a := update(1, LocalToRemote, at(1), change.Of("k", "1"), change.Of("k", "2"))
	b := update(2, RemoteToLocal, at(2), change.Of("k", "1"), change.Of("k", "3"))
	c := update(3, RemoteToLocal, at(3), change.Of("k", "1"), change.Of("k", "4"))

	scheduled, _ := Coalesce([]*DirectedChange{a, b, c})

	// a rebases both b and c onto k=2; b then rebases c onto k=3.
	assert.Equal(t, []int64{3}, ids(scheduled))
	assert.True(t, c.Record.Old.Equal(change.Of("k", "3")))
}

func TestCoalesce_NoOpUpdateKeepsSameKey(t *testing.T) {
	a := update(1, LocalToRemote, at(1), change.Of("k", "1"), change.Of("k", "1"))
	b := update(2, RemoteToLocal, at(2), change.Of("k", "1"), change.Of("k", "5"))

	scheduled, _ := Coalesce([]*DirectedChange{a, b})
	assert.Equal(t, []int64{2}, ids(scheduled))
	assert.True(t, b.Record.Old.Equal(change.Of("k", "1")))
}

func TestCoalesce_Empty(t *testing.T) {
	scheduled, absorbed := Coalesce(nil)
	assert.Empty(t, scheduled)
	assert.Empty(t, absorbed)
}

// naiveCoalesce compares every change with every later one.
func naiveCoalesce(changes []*DirectedChange) []*DirectedChange {
	ordered := make([]*DirectedChange, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Record.Timestamp.Before(ordered[j].Record.Timestamp)
	})

	dropped := make([]bool, len(ordered))
	for i := range ordered {
		for k := i + 1; k < len(ordered); k++ {
			if ordered[i].Record.CompareOldRecordTo(&ordered[k].Record) {
				dropped[i] = true
				ordered[k].Record.Old = ordered[i].Record.New.Clone()
			}
		}
	}

	var out []*DirectedChange
	for i, dc := range ordered {
		if !dropped[i] {
			out = append(out, dc)
		}
	}
	return out
}

func randomChanges(r *rand.Rand, n int) []*DirectedChange {
	val := func() change.Values {
		v := change.Of("k", strconv.Itoa(r.Intn(3)))
		if r.Intn(4) == 0 {
			v.SetNull("n")
		} else {
			v.Set("n", strconv.Itoa(r.Intn(2)))
		}
		return v
	}
	out := make([]*DirectedChange, n)
	for i := range out {
		dir := LocalToRemote
		if r.Intn(2) == 0 {
			dir = RemoteToLocal
		}
		ts := at(r.Intn(n / 2))
		if r.Intn(5) == 0 {
			out[i] = insert(int64(i+1), dir, ts, val())
		} else {
			out[i] = update(int64(i+1), dir, ts, val(), val())
		}
	}
	return out
}

func cloneChanges(in []*DirectedChange) []*DirectedChange {
	out := make([]*DirectedChange, len(in))
	for i, dc := range in {
		c := *dc
		c.Record = dc.Record.Clone()
		out[i] = &c
	}
	return out
}

func TestCoalesce_MatchesPairwiseScan(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		r := rand.New(rand.NewSource(seed))
		input := randomChanges(r, 40)

		indexed, _ := Coalesce(cloneChanges(input))
		naive := naiveCoalesce(cloneChanges(input))

		require.Equal(t, ids(naive), ids(indexed), "seed %d", seed)
		for i := range naive {
			assert.True(t, naive[i].Record.Old.Equal(indexed[i].Record.Old),
				"seed %d change %d: %s vs %s", seed, naive[i].Record.ID, naive[i].Record.Old, indexed[i].Record.Old)
		}
	}
}
