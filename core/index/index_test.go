package index

import (
	"testing"

	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/intern"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func ids(in *intern.Interner, vals ...any) []intern.ID {
	out := make([]intern.ID, len(vals))
	for i, v := range vals {
		id, err := in.Intern(v)
		if err != nil {
			panic(err)
		}
		out[i] = id
	}
	return out
}

func TestCheckAbsentRetractedPresent(t *testing.T) {
	in := intern.NewInterner()
	idx := NewTripleIndex()

	tuple := ids(in, "bob", "age", "42", "rule1")
	e, a, v, n := tuple[0], tuple[1], tuple[2], tuple[3]

	require.Equal(t, Absent, idx.Check(e, a, v, n, 0, 0))

	idx.Insert(change.Change{E: e, A: a, V: v, N: n, Transaction: 0, Round: 0, Count: 1})
	require.Equal(t, Present, idx.Check(e, a, v, n, 0, 0))

	idx.Insert(change.Change{E: e, A: a, V: v, N: n, Transaction: 0, Round: 1, Count: -1})
	require.Equal(t, Retracted, idx.Check(e, a, v, n, 0, 1))
	// still present as of round 0
	require.Equal(t, Present, idx.Check(e, a, v, n, 0, 0))
}

func TestGetDiffsSignsCrossings(t *testing.T) {
	in := intern.NewInterner()
	idx := NewTripleIndex()
	tuple := ids(in, "bob", "age", "42", "rule1")
	e, a, v, n := tuple[0], tuple[1], tuple[2], tuple[3]

	idx.Insert(change.Change{E: e, A: a, V: v, N: n, Transaction: 0, Round: 0, Count: 1})
	idx.Insert(change.Change{E: e, A: a, V: v, N: n, Transaction: 0, Round: 2, Count: -1})
	idx.Insert(change.Change{E: e, A: a, V: v, N: n, Transaction: 0, Round: 3, Count: 1})

	require.Equal(t, []int{0, -2, 3}, idx.GetDiffs(e, a, v, n))
}

func TestGetDiffsAcrossMultipleEntitiesAreIndependent(t *testing.T) {
	in := intern.NewInterner()
	idx := NewTripleIndex()
	age := ids(in, "age")[0]
	rule1 := ids(in, "rule1")[0]
	bob := ids(in, "bob")[0]
	alice := ids(in, "alice")[0]
	v42 := ids(in, "42")[0]
	v43 := ids(in, "43")[0]

	idx.Insert(change.Change{E: bob, A: age, V: v42, N: rule1, Transaction: 0, Round: 0, Count: 1})
	idx.Insert(change.Change{E: bob, A: age, V: v42, N: rule1, Transaction: 0, Round: 1, Count: -1})
	idx.Insert(change.Change{E: alice, A: age, V: v43, N: rule1, Transaction: 0, Round: 0, Count: 2})

	got := [][]int{idx.GetDiffs(bob, age, v42, rule1), idx.GetDiffs(alice, age, v43, rule1)}
	want := [][]int{{0, -1}, {0}}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("GetDiffs mismatch (-want +got):\n%s", diff)
	}
}

func TestProposeCheapestField(t *testing.T) {
	in := intern.NewInterner()
	idx := NewTripleIndex()
	parentA := ids(in, "parent")[0]

	// parent(bob,charlie), parent(alice,charlie), parent(charlie,dan)
	rows := [][2]string{{"bob", "charlie"}, {"alice", "charlie"}, {"charlie", "dan"}}
	for _, r := range rows {
		tup := ids(in, r[0], r[1], "fact")
		idx.Insert(change.Change{E: tup[0], A: parentA, V: tup[1], N: tup[2], Count: 1})
	}

	// propose with only E unbound, A bound, V IGNORE, N IGNORE -> not
	// useful here; instead propose with V=charlie bound, everything else
	// unbound except A bound: enumerate E.
	charlie := ids(in, "charlie")[0]
	p := Pattern{E: Unb(), A: Bnd(parentA), V: Bnd(charlie), N: Ign()}
	prop := idx.Propose(p, 0, 0)
	require.False(t, prop.Skip)
	require.Equal(t, 0, prop.FieldIndex)
	require.Equal(t, 2, prop.Cardinality)

	got := idx.ResolveProposal(prop, 0, 0)
	require.Len(t, got, 2)
}

func TestProposeSkipsWhenNothingUnbound(t *testing.T) {
	idx := NewTripleIndex()
	p := Pattern{E: Ign(), A: Ign(), V: Ign(), N: Ign()}
	prop := idx.Propose(p, 0, 0)
	require.True(t, prop.Skip)
}

func TestDistinctIndexTransitions(t *testing.T) {
	d := NewDistinctIndex()
	key := DistinctKey("x")

	d.Add(key, 0, 1)
	d.Add(key, 0, 1) // duplicate derivation in the same round: no amplification
	trans := d.Settle(key)
	require.Equal(t, []Transition{{Key: key, Round: 0, Count: 1}}, trans)
	require.True(t, d.Present(key))

	d.Add(key, 1, -2) // both supports retracted
	trans = d.Settle(key)
	require.Equal(t, []Transition{{Key: key, Round: 0, Count: -1}}, trans)
	require.False(t, d.Present(key))
}

func TestDistinctIndexNoOutputWhenStillPositive(t *testing.T) {
	d := NewDistinctIndex()
	key := DistinctKey("y")

	d.Add(key, 0, 2) // two supports appear in the same round
	trans := d.Settle(key)
	require.Equal(t, []Transition{{Key: key, Round: 0, Count: 1}}, trans)

	d.Add(key, 1, -1) // one support retracted; still net-positive
	trans = d.Settle(key)
	require.Empty(t, trans)
	require.True(t, d.Present(key))
}
