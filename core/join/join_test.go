package join

import (
	"testing"

	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/constraint"
	"github.com/evecore/dataflow/core/index"
	"github.com/evecore/dataflow/core/intern"
	"github.com/stretchr/testify/require"
)

func internAll(t *testing.T, in *intern.Interner, vals ...any) []intern.ID {
	t.Helper()
	out := make([]intern.ID, len(vals))
	for i, v := range vals {
		id, err := in.Intern(v)
		require.NoError(t, err)
		out[i] = id
	}
	return out
}

// parent(?a, ?b), parent(?b, ?c) -> grandparent join over two scans
// sharing register 1.
func TestJoinTwoScansShareRegister(t *testing.T) {
	in := intern.NewInterner()
	idx := index.NewTripleIndex()
	ids := internAll(t, in, "bob", "alice", "charlie", "parent", "fact")
	bob, alice, charlie, parentA, n := ids[0], ids[1], ids[2], ids[3], ids[4]

	// parent(bob, alice), parent(alice, charlie)
	idx.Insert(change.Change{E: bob, A: parentA, V: alice, N: n, Count: 1})
	idx.Insert(change.Change{E: alice, A: parentA, V: charlie, N: n, Count: 1})

	s1 := &constraint.Scan{E: constraint.Reg(0), A: constraint.Stat(parentA), V: constraint.Reg(1), N: constraint.IgnoreF(), Index: idx}
	s2 := &constraint.Scan{E: constraint.Reg(1), A: constraint.Stat(parentA), V: constraint.Reg(2), N: constraint.IgnoreF(), Index: idx}

	jn := New([]constraint.Constraint{s1, s2}, 3)
	require.False(t, jn.static)

	input := change.Change{E: bob, A: parentA, V: alice, N: n, Count: 1}
	out, err := jn.Run(input, 0, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, bob, out[0].Get(0))
	require.Equal(t, alice, out[0].Get(1))
	require.Equal(t, charlie, out[0].Get(2))
}

func TestJoinUnaffectedInputYieldsNothing(t *testing.T) {
	in := intern.NewInterner()
	idx := index.NewTripleIndex()
	ids := internAll(t, in, "bob", "age", "name")
	bob, age, name := ids[0], ids[1], ids[2]

	s1 := &constraint.Scan{E: constraint.Reg(0), A: constraint.Stat(age), V: constraint.Reg(1), N: constraint.IgnoreF(), Index: idx}
	jn := New([]constraint.Constraint{s1}, 2)

	out, err := jn.Run(change.Change{E: bob, A: name, V: bob, Count: 1}, 0, 0)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestJoinStaticMoveDormancy(t *testing.T) {
	in := intern.NewInterner()
	id, err := in.Intern("x")
	require.NoError(t, err)

	m := &constraint.Move{SourceIsStatic: true, SourceStatic: id, Dest: 0}
	jn := New([]constraint.Constraint{m}, 1)
	require.True(t, jn.static)

	add := change.Change{Signal: change.SignalBlockAdd, Count: 1}
	out, err := jn.Run(add, 0, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, jn.dormant)

	// a second BLOCK_ADD is a no-op while dormant.
	out, err = jn.Run(add, 0, 1)
	require.NoError(t, err)
	require.Empty(t, out)

	remove := change.Change{Signal: change.SignalBlockRemove, Count: -1}
	out, err = jn.Run(remove, 0, 2)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, int64(-1), out[0].Count)
	require.False(t, jn.dormant)
}

func TestJoinOutputRoundMatchesEvalRound(t *testing.T) {
	in := intern.NewInterner()
	idx := index.NewTripleIndex()
	ids := internAll(t, in, "bob", "alice", "age", "n")
	bob, alice, age, n := ids[0], ids[1], ids[2], ids[3]

	idx.Insert(change.Change{E: bob, A: age, V: alice, N: n, Transaction: 0, Round: 0, Count: 1})

	s1 := &constraint.Scan{E: constraint.Reg(0), A: constraint.Stat(age), V: constraint.Reg(1), N: constraint.Reg(2), Index: idx}
	jn := New([]constraint.Constraint{s1}, 3)

	// A crossing that already happened at or before the current round never
	// pushes the output round past the round being evaluated: the max in
	// computeOutput is a floor against stale history, not a way to jump
	// ahead of it.
	out, err := jn.Run(change.Change{E: bob, A: age, V: alice, N: n, Count: 1}, 0, 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, 5, out[0].Round)
}
