package block

import (
	"testing"

	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/constraint"
	"github.com/evecore/dataflow/core/intern"
	"github.com/evecore/dataflow/core/join"
	"github.com/evecore/dataflow/core/output"
	"github.com/stretchr/testify/require"
)

func TestBlockNodeLookupAndFiltering(t *testing.T) {
	in := intern.NewInterner()
	val, err := in.Intern("bob")
	require.NoError(t, err)

	j := join.New([]constraint.Constraint{&constraint.Move{SourceIsStatic: true, SourceStatic: val, Dest: 0}}, 1)
	out := &output.Node{E: output.Stat(val), A: output.Stat(val), V: output.Reg(0), N: output.Stat(val), Kind: output.Insert}
	watch := &output.WatchNode{BlockID: 0, Handler: func(int, []change.Change) error { return nil }}

	b := New("r1", 1,
		JoinNodeAt(0, j),
		OutputAt(1, out, 0),
		WatchAt(2, watch, 1),
	)

	require.Equal(t, "r1", b.Name)
	require.Len(t, b.Nodes, 3)

	n, ok := b.NodeByID(1)
	require.True(t, ok)
	require.Equal(t, OutputKind, n.Kind)

	_, ok = b.NodeByID(99)
	require.False(t, ok)

	require.Len(t, b.JoinNodes(), 1)
	require.Len(t, b.OutputNodes(), 1)
	require.Len(t, b.WatchNodes(), 1)
	require.Equal(t, []NodeID{0}, b.OutputNodes()[0].Upstream)
	require.Equal(t, []NodeID{1}, b.WatchNodes()[0].Upstream)
}

func TestProgramAddBlockEmitsOneSignalPerJoinNode(t *testing.T) {
	in := intern.NewInterner()
	val, err := in.Intern("x")
	require.NoError(t, err)

	j1 := join.New([]constraint.Constraint{&constraint.Move{SourceIsStatic: true, SourceStatic: val, Dest: 0}}, 1)
	j2 := join.New([]constraint.Constraint{&constraint.Move{SourceIsStatic: true, SourceStatic: val, Dest: 0}}, 1)
	b := New("two-joins", 1, JoinNodeAt(0, j1), JoinNodeAt(1, j2))

	p := NewProgram()
	id, signals := p.AddBlock(b)
	require.Equal(t, 0, id)
	require.Len(t, signals, 2)
	for _, s := range signals {
		require.Equal(t, change.SignalBlockAdd, s.Signal)
		require.Equal(t, int64(1), s.Count)
		require.Equal(t, id, s.BlockID)
	}
	require.Same(t, b, p.Blocks[id])
}

func TestProgramRemoveBlockEmitsRemoveSignalsAndDeletesBlock(t *testing.T) {
	in := intern.NewInterner()
	val, err := in.Intern("x")
	require.NoError(t, err)

	j := join.New([]constraint.Constraint{&constraint.Move{SourceIsStatic: true, SourceStatic: val, Dest: 0}}, 1)
	b := New("one-join", 1, JoinNodeAt(0, j))

	p := NewProgram()
	id, _ := p.AddBlock(b)

	signals, ok := p.RemoveBlock(id)
	require.True(t, ok)
	require.Len(t, signals, 1)
	require.Equal(t, change.SignalBlockRemove, signals[0].Signal)
	require.Equal(t, int64(-1), signals[0].Count)

	_, stillThere := p.Blocks[id]
	require.False(t, stillThere)

	_, ok = p.RemoveBlock(id)
	require.False(t, ok)
}

// TestBlockWiringRunsEndToEnd exercises a minimal but complete join ->
// output wiring: a static Move join feeding an Insert output node,
// reflecting how core/txn will actually drive a Block (JoinKind nodes
// first, then downstream nodes consuming their prefixes).
func TestBlockWiringRunsEndToEnd(t *testing.T) {
	in := intern.NewInterner()
	bob, err := in.Intern("bob")
	require.NoError(t, err)
	age, err := in.Intern("age")
	require.NoError(t, err)
	thirty, err := in.Intern(30.0)
	require.NoError(t, err)

	j := join.New([]constraint.Constraint{&constraint.Move{SourceIsStatic: true, SourceStatic: thirty, Dest: 0}}, 1)
	outNode := &output.Node{BlockID: 0, E: output.Stat(bob), A: output.Stat(age), V: output.Reg(0), N: output.Stat(thirty), Kind: output.Insert}
	b := New("static-fact", 1, JoinNodeAt(0, j), OutputAt(1, outNode, 0))

	p := NewProgram()
	id, signals := p.AddBlock(b)
	require.Len(t, signals, 1)

	joinNode, _ := b.NodeByID(0)
	prefixes, err := joinNode.Join.Run(signals[0], 0, 0)
	require.NoError(t, err)
	require.Len(t, prefixes, 1)

	outputNode, _ := b.NodeByID(1)
	c, err := outputNode.Output.Emit(prefixes[0])
	require.NoError(t, err)
	require.Equal(t, bob, c.E)
	require.Equal(t, age, c.A)
	require.Equal(t, thirty, c.V)
	require.Equal(t, id, c.BlockID)
}
