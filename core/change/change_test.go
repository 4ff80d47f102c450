package change

import (
	"testing"

	"github.com/evecore/dataflow/core/intern"
	"github.com/stretchr/testify/require"
)

func TestPrefixBindPreventsConflict(t *testing.T) {
	p := NewPrefix(2)
	require.True(t, p.Bind(0, intern.ID(5)))
	require.True(t, p.Bind(0, intern.ID(5)))
	require.False(t, p.Bind(0, intern.ID(6)))
	require.Equal(t, intern.ID(5), p.Get(0))
}

func TestPrefixCloneIsIndependent(t *testing.T) {
	p := NewPrefix(1)
	p.Bind(0, intern.ID(1))

	clone := p.Clone()
	clone.Bind(0, intern.ID(1))
	clone.Bindings[0] = intern.ID(9)

	require.Equal(t, intern.ID(1), p.Get(0))
	require.Equal(t, intern.ID(9), clone.Get(0))
}

func TestPrefixBoundReportsUnsetCorrectly(t *testing.T) {
	p := NewPrefix(1)
	require.False(t, p.Bound(0))
	p.Bind(0, intern.ID(3))
	require.True(t, p.Bound(0))
}
