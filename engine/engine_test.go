// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package engine

import (
	"testing"

	"github.com/evecore/dataflow/config"
	"github.com/evecore/dataflow/core/block"
	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/constraint"
	"github.com/evecore/dataflow/core/index"
	"github.com/evecore/dataflow/core/intern"
	"github.com/evecore/dataflow/core/join"
	"github.com/evecore/dataflow/core/output"
	"github.com/stretchr/testify/require"
)

func staticMove(dest change.Register, id intern.ID) *constraint.Move {
	return &constraint.Move{SourceIsStatic: true, SourceStatic: id, Dest: dest}
}

func factJoin(e, a, v, n intern.ID) *join.JoinNode {
	return join.New([]constraint.Constraint{
		staticMove(0, e), staticMove(1, a), staticMove(2, v), staticMove(3, n),
	}, 4)
}

func TestNewBootstrapsBuiltins(t *testing.T) {
	e, err := New(config.Default())
	require.NoError(t, err)

	_, ok := e.Funcs.Lookup("+")
	require.True(t, ok)
}

func TestNewSkipsBuiltinsWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.RegisterBuiltins = false

	e, err := New(cfg)
	require.NoError(t, err)

	_, ok := e.Funcs.Lookup("+")
	require.False(t, ok)
}

func TestEngineAddBlockPersistsCommit(t *testing.T) {
	e, err := New(config.Default())
	require.NoError(t, err)

	bob, err := e.Interner.Intern("bob")
	require.NoError(t, err)
	age, err := e.Interner.Intern("age")
	require.NoError(t, err)
	alice, err := e.Interner.Intern("alice")
	require.NoError(t, err)
	fact, err := e.Interner.Intern("fact")
	require.NoError(t, err)

	j := factJoin(bob, age, alice, fact)
	out := &output.Node{
		BlockID: 0,
		E:       output.Reg(0), A: output.Reg(1), V: output.Reg(2), N: output.Reg(3),
		Kind: output.CommitInsert,
	}
	b := block.New("fact", 4, block.JoinNodeAt(0, j), block.OutputAt(1, out, 0))

	id, exports, err := e.AddBlock(b)
	require.NoError(t, err)
	require.Equal(t, 0, id)
	require.Len(t, exports[id], 1)
	require.Equal(t, int64(1), exports[id][0].Count)

	require.Equal(t, index.Present, e.Index.Check(bob, age, alice, fact, 1, 0))

	_, err = e.RemoveBlock(id)
	require.NoError(t, err)
}

func TestEngineRunTransactionWithNoRaws(t *testing.T) {
	e, err := New(config.Default())
	require.NoError(t, err)

	exports, err := e.RunTransaction(nil)
	require.NoError(t, err)
	require.Empty(t, exports)
}
