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

// Package engine is the top-level facade: it owns the interner, the
// triple index, and the compiled program a sequence of transactions
// runs against, and exposes them as one long-lived value an embedder
// constructs once and drives for the life of a process (SPEC_FULL.md
// §1's "top-level engine facade... over a core/-rooted package tree").
package engine

import (
	"github.com/evecore/dataflow/config"
	"github.com/evecore/dataflow/core/block"
	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/funcs"
	"github.com/evecore/dataflow/core/index"
	"github.com/evecore/dataflow/core/intern"
	"github.com/evecore/dataflow/core/txn"
)

// Engine bundles the pieces of evaluation state that live for the
// process's lifetime: the interner and store every block reads and
// writes, the registered function defs constraints resolve by name,
// the live program, and the transaction loop's EvalContext. Concurrent
// transactions against one Engine are a contract violation, not a
// locked invariant (spec §5 "Shared resources... a contract, not
// enforced by locks") — callers serialize their own calls.
type Engine struct {
	Interner *intern.Interner
	Index    *index.TripleIndex
	Funcs    *funcs.Registry
	Program  *block.Program
	Eval     *txn.EvalContext
}

// New builds an Engine from cfg: a fresh interner and triple index, a
// function registry bootstrapped per cfg.RegisterBuiltins, an empty
// program, and an EvalContext wired with cfg's limits and logger.
func New(cfg config.Config) (*Engine, error) {
	fr, err := cfg.FuncRegistry()
	if err != nil {
		return nil, err
	}

	in := intern.NewInterner()
	idx := index.NewTripleIndex()
	prog := block.NewProgram()

	ctx := txn.NewEvalContext(in, idx, prog, cfg.EvalConfig())
	ctx.Logger = cfg.Logger()

	return &Engine{
		Interner: in,
		Index:    idx,
		Funcs:    fr,
		Program:  prog,
		Eval:     ctx,
	}, nil
}

// RunTransaction interns raws and runs them to a settled fixpoint
// against every block currently in the program.
func (e *Engine) RunTransaction(raws []change.RawChange) (map[int][]change.Change, error) {
	return e.Eval.RunTransaction(raws)
}

// AddBlock registers b and seeds its initial contribution against the
// current store, returning the block ID assigned.
func (e *Engine) AddBlock(b *block.Block) (int, map[int][]change.Change, error) {
	return e.Eval.AddBlock(b)
}

// RemoveBlock retracts id's contributions and drops it from the
// program.
func (e *Engine) RemoveBlock(id int) (map[int][]change.Change, error) {
	return e.Eval.RemoveBlock(id)
}
