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

// Package txn drives the fixpoint evaluation loop of spec.md §5-§6: it
// takes a Program and a store and runs transactions — batches of input
// changes or block add/remove signals — to a settled fixpoint, frame by
// frame, round by round.
package txn

import (
	"github.com/evecore/dataflow/core/block"
	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/index"
	"github.com/evecore/dataflow/core/intern"
	"github.com/evecore/dataflow/core/trace"
	"github.com/sirupsen/logrus"
)

// Saturated is the multiplicity a commit is promoted with into the next
// frame's round 0: large enough that no realistic derivation count could
// cross back through zero, since a commit's role at that point is "this
// fact now holds", not "this fact holds exactly N times" (spec §6
// "Triple output... multiplicity collapsed").
const Saturated int64 = 1 << 40

// Config bounds one transaction's evaluation (spec §5).
type Config struct {
	// MaxIterations caps the total number of derivation steps (changes
	// dispatched to the program) across every frame of a transaction.
	MaxIterations int
	// MaxFrames caps the number of commit frames a transaction may pass
	// through before it is considered non-terminating.
	MaxFrames int
}

// DefaultConfig returns the spec's default limits: 10,000 derivation
// steps, 10 commit frames.
func DefaultConfig() Config {
	return Config{MaxIterations: 10000, MaxFrames: 10}
}

// EvalContext is the long-lived evaluation state a sequence of
// transactions runs against: the interner and store a Program's blocks
// read and write, plus the ambient logging/tracing and the persistent
// export-collapse state that survives across transactions.
type EvalContext struct {
	Interner *intern.Interner
	Index    *index.TripleIndex
	Program  *block.Program
	Config   Config
	Logger   *logrus.Logger
	Tracer   *trace.Tracer

	exports   *exportCollapse
	nextTxnID int
}

// NewEvalContext wires an EvalContext over in/idx/p. A nil logger falls
// back to logrus.StandardLogger(); a nil tracer falls back to a Tracer
// that defers to opentracing.GlobalTracer() at call time.
func NewEvalContext(in *intern.Interner, idx *index.TripleIndex, p *block.Program, cfg Config) *EvalContext {
	return &EvalContext{
		Interner: in,
		Index:    idx,
		Program:  p,
		Config:   cfg,
		Logger:   logrus.StandardLogger(),
		Tracer:   trace.New(nil),
		exports:  newExportCollapse(),
	}
}

func (ctx *EvalContext) logger() *logrus.Logger {
	if ctx.Logger != nil {
		return ctx.Logger
	}
	return logrus.StandardLogger()
}

func (ctx *EvalContext) tracer() *trace.Tracer {
	if ctx.Tracer != nil {
		return ctx.Tracer
	}
	return trace.New(nil)
}

// exportKey identifies one running export total: a source block plus the
// (e,a,v) of the fact it's exporting, provenance (n) dropped since export
// visibility is a statement about the fact, not about which derivation
// produced it (spec §6 "Triple output").
type exportKey struct {
	BlockID int
	E, A, V intern.ID
}

// exportCollapse tracks, per exportKey, a persistent running total across
// every transaction the context ever runs, and turns each transaction's
// net contribution into at most one visible change per key: +1 on a
// 0→positive crossing, −1 on a positive→0 crossing, nothing otherwise
// (spec §6). Once a key's running total goes negative it is permanently
// latched and never emits again — a one-way suppression distinct from the
// ordinary 0↔positive toggling used elsewhere (distinct index, antijoin),
// called out by name in the spec because of that asymmetry.
type exportCollapse struct {
	running map[exportKey]int64
	latched map[exportKey]bool

	stagedDelta map[exportKey]int64
	stagedTmpl  map[exportKey]change.Change
}

func newExportCollapse() *exportCollapse {
	return &exportCollapse{
		running:     make(map[exportKey]int64),
		latched:     make(map[exportKey]bool),
		stagedDelta: make(map[exportKey]int64),
		stagedTmpl:  make(map[exportKey]change.Change),
	}
}

// stage accumulates one raw bind or commit emission into the current
// transaction's per-key buffer. Nothing is folded into the persistent
// running total until commitTxn — this is what lets a commit-then-retract
// within a single transaction net to no visible export change (spec §8
// testable property: same-transaction commit+retract cancellation).
func (ec *exportCollapse) stage(blockID int, c change.Change) {
	key := exportKey{BlockID: blockID, E: c.E, A: c.A, V: c.V}
	ec.stagedDelta[key] += c.Count
	ec.stagedTmpl[key] = c
}

// commitTxn folds every staged key's net delta into the persistent
// running total and returns the resulting visible changes, grouped by
// source block ID, clearing the stage for the next transaction.
func (ec *exportCollapse) commitTxn() map[int][]change.Change {
	out := make(map[int][]change.Change)
	for key, delta := range ec.stagedDelta {
		if ec.latched[key] {
			continue
		}
		before := ec.running[key]
		after := before + delta
		ec.running[key] = after
		if after < 0 {
			ec.latched[key] = true
		}

		tmpl := ec.stagedTmpl[key]
		switch {
		case before <= 0 && after > 0:
			out[key.BlockID] = append(out[key.BlockID], change.Change{
				E: key.E, A: key.A, V: key.V, N: tmpl.N, BlockID: key.BlockID, Round: tmpl.Round, Count: 1,
			})
		case before > 0 && after <= 0:
			out[key.BlockID] = append(out[key.BlockID], change.Change{
				E: key.E, A: key.A, V: key.V, N: tmpl.N, BlockID: key.BlockID, Round: tmpl.Round, Count: -1,
			})
		}
	}
	ec.stagedDelta = make(map[exportKey]int64)
	ec.stagedTmpl = make(map[exportKey]change.Change)
	return out
}
