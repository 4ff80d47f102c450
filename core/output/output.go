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

// Package output implements the terminal dataflow nodes of spec.md §4.13
// and §4.14: Insert/Commit-Insert/Remove/Commit-Remove, and WatchNode.
package output

import (
	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/index"
	"github.com/evecore/dataflow/core/intern"
	"github.com/evecore/dataflow/core/txnerr"
)

// FieldKind classifies an output node's field.
type FieldKind int

const (
	Static FieldKind = iota
	RegisterField
	IgnoreField
)

// Field is one of a Node's four output fields.
type Field struct {
	Kind     FieldKind
	StaticID intern.ID
	Register change.Register
}

// Stat constructs a Static output field.
func Stat(id intern.ID) Field { return Field{Kind: Static, StaticID: id} }

// Reg constructs a Register output field.
func Reg(r change.Register) Field { return Field{Kind: RegisterField, Register: r} }

// Ignore constructs an Ignore field, used only by Remove-kind nodes to
// select retraction granularity.
func Ignore() Field { return Field{Kind: IgnoreField} }

func (f Field) resolve(p change.Prefix) intern.ID {
	switch f.Kind {
	case Static:
		return f.StaticID
	case IgnoreField:
		return intern.Ignore
	default:
		return p.Get(f.Register)
	}
}

// Kind distinguishes the four output node variants of spec §4.13.
type Kind int

const (
	Insert Kind = iota
	CommitInsert
	Remove
	CommitRemove
)

// IsCommit reports whether k promotes to persistent state at the next
// frame rather than living only for the surrounding transaction.
func (k Kind) IsCommit() bool { return k == CommitInsert || k == CommitRemove }

// IsRemove reports whether k retracts rather than asserts.
func (k Kind) IsRemove() bool { return k == Remove || k == CommitRemove }

// Granularity is the scope a Remove-kind node retracts at.
type Granularity int

const (
	// Triple retracts exactly one (e,a,v,n).
	Triple Granularity = iota
	// Vs retracts every triple sharing (e,a), regardless of v/n
	// (spec's RemoveVsChange).
	Vs
	// AVs retracts every triple sharing e, regardless of a/v/n
	// (spec's RemoveAVsChange).
	AVs
)

// Node is one output node: a block-local (e,a,v,n) field mapping plus a
// Kind. Remove-kind nodes derive their Granularity from which trailing
// fields are Ignore.
type Node struct {
	BlockID int
	E, A, V, N Field
	Kind    Kind
}

// Granularity reports n's retraction scope; only meaningful when
// n.Kind.IsRemove().
func (n *Node) Granularity() Granularity {
	if n.V.Kind == IgnoreField {
		if n.A.Kind == IgnoreField {
			return AVs
		}
		return Vs
	}
	return Triple
}

// Emit resolves p against n's fields and produces the Change it
// contributes. For Vs/AVs-granularity Remove nodes, V (and for AVs also
// A) carries intern.Ignore as a wildcard marker: the caller (core/txn's
// block dispatch, right after Emit) calls Expand against the live index
// to turn the wildcard into concrete per-triple retractions.
func (n *Node) Emit(p change.Prefix) (change.Change, error) {
	e, a, v, nn := n.E.resolve(p), n.A.resolve(p), n.V.resolve(p), n.N.resolve(p)
	if e == intern.Unset || a == intern.Unset {
		return change.Change{}, txnerr.ErrUndefinedField.New("e/a")
	}
	if n.Granularity() == Triple && (v == intern.Unset || nn == intern.Unset) {
		return change.Change{}, txnerr.ErrUndefinedField.New("v/n")
	}

	count := p.Count
	if n.Kind.IsRemove() {
		count = -count
	}
	return change.Change{
		E: e, A: a, V: v, N: nn,
		Round:   p.Round,
		Count:   count,
		BlockID: n.BlockID,
	}, nil
}

// Expand turns a Vs/AVs wildcard retraction into the concrete per-triple
// Changes it covers, by walking idx for every live triple matching the
// bound fields at the given (txn,round); every provenance n is included.
// core/txn calls it as each change is emitted, not at commit collapse. A
// plain (non-wildcard) Change is returned as-is.
func Expand(idx *index.TripleIndex, wildcard change.Change, txn, round int) []change.Change {
	if wildcard.V != intern.Ignore {
		return []change.Change{wildcard}
	}

	aField := index.Bnd(wildcard.A)
	if wildcard.A == intern.Ignore {
		aField = index.Unb() // AVs: A is also a wildcard
	}

	var out []change.Change
	aProp := idx.Propose(index.Pattern{E: index.Bnd(wildcard.E), A: aField, V: index.Ign(), N: index.Ign()}, txn, round)
	as := []intern.ID{wildcard.A}
	if wildcard.A == intern.Ignore {
		as = idx.ResolveProposal(aProp, txn, round)
	}

	for _, a := range as {
		vProp := idx.Propose(index.Pattern{E: index.Bnd(wildcard.E), A: index.Bnd(a), V: index.Unb(), N: index.Ign()}, txn, round)
		for _, v := range idx.ResolveProposal(vProp, txn, round) {
			nProp := idx.Propose(index.Pattern{E: index.Bnd(wildcard.E), A: index.Bnd(a), V: index.Bnd(v), N: index.Unb()}, txn, round)
			for _, n := range idx.ResolveProposal(nProp, txn, round) {
				if idx.Check(wildcard.E, a, v, n, txn, round) != index.Present {
					continue
				}
				out = append(out, change.Change{
					E: wildcard.E, A: a, V: v, N: n,
					Round: round, Count: wildcard.Count, BlockID: wildcard.BlockID,
				})
			}
		}
	}
	return out
}

// Handler receives one source block's exported changes (spec §4.14).
type Handler func(blockID int, changes []change.Change) error

// WatchNode exports changes to an external Handler, bucketed by source
// block ID — an effect-like integration point, not part of the store.
type WatchNode struct {
	BlockID int
	Handler Handler
}

// Fire invokes the handler with changes attributed to w.BlockID.
func (w *WatchNode) Fire(changes []change.Change) error {
	return w.Handler(w.BlockID, changes)
}
