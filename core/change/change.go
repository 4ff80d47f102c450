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

// Package change defines the unit of flow through the dataflow runtime: an
// interned (e, a, v, n) tuple plus (transaction, round, count), and the
// raw, uninterned form ingested at the system boundary.
package change

import "github.com/evecore/dataflow/core/intern"

// Signal distinguishes an ordinary input change from the two synthetic
// program-mutation signals (spec §4.7, §6).
type Signal int

const (
	// SignalNone marks an ordinary triple change.
	SignalNone Signal = iota
	// SignalBlockAdd rebuilds a newly added block's contributions.
	SignalBlockAdd
	// SignalBlockRemove tears down a removed block's contributions.
	SignalBlockRemove
)

// Change is an interned (e, a, v, n) tuple plus provenance and versioning.
// Count is a signed multiplicity; Round is the recursion depth within the
// owning Transaction; Changes are immutable once constructed.
type Change struct {
	E, A, V, N intern.ID

	Transaction int
	Round       int
	Count       int64

	// BlockID names the source block a derived Change came from, used to
	// group exports (spec §6 "Triple output").
	BlockID int

	Signal Signal
}

// RawChange is the uninterned wire shape ingested at the system boundary
// (spec §6 "Triple input"): e, a, v, n, transaction, round, count with raw
// values that the engine interns on ingress.
type RawChange struct {
	E, A, V, N any
	Transaction int
	Round       int
	Count       int64
}

// Register is a numbered slot offset in a Prefix, local to one Block.
type Register int

// Prefix is the evolving partial variable binding used as join-resolution
// scratch. Bindings is indexed by Register; unbound slots hold
// intern.Unset. Round and Count are carried alongside rather than packed
// into the last two slots of Bindings, which is clearer in Go than the
// packed layout spec.md describes and is semantically equivalent.
type Prefix struct {
	Bindings []intern.ID
	Round    int
	Count    int64
}

// NewPrefix allocates an all-unbound Prefix with n registers.
func NewPrefix(n int) Prefix {
	b := make([]intern.ID, n)
	for i := range b {
		b[i] = intern.Unset
	}
	return Prefix{Bindings: b}
}

// Clone returns an independent copy of p, safe to mutate without
// affecting p. Join resolution takes a Clone before recursing so that
// sibling branches of the search never observe each other's bindings
// (spec §3 "Prefixes are mutable scratch during join resolution; copies
// are taken before pushing to a result iterator").
func (p Prefix) Clone() Prefix {
	b := make([]intern.ID, len(p.Bindings))
	copy(b, p.Bindings)
	return Prefix{Bindings: b, Round: p.Round, Count: p.Count}
}

// Get returns the binding at register r, or intern.Unset if unbound.
func (p Prefix) Get(r Register) intern.ID {
	if int(r) < 0 || int(r) >= len(p.Bindings) {
		return intern.Unset
	}
	return p.Bindings[r]
}

// Bound reports whether register r currently holds a value.
func (p Prefix) Bound(r Register) bool {
	return p.Get(r) != intern.Unset
}

// Bind sets register r to id, returning false (without mutating p) if r
// was already bound to a different value. This is the "recoverable"
// register-conflict prune of spec §7: callers treat a false return as a
// local failure that prunes one candidate combination, not as an error.
func (p *Prefix) Bind(r Register, id intern.ID) bool {
	cur := p.Get(r)
	if cur == intern.Unset {
		p.Bindings[r] = id
		return true
	}
	return cur == id
}
