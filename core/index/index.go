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

// Package index holds the multi-indexed triple store (spec.md §4.2) and
// its companion distinct index (§4.3).
package index

import (
	"sort"

	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/intern"
)

// FieldKind classifies one of a pattern's four fields for Propose.
type FieldKind int

const (
	// Bound means the field already has a concrete value.
	Bound FieldKind = iota
	// Ignore means "do not constrain this field" (spec §4.2 IGNORE sentinel).
	Ignore
	// Unbound means the field is a register awaiting a proposed value.
	Unbound
)

// Field is one slot of a four-field pattern passed to Propose/GetDiffs.
type Field struct {
	Kind  FieldKind
	Value intern.ID // meaningful only when Kind == Bound
}

// Bnd constructs a Bound field.
func Bnd(id intern.ID) Field { return Field{Kind: Bound, Value: id} }

// Ign constructs an Ignore field.
func Ign() Field { return Field{Kind: Ignore} }

// Unb constructs an Unbound field.
func Unb() Field { return Field{Kind: Unbound} }

// Pattern is a partially-bound (e, a, v, n) triple pattern.
type Pattern struct {
	E, A, V, N Field
}

// Proposal is the index's offer to enumerate one unbound field.
type Proposal struct {
	Pattern     Pattern
	FieldIndex  int // 0=E, 1=A, 2=V, 3=N
	Cardinality int
	Skip        bool // no enumeration possible (all bound or ignored)
}

// CheckResult is the tri-state result of a point check: a triple key may
// never have been asserted, may have been asserted and since retracted
// back to net-zero, or may currently hold net-positive. Distinguishing
// Absent from Retracted lets antijoin and getDiffs build correct round
// arrays; grounded on the janus-datalog AEVT store's equivalent
// three-state point-check shape (see SPEC_FULL.md §11).
type CheckResult int

const (
	Absent CheckResult = iota
	Retracted
	Present
)

// entry is one inserted delta, ordered by (Transaction, Round) — the
// spec's round-monotone-within-a-frame invariant means this lexicographic
// order is the history order for any single evolving store.
type entry struct {
	Transaction int
	Round       int
	Count       int64
}

func (e entry) before(txn, round int) bool {
	if e.Transaction != txn {
		return e.Transaction < txn
	}
	return e.Round <= round
}

type cell struct {
	entries []entry
	dirty   bool
}

func (c *cell) insert(e entry) {
	c.entries = append(c.entries, e)
	c.dirty = true
}

func (c *cell) sortIfDirty() {
	if !c.dirty {
		return
	}
	sort.SliceStable(c.entries, func(i, j int) bool {
		if c.entries[i].Transaction != c.entries[j].Transaction {
			return c.entries[i].Transaction < c.entries[j].Transaction
		}
		return c.entries[i].Round < c.entries[j].Round
	})
	c.dirty = false
}

// netAt sums every entry at or before (txn, round).
func (c *cell) netAt(txn, round int) int64 {
	c.sortIfDirty()
	var total int64
	for _, e := range c.entries {
		if e.before(txn, round) {
			total += e.Count
		}
	}
	return total
}

// diffs computes the ordered, signed round sequence at which the running
// net count crosses zero (spec §4.2 getDiffs). A positive round marks a
// 0→positive transition (add); a negative round marks a transition back
// to zero (retract). It walks the entries in (transaction, round) order;
// each crossing records only the entry's round, not its transaction.
func (c *cell) diffs() []int {
	c.sortIfDirty()
	var out []int
	var running int64
	for _, e := range c.entries {
		before := running
		running += e.Count
		switch {
		case before == 0 && running != 0:
			out = append(out, e.Round)
		case before != 0 && running == 0:
			out = append(out, -e.Round)
		}
	}
	return out
}

type cellKey struct {
	e, a, v, n intern.ID
}

// TripleIndex is the multi-indexed store of Changes. It supports point
// checks, prefix enumeration, proposal of the cheapest unbound field, and
// round-wise diffs (spec §4.2).
type TripleIndex struct {
	cells map[cellKey]*cell

	// Three permutations for prefix enumeration, mirroring spec §4.2's
	// "at minimum EAV, AVE, AEV". N is innermost in each: a scan pattern
	// commonly binds or ignores provenance last.
	eav map[intern.ID]map[intern.ID]map[intern.ID]map[intern.ID]*cell
	ave map[intern.ID]map[intern.ID]map[intern.ID]map[intern.ID]*cell
	aev map[intern.ID]map[intern.ID]map[intern.ID]map[intern.ID]*cell
}

// NewTripleIndex returns an empty index.
func NewTripleIndex() *TripleIndex {
	return &TripleIndex{
		cells: make(map[cellKey]*cell),
		eav:   make(map[intern.ID]map[intern.ID]map[intern.ID]map[intern.ID]*cell),
		ave:   make(map[intern.ID]map[intern.ID]map[intern.ID]map[intern.ID]*cell),
		aev:   make(map[intern.ID]map[intern.ID]map[intern.ID]map[intern.ID]*cell),
	}
}

func (idx *TripleIndex) cellFor(e, a, v, n intern.ID) *cell {
	k := cellKey{e, a, v, n}
	c, ok := idx.cells[k]
	if ok {
		return c
	}
	c = &cell{}
	idx.cells[k] = c

	put3(idx.eav, e, a, v, n, c)
	put3(idx.ave, a, v, e, n, c)
	put3(idx.aev, a, e, v, n, c)
	return c
}

func put3(m map[intern.ID]map[intern.ID]map[intern.ID]map[intern.ID]*cell, x, y, z, w intern.ID, c *cell) {
	if m[x] == nil {
		m[x] = make(map[intern.ID]map[intern.ID]map[intern.ID]*cell)
	}
	if m[x][y] == nil {
		m[x][y] = make(map[intern.ID]map[intern.ID]*cell)
	}
	if m[x][y][z] == nil {
		m[x][y][z] = make(map[intern.ID]*cell)
	}
	m[x][y][z][w] = c
}

// Insert adds a delta; the stored value per (e,a,v,n) is the cumulative
// count per round (spec §4.2).
func (idx *TripleIndex) Insert(c change.Change) {
	idx.cellFor(c.E, c.A, c.V, c.N).insert(entry{
		Transaction: c.Transaction,
		Round:       c.Round,
		Count:       c.Count,
	})
}

// Check reports whether (e,a,v,n) holds net-positive at or before
// (txn,round), and distinguishes "never asserted" from "retracted". A
// field given as intern.Ignore matches any value: the result is Present if
// any matching cell is live, else Retracted if any matching cell exists.
func (idx *TripleIndex) Check(e, a, v, n intern.ID, txn, round int) CheckResult {
	if e == intern.Ignore || a == intern.Ignore || v == intern.Ignore || n == intern.Ignore {
		result := Absent
		for k, c := range idx.cells {
			if (e != intern.Ignore && k.e != e) || (a != intern.Ignore && k.a != a) ||
				(v != intern.Ignore && k.v != v) || (n != intern.Ignore && k.n != n) {
				continue
			}
			if c.netAt(txn, round) > 0 {
				return Present
			}
			result = Retracted
		}
		return result
	}
	k := cellKey{e, a, v, n}
	c, ok := idx.cells[k]
	if !ok {
		return Absent
	}
	if c.netAt(txn, round) > 0 {
		return Present
	}
	return Retracted
}

// GetDiffs returns the signed round sequence for the fully-resolved
// triple pattern (e,a,v,n).
func (idx *TripleIndex) GetDiffs(e, a, v, n intern.ID) []int {
	k := cellKey{e, a, v, n}
	c, ok := idx.cells[k]
	if !ok {
		return nil
	}
	return c.diffs()
}

// Propose asks the index for the cheapest unbound field to enumerate
// given a partially-bound pattern. It marks Skip when no field is
// Unbound (all are Bound or Ignore).
func (idx *TripleIndex) Propose(p Pattern, txn, round int) Proposal {
	fields := [4]Field{p.E, p.A, p.V, p.N}

	best := -1
	bestCard := -1
	for i, f := range fields {
		if f.Kind != Unbound {
			continue
		}
		card := idx.estimateCardinality(p, i, txn, round)
		if best == -1 || card < bestCard {
			best, bestCard = i, card
		}
	}
	if best == -1 {
		return Proposal{Pattern: p, Skip: true}
	}
	return Proposal{Pattern: p, FieldIndex: best, Cardinality: bestCard}
}

// estimateCardinality reports how many distinct live values field i could
// take given the pattern's other bound/ignored fields: the length of the
// list candidates returns.
func (idx *TripleIndex) estimateCardinality(p Pattern, field int, txn, round int) int {
	vals := idx.candidates(p, field, txn, round)
	return len(vals)
}

// candidates enumerates the distinct live values field `field` (0=E,1=A,
// 2=V,3=N) could take under pattern p. It walks whichever permutation
// index lets it narrow on the most already-bound fields before falling
// back to a full cell scan, and always re-checks any remaining
// (non-leading) bound/ignored fields and liveness against the result.
func (idx *TripleIndex) candidates(p Pattern, field int, txn, round int) []intern.ID {
	fields := [4]Field{p.E, p.A, p.V, p.N}

	bound := func(i int) (intern.ID, bool) {
		if fields[i].Kind == Bound {
			return fields[i].Value, true
		}
		return intern.Unset, false
	}

	e, eOK := bound(0)
	a, aOK := bound(1)
	v, vOK := bound(2)
	n, nOK := bound(3)

	seen := make(map[intern.ID]struct{})
	var out []intern.ID
	add := func(id intern.ID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	live := func(c *cell) bool { return c.netAt(txn, round) > 0 }

	// walkLevel2 narrows a permutation tree by its first two bound keys,
	// then extracts `extract` from whatever remains, checking any
	// trailing bound/ignored field and liveness before adding.
	walkLevel2 := func(level2 map[intern.ID]map[intern.ID]*cell, extract func(third, fourth intern.ID) (intern.ID, bool)) {
		for third, byFourth := range level2 {
			for fourth, c := range byFourth {
				id, ok := extract(third, fourth)
				if !ok || !live(c) {
					continue
				}
				add(id)
			}
		}
	}

	switch field {
	case 0: // enumerate E
		if aOK && vOK {
			// AVE: [A][V][E][N]
			walkLevel2(idx.ave[a][v], func(eID, nID intern.ID) (intern.ID, bool) {
				if nOK && nID != n {
					return intern.Unset, false
				}
				return eID, true
			})
			return out
		}
	case 1: // enumerate A
		if eOK {
			// EAV: [E][A][V][N] — E is already the top key.
			for aID, byV := range idx.eav[e] {
				for vID, byN := range byV {
					if vOK && vID != v {
						continue
					}
					for nID, c := range byN {
						if nOK && nID != n {
							continue
						}
						if !live(c) {
							continue
						}
						add(aID)
					}
				}
			}
			return out
		}
	case 2: // enumerate V
		if aOK && eOK {
			// AEV: [A][E][V][N]
			walkLevel2(idx.aev[a][e], func(vID, nID intern.ID) (intern.ID, bool) {
				if nOK && nID != n {
					return intern.Unset, false
				}
				return vID, true
			})
			return out
		}
	}

	// General fallback: a full cell scan, filtered on every bound field.
	// Used for field==3 (N) and for any combination not covered by a
	// two-level narrowing above.
	for k, c := range idx.cells {
		if eOK && k.e != e {
			continue
		}
		if aOK && k.a != a {
			continue
		}
		if vOK && k.v != v {
			continue
		}
		if nOK && k.n != n {
			continue
		}
		if !live(c) {
			continue
		}
		switch field {
		case 0:
			add(k.e)
		case 1:
			add(k.a)
		case 2:
			add(k.v)
		case 3:
			add(k.n)
		}
	}
	return out
}

// ResolveProposal enumerates the actual live IDs for the proposed field
// under prop's bindings.
func (idx *TripleIndex) ResolveProposal(prop Proposal, txn, round int) []intern.ID {
	if prop.Skip {
		return nil
	}
	return idx.candidates(prop.Pattern, prop.FieldIndex, txn, round)
}
