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

// Package join implements Generic Join (spec.md §4.7): a
// worst-case-optimal join over a set of constraints, adapted to
// incremental deltas.
package join

import (
	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/constraint"
)

// JoinNode runs Generic Join over a set of constraints sharing a
// register space, producing prefix tuples annotated with round/count.
type JoinNode struct {
	Constraints  []constraint.Constraint
	NumRegisters int

	allRegs []change.Register
	static  bool // all constraints are move-constraints with a static source
	dormant bool
}

// New builds a JoinNode over constraints. A join whose every constraint
// is a Move with a static source is marked static (spec §4.7): it
// becomes dormant after its first successful BLOCK_ADD execution, and
// BLOCK_REMOVE resets that dormancy (spec §9 open question).
func New(constraints []constraint.Constraint, numRegisters int) *JoinNode {
	j := &JoinNode{Constraints: constraints, NumRegisters: numRegisters}

	static := len(constraints) > 0
	seen := make(map[change.Register]struct{})
	for _, c := range constraints {
		if m, ok := c.(*constraint.Move); !ok || !m.SourceIsStatic {
			static = false
		}
		for _, r := range c.Registers() {
			seen[r] = struct{}{}
		}
	}
	j.static = static
	for r := range seen {
		j.allRegs = append(j.allRegs, r)
	}
	return j
}

func (j *JoinNode) fullyBound(p change.Prefix) bool {
	for _, r := range j.allRegs {
		if !p.Bound(r) {
			return false
		}
	}
	return true
}

// Run drives the join for one input change, returning every fully
// resolved Prefix it derives.
func (j *JoinNode) Run(input change.Change, txn, round int) ([]change.Prefix, error) {
	if input.Signal == change.SignalBlockAdd || input.Signal == change.SignalBlockRemove {
		return j.runSignal(input, txn, round)
	}

	affected := j.affectedIndices(input)
	if len(affected) == 0 {
		return nil, nil
	}

	var all []change.Prefix
	for _, subset := range nonEmptyPowerSet(affected) {
		p := change.NewPrefix(j.NumRegisters)
		p.Round = round
		p.Count = input.Count

		ok := true
		for _, ci := range subset {
			if !j.Constraints[ci].ApplyInput(input, &p) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		results, err := j.resolve(p, txn, round)
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}
	return all, nil
}

func (j *JoinNode) runSignal(input change.Change, txn, round int) ([]change.Prefix, error) {
	if j.static {
		switch input.Signal {
		case change.SignalBlockAdd:
			if j.dormant {
				return nil, nil
			}
		case change.SignalBlockRemove:
			j.dormant = false
		}
	}

	p := change.NewPrefix(j.NumRegisters)
	p.Round = round
	p.Count = input.Count

	results, err := j.resolve(p, txn, round)
	if err != nil {
		return nil, err
	}
	if j.static && input.Signal == change.SignalBlockAdd && len(results) > 0 {
		j.dormant = true
	}
	return results, nil
}

// affectedIndices returns the indices of constraints structurally
// matched by input (spec §4.7 step 1).
func (j *JoinNode) affectedIndices(input change.Change) []int {
	var out []int
	for i, c := range j.Constraints {
		if c.IsAffected(input) {
			out = append(out, i)
		}
	}
	return out
}

// nonEmptyPowerSet enumerates every non-empty subset of idx (spec §4.7
// step 2: "enumerating all of them is required because a single input
// change may match multiple patterns in one rule").
func nonEmptyPowerSet(idx []int) [][]int {
	n := len(idx)
	var out [][]int
	for mask := 1; mask < (1 << n); mask++ {
		var subset []int
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, idx[i])
			}
		}
		out = append(out, subset)
	}
	return out
}

// resolve runs Generic Join starting from p: if already fully bound, it
// emits directly; otherwise it recurses (spec §4.7 step 3-4).
func (j *JoinNode) resolve(p change.Prefix, txn, round int) ([]change.Prefix, error) {
	if j.fullyBound(p) {
		final, err := j.computeOutput(p, txn, round)
		if err != nil {
			return nil, err
		}
		return []change.Prefix{final}, nil
	}

	bestIdx := -1
	var bestProp constraint.Proposal
	for i, c := range j.Constraints {
		prop := c.Propose(p, txn, round)
		if prop.Skip {
			continue
		}
		if bestIdx == -1 || prop.Cardinality < bestProp.Cardinality {
			bestIdx, bestProp = i, prop
		}
	}
	if bestIdx == -1 {
		// No constraint can extend further: a register belongs to no
		// constraint able to resolve it under the current bindings.
		return nil, nil
	}

	bindings, err := j.Constraints[bestIdx].ResolveProposal(bestProp, p, txn, round)
	if err != nil {
		return nil, err
	}

	var out []change.Prefix
	for _, b := range bindings {
		cand := p.Clone()
		ok := true
		regs := make([]change.Register, 0, len(b))
		for r, id := range b {
			if !cand.Bind(r, id) {
				ok = false
				break
			}
			regs = append(regs, r)
		}
		if !ok {
			continue
		}

		accepted := true
		for i, c := range j.Constraints {
			if i == bestIdx {
				continue
			}
			ok, err := c.Accept(cand, regs, txn, round)
			if err != nil {
				return nil, err
			}
			if !ok {
				accepted = false
				break
			}
		}
		if !accepted {
			continue
		}

		sub, err := j.resolve(cand, txn, round)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// computeOutput implements the multiplicity composition of spec §4.7.1:
// the output round is max(inputRound, |diffRound|-1) across every
// constraint's diffs, folded to the most recent crossing at or before
// round. The count carries through unchanged from the input: every
// contributing constraint was confirmed Present during resolution, so
// each contributes a presence factor of exactly 1 to the product.
func (j *JoinNode) computeOutput(p change.Prefix, txn, round int) (change.Prefix, error) {
	outRound := round
	for _, c := range j.Constraints {
		diffs := c.GetDiffs(p, txn, round)
		if active := activeCrossing(diffs, round); active >= 0 {
			if active-1 > outRound {
				outRound = active - 1
			}
		}
	}
	final := p.Clone()
	final.Round = outRound
	return final, nil
}

// activeCrossing returns the absolute round of the last sign crossing at
// or before round, or -1 if none qualifies.
func activeCrossing(diffs []int, round int) int {
	best := -1
	for _, d := range diffs {
		ad := d
		if ad < 0 {
			ad = -ad
		}
		if ad <= round {
			best = ad
		}
	}
	return best
}
