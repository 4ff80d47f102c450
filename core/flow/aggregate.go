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

package flow

import (
	"strconv"

	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/index"
	"github.com/evecore/dataflow/core/intern"
	"github.com/evecore/dataflow/core/txnerr"
)

// Aggregator is a rolling aggregate state machine: Add/Remove fold one
// contributing value in or out, and GetResult reads the current value off
// the accumulated state (spec §4.11).
type Aggregator interface {
	Zero() any
	Add(state any, value any) any
	Remove(state any, value any) any
	GetResult(state any) (any, error)
}

type aggGroup struct {
	proj        *index.DistinctIndex
	state       any
	lastResult  intern.ID
	hasResult   bool
}

// Aggregate groups incoming prefixes by GroupRegs, dedups contributions by
// ProjectRegs through a DistinctIndex (so duplicate derivations of the
// same projected tuple don't double-count), and folds ValueReg's
// interned value through Agg. On a presence toggle it retracts the
// previous result and inserts the new one, both written into OutputReg.
type Aggregate struct {
	GroupRegs   []change.Register
	ProjectRegs []change.Register
	ValueReg    change.Register
	OutputReg   change.Register
	Agg         Aggregator
	Interner    *intern.Interner

	groups map[uint64]*aggGroup
}

// NewAggregate builds an empty Aggregate.
func NewAggregate(groupRegs, projectRegs []change.Register, valueReg, outputReg change.Register, agg Aggregator, in *intern.Interner) *Aggregate {
	return &Aggregate{
		GroupRegs:   groupRegs,
		ProjectRegs: projectRegs,
		ValueReg:    valueReg,
		OutputReg:   outputReg,
		Agg:         agg,
		Interner:    in,
		groups:      make(map[uint64]*aggGroup),
	}
}

func projDistinctKey(k uint64) index.DistinctKey {
	return index.DistinctKey(strconv.FormatUint(k, 36))
}

func (a *Aggregate) groupFor(key uint64) *aggGroup {
	g, ok := a.groups[key]
	if !ok {
		g = &aggGroup{proj: index.NewDistinctIndex(), state: a.Agg.Zero()}
		a.groups[key] = g
	}
	return g
}

// Run folds p into its group's aggregate state and returns the retract
// (if a previous result existed) and insert prefixes for the new result,
// in that order, or nil if p did not toggle the projection's presence.
func (a *Aggregate) Run(p change.Prefix, round int) ([]change.Prefix, error) {
	gkey, err := keyOf(p, a.GroupRegs)
	if err != nil {
		return nil, err
	}
	pkey, err := keyOf(p, a.ProjectRegs)
	if err != nil {
		return nil, err
	}
	g := a.groupFor(gkey)

	dk := projDistinctKey(pkey)
	g.proj.Add(dk, round, p.Count)
	transitions := g.proj.Settle(dk)
	if g.proj.Running(dk) < 0 {
		return nil, txnerr.ErrNegativeAggregateTotal.New(gkey)
	}
	if len(transitions) == 0 {
		return nil, nil
	}

	val, err := a.Interner.Get(p.Get(a.ValueReg))
	if err != nil {
		return nil, err
	}
	for _, t := range transitions {
		if t.Count > 0 {
			g.state = a.Agg.Add(g.state, val)
		} else {
			g.state = a.Agg.Remove(g.state, val)
		}
	}

	result, err := a.Agg.GetResult(g.state)
	if err != nil {
		return nil, err
	}

	var out []change.Prefix
	if g.hasResult {
		retract := p.Clone()
		retract.Bindings[a.OutputReg] = g.lastResult
		retract.Round = round
		retract.Count = -1
		out = append(out, retract)
	}
	resultID, err := a.Interner.Intern(result)
	if err != nil {
		return nil, err
	}
	insert := p.Clone()
	insert.Bindings[a.OutputReg] = resultID
	insert.Round = round
	insert.Count = 1
	out = append(out, insert)

	g.lastResult = resultID
	g.hasResult = true
	return out, nil
}

// AggregateOuterLookup guards Aggregate so that an aggregate nested inside
// a Choose branch only sees tuples that join with the enclosing outer
// scope — without it, such an aggregate would count globally across every
// branch instead of just its own (spec §4.11).
type AggregateOuterLookup struct {
	Inner    *Aggregate
	OuterKey []change.Register

	outer map[uint64]bool
}

// NewAggregateOuterLookup wraps inner with an outer-scope guard keyed by
// outerKey.
func NewAggregateOuterLookup(inner *Aggregate, outerKey []change.Register) *AggregateOuterLookup {
	return &AggregateOuterLookup{Inner: inner, OuterKey: outerKey, outer: make(map[uint64]bool)}
}

// AddOuter marks p's outer key as in-scope.
func (o *AggregateOuterLookup) AddOuter(p change.Prefix) error {
	key, err := keyOf(p, o.OuterKey)
	if err != nil {
		return err
	}
	o.outer[key] = true
	return nil
}

// RemoveOuter marks p's outer key as out-of-scope.
func (o *AggregateOuterLookup) RemoveOuter(p change.Prefix) error {
	key, err := keyOf(p, o.OuterKey)
	if err != nil {
		return err
	}
	delete(o.outer, key)
	return nil
}

// Run suppresses p entirely unless its outer key is currently in scope.
func (o *AggregateOuterLookup) Run(p change.Prefix, round int) ([]change.Prefix, error) {
	key, err := keyOf(p, o.OuterKey)
	if err != nil {
		return nil, err
	}
	if !o.outer[key] {
		return nil, nil
	}
	return o.Inner.Run(p, round)
}
