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

// Package constraint implements the polymorphic relational primitive of
// spec.md §4: scan (triple pattern), function (pure computation), and
// move (equality/assignment), unified behind one capability interface.
//
// Dispatch is static: Constraint is a plain interface and each variant is
// its own struct, matching spec.md §9 ("static dispatch per call site is
// fine... do not synthesize code at runtime").
package constraint

import (
	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/funcs"
	"github.com/evecore/dataflow/core/index"
	"github.com/evecore/dataflow/core/intern"
)

// Binding is a candidate set of register assignments a Proposal may
// resolve to. Scan and Move proposals always resolve to single-key
// Bindings; a multi-valued Function proposal may resolve to Bindings
// with every output register set at once.
type Binding map[change.Register]intern.ID

// Proposal is a constraint's offer to enumerate one or more unbound
// registers together (spec §4 "Proposal").
type Proposal struct {
	Registers   []change.Register
	Cardinality int
	Skip        bool
}

// Constraint is the capability set of spec.md §4: {isAffected,
// applyInput, propose, resolveProposal, accept, getDiffs}.
type Constraint interface {
	// Registers returns every register this constraint reads or writes.
	Registers() []change.Register

	// IsAffected reports whether an ordinary input change structurally
	// matches this constraint's static fields. Signal changes
	// (BLOCK_ADD/BLOCK_REMOVE) bypass this entirely (spec §4.7).
	IsAffected(c change.Change) bool

	// ApplyInput writes c's field values into the registers this
	// constraint binds from it, returning false (without partial
	// mutation beyond the conflicting field) if a register was already
	// bound to a different value — a local prune, not an error.
	ApplyInput(c change.Change, p *change.Prefix) bool

	// Propose offers to enumerate some of this constraint's still-unbound
	// registers, or reports Skip if it cannot contribute right now.
	Propose(p change.Prefix, txn, round int) Proposal

	// ResolveProposal enumerates the candidate Bindings for prop.
	ResolveProposal(prop Proposal, p change.Prefix, txn, round int) ([]Binding, error)

	// Accept checks whether p (with solvingFor just bound) is consistent
	// with this constraint. It defers (returns true) when some of its
	// own registers remain unbound in p, and short-circuits true when
	// solvingFor doesn't intersect its registers at all.
	Accept(p change.Prefix, solvingFor []change.Register, txn, round int) (bool, error)

	// GetDiffs returns the signed round sequence this constraint
	// contributes once p is fully bound for its registers (spec §4.7.1
	// multiplicity composition).
	GetDiffs(p change.Prefix, txn, round int) []int
}

func intersects(a, b []change.Register) bool {
	set := make(map[change.Register]struct{}, len(b))
	for _, r := range b {
		set[r] = struct{}{}
	}
	for _, r := range a {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func allBound(p change.Prefix, regs []change.Register) bool {
	for _, r := range regs {
		if !p.Bound(r) {
			return false
		}
	}
	return true
}

// --- Scan -------------------------------------------------------------

// FieldKind classifies a Scan field.
type FieldKind int

const (
	// Static fields hold a fixed, already-interned ID.
	Static FieldKind = iota
	// RegisterField fields read/write a block-local register.
	RegisterField
	// IgnoreField fields never constrain or bind anything.
	IgnoreField
)

// ScanField is one of a Scan's four fields.
type ScanField struct {
	Kind     FieldKind
	StaticID intern.ID
	Register change.Register
}

// Stat constructs a Static field.
func Stat(id intern.ID) ScanField { return ScanField{Kind: Static, StaticID: id} }

// Reg constructs a Register field.
func Reg(r change.Register) ScanField { return ScanField{Kind: RegisterField, Register: r} }

// IgnoreF constructs an Ignore field.
func IgnoreF() ScanField { return ScanField{Kind: IgnoreField} }

// Scan is a triple-pattern constraint over the shared TripleIndex (spec
// §4.4).
type Scan struct {
	E, A, V, N ScanField
	Index      *index.TripleIndex
}

var _ Constraint = (*Scan)(nil)

func (s *Scan) fields() [4]ScanField { return [4]ScanField{s.E, s.A, s.V, s.N} }

// Registers implements Constraint.
func (s *Scan) Registers() []change.Register {
	var out []change.Register
	for _, f := range s.fields() {
		if f.Kind == RegisterField {
			out = append(out, f.Register)
		}
	}
	return out
}

// IsAffected implements Constraint: rejects if any static field
// mismatches the change.
func (s *Scan) IsAffected(c change.Change) bool {
	if c.Signal != change.SignalNone {
		return false
	}
	vals := [4]intern.ID{c.E, c.A, c.V, c.N}
	for i, f := range s.fields() {
		if f.Kind == Static && f.StaticID != vals[i] {
			return false
		}
	}
	return true
}

// ApplyInput implements Constraint.
func (s *Scan) ApplyInput(c change.Change, p *change.Prefix) bool {
	vals := [4]intern.ID{c.E, c.A, c.V, c.N}
	for i, f := range s.fields() {
		if f.Kind != RegisterField {
			continue
		}
		if !p.Bind(f.Register, vals[i]) {
			return false
		}
	}
	return true
}

func (s *Scan) pattern(p change.Prefix) index.Pattern {
	toField := func(f ScanField) index.Field {
		switch f.Kind {
		case Static:
			return index.Bnd(f.StaticID)
		case IgnoreField:
			return index.Ign()
		default:
			if p.Bound(f.Register) {
				return index.Bnd(p.Get(f.Register))
			}
			return index.Unb()
		}
	}
	return index.Pattern{
		E: toField(s.E),
		A: toField(s.A),
		V: toField(s.V),
		N: toField(s.N),
	}
}

func (s *Scan) registerFor(fieldIndex int) change.Register {
	return [4]ScanField{s.E, s.A, s.V, s.N}[fieldIndex].Register
}

// Propose implements Constraint: delegates to the index after resolving
// bound registers.
func (s *Scan) Propose(p change.Prefix, txn, round int) Proposal {
	prop := s.Index.Propose(s.pattern(p), txn, round)
	if prop.Skip {
		return Proposal{Skip: true}
	}
	return Proposal{
		Registers:   []change.Register{s.registerFor(prop.FieldIndex)},
		Cardinality: prop.Cardinality,
	}
}

// ResolveProposal implements Constraint.
func (s *Scan) ResolveProposal(prop Proposal, p change.Prefix, txn, round int) ([]Binding, error) {
	if len(prop.Registers) != 1 {
		return nil, nil
	}
	reg := prop.Registers[0]
	var fieldIndex int
	for i, f := range s.fields() {
		if f.Kind == RegisterField && f.Register == reg {
			fieldIndex = i
		}
	}
	ids := s.Index.ResolveProposal(index.Proposal{
		Pattern:     s.pattern(p),
		FieldIndex:  fieldIndex,
		Cardinality: prop.Cardinality,
	}, txn, round)

	out := make([]Binding, len(ids))
	for i, id := range ids {
		out[i] = Binding{reg: id}
	}
	return out, nil
}

// Accept implements Constraint: a point check through the index, once
// all of this scan's registers are bound.
func (s *Scan) Accept(p change.Prefix, solvingFor []change.Register, txn, round int) (bool, error) {
	regs := s.Registers()
	if !intersects(regs, solvingFor) {
		return true, nil
	}
	if !allBound(p, regs) {
		return true, nil
	}
	pat := s.pattern(p)
	e := resolveStatic(pat.E)
	a := resolveStatic(pat.A)
	v := resolveStatic(pat.V)
	n := resolveStatic(pat.N)
	return s.Index.Check(e, a, v, n, txn, round) == index.Present, nil
}

func resolveStatic(f index.Field) intern.ID {
	if f.Kind == index.Bound {
		return f.Value
	}
	return intern.Ignore
}

// GetDiffs implements Constraint.
func (s *Scan) GetDiffs(p change.Prefix, txn, round int) []int {
	pat := s.pattern(p)
	return s.Index.GetDiffs(resolveStatic(pat.E), resolveStatic(pat.A), resolveStatic(pat.V), resolveStatic(pat.N))
}

// --- Move ---------------------------------------------------------------

// Move is an equality bridge from a source (register or static) to a
// destination register (spec §4.6).
type Move struct {
	SourceStatic   intern.ID
	SourceRegister change.Register
	SourceIsStatic bool
	Dest           change.Register
}

var _ Constraint = (*Move)(nil)

// Registers implements Constraint.
func (m *Move) Registers() []change.Register {
	if m.SourceIsStatic {
		return []change.Register{m.Dest}
	}
	return []change.Register{m.SourceRegister, m.Dest}
}

// IsAffected implements Constraint: Move never scans the store.
func (m *Move) IsAffected(change.Change) bool { return false }

// ApplyInput implements Constraint: Move has nothing to read from an
// input change.
func (m *Move) ApplyInput(change.Change, *change.Prefix) bool { return true }

func (m *Move) sourceKnown(p change.Prefix) (intern.ID, bool) {
	if m.SourceIsStatic {
		return m.SourceStatic, true
	}
	if p.Bound(m.SourceRegister) {
		return p.Get(m.SourceRegister), true
	}
	return intern.Unset, false
}

// Propose implements Constraint: proposes exactly when source is known
// and destination is unknown.
func (m *Move) Propose(p change.Prefix, txn, round int) Proposal {
	if _, ok := m.sourceKnown(p); !ok || p.Bound(m.Dest) {
		return Proposal{Skip: true}
	}
	return Proposal{Registers: []change.Register{m.Dest}, Cardinality: 1}
}

// ResolveProposal implements Constraint.
func (m *Move) ResolveProposal(prop Proposal, p change.Prefix, txn, round int) ([]Binding, error) {
	src, ok := m.sourceKnown(p)
	if !ok {
		return nil, nil
	}
	return []Binding{{m.Dest: src}}, nil
}

// Accept implements Constraint: an equality check once both sides are
// known.
func (m *Move) Accept(p change.Prefix, solvingFor []change.Register, txn, round int) (bool, error) {
	regs := m.Registers()
	if !intersects(regs, solvingFor) {
		return true, nil
	}
	src, ok := m.sourceKnown(p)
	if !ok || !p.Bound(m.Dest) {
		return true, nil
	}
	return src == p.Get(m.Dest), nil
}

// GetDiffs implements Constraint: Move contributes a constant presence
// from round 0 — it carries no history of its own.
func (m *Move) GetDiffs(change.Prefix, int, int) []int { return []int{0} }

// --- Function -------------------------------------------------------------

// FuncField is one argument of a Function constraint: a static value or a
// register.
type FuncField struct {
	IsStatic bool
	Static   intern.ID
	Register change.Register
}

// FArg constructs a register-valued argument field.
func FArg(r change.Register) FuncField { return FuncField{Register: r} }

// FStat constructs a static-valued argument field.
func FStat(id intern.ID) FuncField { return FuncField{IsStatic: true, Static: id} }

// Function wraps a registered pure/multi/filter computation (spec §4.5).
type Function struct {
	Def     *funcs.Def
	Inputs  []FuncField
	Outputs []change.Register
	Interner *intern.Interner
	Arena   string // arena outputs are interned into; defaults to intern.FunctionOutputArena
}

var _ Constraint = (*Function)(nil)

// Registers implements Constraint.
func (f *Function) Registers() []change.Register {
	var out []change.Register
	for _, in := range f.Inputs {
		if !in.IsStatic {
			out = append(out, in.Register)
		}
	}
	out = append(out, f.Outputs...)
	return out
}

// IsAffected implements Constraint: functions never scan the store.
func (f *Function) IsAffected(change.Change) bool { return false }

// ApplyInput implements Constraint: functions never read directly from
// an input change.
func (f *Function) ApplyInput(change.Change, *change.Prefix) bool { return true }

func (f *Function) inputsBound(p change.Prefix) bool {
	for _, in := range f.Inputs {
		if !in.IsStatic && !p.Bound(in.Register) {
			return false
		}
	}
	return true
}

func (f *Function) outputsBound(p change.Prefix) bool {
	for _, r := range f.Outputs {
		if !p.Bound(r) {
			return false
		}
	}
	return true
}

func (f *Function) resolvedArgs(p change.Prefix) ([]any, error) {
	args := make([]any, len(f.Inputs))
	for i, in := range f.Inputs {
		var id intern.ID
		if in.IsStatic {
			id = in.Static
		} else {
			id = p.Get(in.Register)
		}
		v, err := f.Interner.Get(id)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// Propose implements Constraint: fires only when all inputs are bound
// and at least one output is unbound.
func (f *Function) Propose(p change.Prefix, txn, round int) Proposal {
	if f.Def.IsFilter() || !f.inputsBound(p) || f.outputsBound(p) {
		return Proposal{Skip: true}
	}
	card := 1
	if f.Def.Estimator != nil {
		if args, err := f.resolvedArgs(p); err == nil {
			card = f.Def.Estimator(args)
		}
	}
	return Proposal{Registers: append([]change.Register{}, f.Outputs...), Cardinality: card}
}

func (f *Function) arena() string {
	if f.Arena != "" {
		return f.Arena
	}
	return intern.FunctionOutputArena
}

// ResolveProposal implements Constraint: invokes the function on
// resolved inputs, interns the outputs, and emits one (or many, if
// Def.Multi) result Bindings.
func (f *Function) ResolveProposal(prop Proposal, p change.Prefix, txn, round int) ([]Binding, error) {
	args, err := f.resolvedArgs(p)
	if err != nil {
		return nil, err
	}

	var rows [][]any
	if f.Def.Multi {
		rows, err = f.Def.MultiCall(args)
		if err != nil {
			return nil, err
		}
	} else {
		row, err := f.Def.Call(args)
		if err != nil {
			return nil, err
		}
		rows = [][]any{row}
	}

	out := make([]Binding, 0, len(rows))
	for _, row := range rows {
		b := make(Binding, len(f.Outputs))
		for i, reg := range f.Outputs {
			id, err := f.Interner.InternInto(f.arena(), row[i])
			if err != nil {
				return nil, err
			}
			b[reg] = id
		}
		out = append(out, b)
	}
	return out, nil
}

// Accept implements Constraint: recomputes and compares against a
// fully-bound prefix, or evaluates the filter predicate for filter
// functions.
func (f *Function) Accept(p change.Prefix, solvingFor []change.Register, txn, round int) (bool, error) {
	regs := f.Registers()
	if !intersects(regs, solvingFor) {
		return true, nil
	}
	if !f.inputsBound(p) {
		return true, nil
	}
	args, err := f.resolvedArgs(p)
	if err != nil {
		return false, err
	}
	if f.Def.IsFilter() {
		return f.Def.Filter(args)
	}
	if !f.outputsBound(p) {
		return true, nil
	}
	if f.Def.Multi {
		rows, err := f.Def.MultiCall(args)
		if err != nil {
			return false, err
		}
		for _, row := range rows {
			if f.rowMatches(p, row) {
				return true, nil
			}
		}
		return false, nil
	}
	row, err := f.Def.Call(args)
	if err != nil {
		return false, err
	}
	return f.rowMatches(p, row), nil
}

func (f *Function) rowMatches(p change.Prefix, row []any) bool {
	for i, reg := range f.Outputs {
		id, err := f.Interner.Intern(row[i])
		if err != nil {
			return false
		}
		if p.Get(reg) != id {
			return false
		}
	}
	return true
}

// GetDiffs implements Constraint: like Move, a function carries no
// round history of its own — it is recomputed fresh from current
// bindings every time.
func (f *Function) GetDiffs(change.Prefix, int, int) []int { return []int{0} }
