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

// Package funcs is the function registry: pure and multi-valued
// computations registered by name for use by function constraints
// (spec.md §4.5, §6 "Function registry").
package funcs

import "gopkg.in/src-d/go-errors.v1"

// ErrAlreadyRegistered is raised by Register when a name is reused.
var ErrAlreadyRegistered = errors.NewKind("function %q is already registered")

// Estimator optionally overrides the default cardinality-1 estimate a
// function constraint reports to Generic Join when proposing its output
// registers.
type Estimator func(args []any) int

// Def declares one registered function: its ordered argument and return
// names, whether it is variadic or multi-valued, and its implementation.
//
// A Def with no ReturnNames is a filter: it has no outputs and is only
// ever consulted via Accept.
type Def struct {
	Name        string
	ArgNames    []string
	ReturnNames []string
	Variadic    bool
	// Multi marks a function that can produce more than one output tuple
	// per call (e.g. "every divisor of n"); MultiCall is used instead of
	// Call.
	Multi bool

	// Call computes ReturnNames' values from args, in order. Used when
	// !Multi and len(ReturnNames) > 0.
	Call func(args []any) ([]any, error)
	// MultiCall computes every output tuple. Used when Multi.
	MultiCall func(args []any) ([][]any, error)
	// Filter reports whether args satisfy the predicate. Used when
	// len(ReturnNames) == 0.
	Filter func(args []any) (bool, error)

	// Estimator overrides the default cardinality-1 proposal estimate.
	Estimator Estimator
	// State is an optional accumulator the function implementation may
	// close over; the registry does not interpret it.
	State any
}

// IsFilter reports whether def has no return values.
func (d *Def) IsFilter() bool { return len(d.ReturnNames) == 0 }

// Registry maps function names to their Def.
type Registry struct {
	defs map[string]*Def
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds def under def.Name.
func (r *Registry) Register(def *Def) error {
	if _, ok := r.defs[def.Name]; ok {
		return ErrAlreadyRegistered.New(def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// MustRegister is Register, panicking on error, for startup registration
// where a duplicate name is a coding error, not a runtime condition.
func (r *Registry) MustRegister(def *Def) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the Def registered under name, if any.
func (r *Registry) Lookup(name string) (*Def, bool) {
	d, ok := r.defs[name]
	return d, ok
}
