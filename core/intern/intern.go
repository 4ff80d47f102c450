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

// Package intern holds the value dictionary: a reference-counted mapping
// between raw values (strings and finite-precision numbers) and dense
// positive integer IDs.
package intern

import (
	"math"

	"github.com/spf13/cast"
	"gopkg.in/src-d/go-errors.v1"
)

// ID is a dense, positive integer handle for an interned raw value.
type ID uint32

// Ignore is the sentinel meaning "do not constrain this field". It is
// never returned by Intern.
const Ignore ID = 1<<32 - 1

// Unset is the zero value of ID; Intern never returns it.
const Unset ID = 0

var (
	// ErrUnknownID is raised by Get/Release for an ID that was never
	// allocated or has already been fully released.
	ErrUnknownID = errors.NewKind("unknown interned id %d")
	// ErrUnsupportedValue is raised when a raw value is neither a string
	// nor coercible to a finite number.
	ErrUnsupportedValue = errors.NewKind("value %v of type %T is not a valid interned value (want string or number)")
)

// Arena names a deferred batch release. Interning a value "in" an arena
// does not change how the value is looked up; it only affects which
// bucket Release(arena) drains.
type Arena struct {
	name string
	ids  map[ID]struct{}
}

// FunctionOutputArena is always present in a fresh Interner; function
// constraints intern their resolved outputs into it (spec §4.1).
const FunctionOutputArena = "functionOutput"

// Interner maps raw values (string | float64) to dense positive IDs and
// back. It is reference-counted: the same raw value always yields the
// same ID while any reference to it is outstanding.
type Interner struct {
	strings map[string]ID
	numbers map[float64]ID

	raw      []any // index 0 unused; raw[id] is the original value
	refcount []int32
	freelist []ID

	arenas map[string]*Arena
}

// NewInterner returns an empty Interner with the functionOutput arena
// already registered.
func NewInterner() *Interner {
	in := &Interner{
		strings:  make(map[string]ID),
		numbers:  make(map[float64]ID),
		raw:      make([]any, 1), // raw[0] is the unused Unset slot
		refcount: make([]int32, 1),
		arenas:   make(map[string]*Arena),
	}
	in.arenas[FunctionOutputArena] = &Arena{name: FunctionOutputArena, ids: make(map[ID]struct{})}
	return in
}

// Arena returns (creating if necessary) a named deferred-release bucket.
func (in *Interner) Arena(name string) *Arena {
	a, ok := in.arenas[name]
	if !ok {
		a = &Arena{name: name, ids: make(map[ID]struct{})}
		in.arenas[name] = a
	}
	return a
}

// Intern returns the dense ID for v, allocating one if v has never been
// seen, and bumps its refcount. v must be a string or coercible to a
// finite float64 number; the two dictionaries are physically separate so
// a string and a number can never collide on ID space.
func (in *Interner) Intern(v any) (ID, error) {
	switch val := v.(type) {
	case string:
		return in.internString(val)
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return Unset, ErrUnsupportedValue.New(v, v)
		}
		return in.internNumber(f)
	}
}

// InternInto is Intern followed by registration of the returned ID in
// the named arena, for callers (function constraints) that want their
// outputs reclaimable as a batch.
func (in *Interner) InternInto(arena string, v any) (ID, error) {
	id, err := in.Intern(v)
	if err != nil {
		return Unset, err
	}
	in.Arena(arena).ids[id] = struct{}{}
	return id, nil
}

func (in *Interner) internString(s string) (ID, error) {
	if id, ok := in.strings[s]; ok {
		in.refcount[id]++
		return id, nil
	}
	id := in.allocate(s)
	in.strings[s] = id
	return id, nil
}

func (in *Interner) internNumber(f float64) (ID, error) {
	if id, ok := in.numbers[f]; ok {
		in.refcount[id]++
		return id, nil
	}
	id := in.allocate(f)
	in.numbers[f] = id
	return id, nil
}

func (in *Interner) allocate(v any) ID {
	if n := len(in.freelist); n > 0 {
		id := in.freelist[n-1]
		in.freelist = in.freelist[:n-1]
		in.raw[id] = v
		in.refcount[id] = 1
		return id
	}
	id := ID(len(in.raw))
	in.raw = append(in.raw, v)
	in.refcount = append(in.refcount, 1)
	return id
}

// Get is a lookup-only reverse mapping; it does not affect refcounts.
func (in *Interner) Get(id ID) (any, error) {
	if id == Unset || int(id) >= len(in.raw) || in.refcount[id] == 0 {
		return nil, ErrUnknownID.New(id)
	}
	return in.raw[id], nil
}

// Release decrements id's refcount; at zero it reclaims the ID and
// clears the reverse maps so a future raw value may reuse the slot.
func (in *Interner) Release(id ID) error {
	if id == Unset || int(id) >= len(in.raw) || in.refcount[id] == 0 {
		return ErrUnknownID.New(id)
	}
	in.refcount[id]--
	if in.refcount[id] > 0 {
		return nil
	}
	switch v := in.raw[id].(type) {
	case string:
		delete(in.strings, v)
	case float64:
		delete(in.numbers, v)
	}
	in.raw[id] = nil
	in.freelist = append(in.freelist, id)
	return nil
}

// ReleaseArena drains the named arena, releasing every ID it holds. Per
// the spec's open question on arena release (§9), this is never called
// automatically on the hot path: intermediate indexes may retain IDs
// that never reach the primary index, and releasing them here would
// dangle those references. Callers that accept that risk may invoke it
// explicitly.
func (in *Interner) ReleaseArena(name string) error {
	a, ok := in.arenas[name]
	if !ok {
		return nil
	}
	for id := range a.ids {
		if err := in.Release(id); err != nil {
			return err
		}
	}
	a.ids = make(map[ID]struct{})
	return nil
}
