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
)

// AntiJoin emits left prefixes only while no right prefix with the same
// key currently dominates (spec §4.9). The right side is tracked through
// an index.DistinctIndex acting as the ZeroingIterator: it reports only
// the rounds on which the right side's presence at a key actually
// transitioned between empty and non-empty, not every raw delta.
type AntiJoin struct {
	Key []change.Register

	left  map[uint64][]change.Prefix
	right *index.DistinctIndex
}

// NewAntiJoin builds an AntiJoin keyed by key.
func NewAntiJoin(key []change.Register) *AntiJoin {
	return &AntiJoin{
		Key:   key,
		left:  make(map[uint64][]change.Prefix),
		right: index.NewDistinctIndex(),
	}
}

func distinctKey(k uint64) index.DistinctKey {
	return index.DistinctKey(strconv.FormatUint(k, 36))
}

// RunLeft emits p unless the right side currently dominates its key, and
// remembers p either way so a later right-side transition can retroactively
// negate or re-admit it.
func (a *AntiJoin) RunLeft(p change.Prefix) ([]change.Prefix, error) {
	key, err := keyOf(p, a.Key)
	if err != nil {
		return nil, err
	}
	a.left[key] = append(a.left[key], p)
	if a.right.Present(distinctKey(key)) {
		return nil, nil
	}
	return []change.Prefix{p}, nil
}

// RunRight folds a right-side delta into the ZeroingIterator and, on a
// presence transition, retroactively negates (0→positive) or re-admits
// (positive→0) every remembered left prefix at that key.
func (a *AntiJoin) RunRight(p change.Prefix) ([]change.Prefix, error) {
	key, err := keyOf(p, a.Key)
	if err != nil {
		return nil, err
	}
	dk := distinctKey(key)
	a.right.Add(dk, p.Round, p.Count)
	transitions := a.right.Settle(dk)

	var out []change.Prefix
	for _, t := range transitions {
		for _, lp := range a.left[key] {
			emitted := lp.Clone()
			emitted.Round = max(lp.Round, t.Round)
			if t.Count > 0 {
				emitted.Count = -lp.Count // right became present: negate
			} else {
				emitted.Count = lp.Count // right became absent: re-admit
			}
			out = append(out, emitted)
		}
	}
	return out, nil
}

// RunLeftPresolved checks p against an already-materialized right-side
// snapshot instead of the node's own incremental index — used when a
// preceding operator already exposed the right stream in this node's
// local results (spec §4.9 "presolved-right variant").
func (a *AntiJoin) RunLeftPresolved(p change.Prefix, rightNow []change.Prefix) ([]change.Prefix, error) {
	key, err := keyOf(p, a.Key)
	if err != nil {
		return nil, err
	}
	for _, rp := range rightNow {
		rk, err := keyOf(rp, a.Key)
		if err != nil {
			return nil, err
		}
		if rk == key {
			return nil, nil
		}
	}
	return []change.Prefix{p}, nil
}
