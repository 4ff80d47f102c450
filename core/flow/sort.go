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
	"sort"
	"strconv"
	"strings"

	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/intern"
)

// Direction is a sort register's ordering direction.
type Direction int

const (
	Up Direction = iota
	Down
)

// SortKey is one register to sort by, in priority order.
type SortKey struct {
	Register  change.Register
	Direction Direction
}

// ResolveDirections pairs registers with directions, letting any trailing
// register past the end of dirs inherit the last given direction (spec
// §4.12 "trailing registers inheriting the previous direction").
func ResolveDirections(regs []change.Register, dirs []Direction) []SortKey {
	out := make([]SortKey, len(regs))
	last := Up
	for i, r := range regs {
		if i < len(dirs) {
			last = dirs[i]
		}
		out[i] = SortKey{Register: r, Direction: last}
	}
	return out
}

// Sort is a positional aggregate: it groups by GroupRegs, keeps a sorted
// membership list ordered by Keys, and emits retract+insert pairs for
// every member whose rank changes (spec §4.12). RankReg receives the
// interned rank (as a float64 value) in emitted prefixes.
type Sort struct {
	GroupRegs []change.Register
	Keys      []SortKey
	RankReg   change.Register
	Interner  *intern.Interner

	groups map[uint64]*sortGroup
}

type sortGroup struct {
	members map[string]change.Prefix
	rank    map[string]int
}

// NewSort builds an empty Sort.
func NewSort(groupRegs []change.Register, keys []SortKey, rankReg change.Register, in *intern.Interner) *Sort {
	return &Sort{GroupRegs: groupRegs, Keys: keys, RankReg: rankReg, Interner: in, groups: make(map[uint64]*sortGroup)}
}

func (s *Sort) groupFor(key uint64) *sortGroup {
	g, ok := s.groups[key]
	if !ok {
		g = &sortGroup{members: make(map[string]change.Prefix), rank: make(map[string]int)}
		s.groups[key] = g
	}
	return g
}

func memberKey(p change.Prefix) string {
	parts := make([]string, len(p.Bindings))
	for i, id := range p.Bindings {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

func (s *Sort) less(a, b change.Prefix) bool {
	for _, k := range s.Keys {
		av, bv := a.Get(k.Register), b.Get(k.Register)
		if av == bv {
			continue
		}
		cmp := s.compare(av, bv)
		if cmp == 0 {
			continue
		}
		if k.Direction == Up {
			return cmp < 0
		}
		return cmp > 0
	}
	return false
}

// compare orders two interned values by their decoded underlying value
// (numeric or lexical), not by ID assignment order — interning order has
// no relation to the domain ordering a sort register is meant to express.
// It falls back to raw ID order if either side fails to resolve.
func (s *Sort) compare(x, y intern.ID) int {
	xv, xerr := s.Interner.Get(x)
	yv, yerr := s.Interner.Get(y)
	if xerr != nil || yerr != nil {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	}
	switch xf := xv.(type) {
	case float64:
		if yf, ok := yv.(float64); ok {
			switch {
			case xf < yf:
				return -1
			case xf > yf:
				return 1
			default:
				return 0
			}
		}
	case string:
		if ys, ok := yv.(string); ok {
			return strings.Compare(xf, ys)
		}
	}
	return 0
}

// Run folds p into its group (p.Count > 0 inserts a member, <= 0 removes
// the matching one) and returns a flat retract-then-insert sequence for
// every member whose rank moved.
func (s *Sort) Run(p change.Prefix, round int) ([]change.Prefix, error) {
	gkey, err := keyOf(p, s.GroupRegs)
	if err != nil {
		return nil, err
	}
	g := s.groupFor(gkey)
	mkey := memberKey(p)

	if p.Count > 0 {
		g.members[mkey] = p
	} else {
		delete(g.members, mkey)
	}

	ordered := make([]change.Prefix, 0, len(g.members))
	for _, m := range g.members {
		ordered = append(ordered, m)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return s.less(ordered[i], ordered[j]) })

	newRank := make(map[string]int, len(ordered))
	for i, m := range ordered {
		newRank[memberKey(m)] = i
	}

	seen := make(map[string]bool)
	for k := range g.rank {
		seen[k] = true
	}
	for k := range newRank {
		seen[k] = true
	}

	var out []change.Prefix
	for k := range seen {
		oldR, hadOld := g.rank[k]
		newR, hasNew := newRank[k]
		if hadOld && hasNew && oldR == newR {
			continue
		}
		if hadOld {
			member, ok := g.members[k]
			if !ok {
				member = p // the just-removed member: p itself
			}
			retract, err := s.withRank(member, oldR, round, -1)
			if err != nil {
				return nil, err
			}
			out = append(out, retract)
		}
		if hasNew {
			insert, err := s.withRank(g.members[k], newR, round, 1)
			if err != nil {
				return nil, err
			}
			out = append(out, insert)
		}
	}
	g.rank = newRank
	return out, nil
}

func (s *Sort) withRank(p change.Prefix, rank, round int, count int64) (change.Prefix, error) {
	id, err := s.Interner.Intern(float64(rank))
	if err != nil {
		return change.Prefix{}, err
	}
	out := p.Clone()
	out.Bindings[s.RankReg] = id
	out.Round = round
	out.Count = count
	return out, nil
}
