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

import "github.com/evecore/dataflow/core/change"

// Union runs a left (outer) node against a set of branches, each wrapped
// as a BinaryJoin of the branch against the left on the branch's key
// registers (spec §4.10). RunLeft feeds an outer change to every branch;
// RunBranch feeds one branch's own change back against the accumulated
// left history.
type Union struct {
	Branches []*BinaryJoin
}

// NewUnion builds a Union over branches, each keyed by its own (branchKey,
// leftKey) pair.
func NewUnion(branches ...*BinaryJoin) *Union {
	return &Union{Branches: branches}
}

// RunLeft runs the outer change through every branch's left side.
func (u *Union) RunLeft(p change.Prefix) ([]change.Prefix, error) {
	var all []change.Prefix
	for _, b := range u.Branches {
		out, err := b.RunLeft(p)
		if err != nil {
			return nil, err
		}
		all = append(all, out...)
	}
	return all, nil
}

// RunBranch runs a change local to branch i through that branch's right
// side, joining it against every left prefix already seen.
func (u *Union) RunBranch(i int, p change.Prefix) ([]change.Prefix, error) {
	return u.Branches[i].RunRight(p)
}

// Choose layers exclusivity onto Union: branch i (i>0) only contributes a
// tuple if no strictly-earlier branch already claimed the same key (spec
// §4.10 "attributed to the first branch whose body matches"). claims is a
// single AntiJoin shared across every later branch, keyed on the union of
// all branches' key registers, matching the spec's "the antijoin uses the
// union of all branches' key registers".
type Choose struct {
	Union  *Union
	claims *AntiJoin
}

// NewChoose builds a Choose over branches sharing claimKey as the
// exclusivity key.
func NewChoose(claimKey []change.Register, branches ...*BinaryJoin) *Choose {
	return &Choose{
		Union:  NewUnion(branches...),
		claims: NewAntiJoin(claimKey),
	}
}

// RunLeft mirrors Union.RunLeft; Choose does not filter the outer side.
func (c *Choose) RunLeft(p change.Prefix) ([]change.Prefix, error) {
	return c.Union.RunLeft(p)
}

// RunBranch runs branch i, then (for i>0) prunes every candidate already
// claimed by an earlier branch and registers its survivors as new claims
// so branch i+1 also excludes them.
func (c *Choose) RunBranch(i int, p change.Prefix) ([]change.Prefix, error) {
	candidates, err := c.Union.RunBranch(i, p)
	if err != nil {
		return nil, err
	}
	if i == 0 {
		for _, cand := range candidates {
			if _, err := c.claims.RunRight(cand); err != nil {
				return nil, err
			}
		}
		return candidates, nil
	}

	var out []change.Prefix
	for _, cand := range candidates {
		survived, err := c.claims.RunLeft(cand)
		if err != nil {
			return nil, err
		}
		if len(survived) == 0 {
			continue
		}
		out = append(out, survived...)
		if _, err := c.claims.RunRight(cand); err != nil {
			return nil, err
		}
	}
	return out, nil
}
