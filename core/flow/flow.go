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

// Package flow implements the dataflow operator family of spec.md
// §4.8-4.12: binary join, antijoin, union/choose, aggregate, and sort.
// Every operator consumes and produces change.Prefix values tagged with
// round/count, mirroring the row-stream abstraction go-mysql-server's
// sql/plan nodes run over (join, group-by, sort, distinct, union as
// sibling operators over one iterator shape).
package flow

import (
	"github.com/evecore/dataflow/core/change"
	"github.com/mitchellh/hashstructure"
)

// Node is the common shape of a dataflow operator: it consumes one
// upstream Prefix and produces zero or more downstream Prefixes.
type Node interface {
	Run(p change.Prefix, round int) ([]change.Prefix, error)
}

// keyOf hashes the designated tuple of registers (spec §4.8: "a key (hash
// of a designated tuple of registers)"), using hashstructure so register
// order and ID values alone determine the key.
func keyOf(p change.Prefix, regs []change.Register) (uint64, error) {
	vals := make([]uint32, len(regs))
	for i, r := range regs {
		vals[i] = uint32(p.Get(r))
	}
	return hashstructure.Hash(vals, hashstructure.FormatV2, nil)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// merge unions two prefixes' bindings, failing if a shared register holds
// different values on each side (spec §4.8: "merge fails if a designated
// merge-register is bound to different values on the two sides").
func merge(a, b change.Prefix) (change.Prefix, bool) {
	out := a.Clone()
	for r := change.Register(0); int(r) < len(b.Bindings); r++ {
		if !b.Bound(r) {
			continue
		}
		if !out.Bind(r, b.Get(r)) {
			return change.Prefix{}, false
		}
	}
	return out, true
}
