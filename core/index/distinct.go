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

package index

import (
	"sort"

	"github.com/evecore/dataflow/core/intern"
)

// DistinctKey identifies one tracked fact for distinct reduction. It is
// usually (e,a,v,n) but callers of Distinct (antijoin, aggregate,
// core/txn) key on whatever tuple they group by, so the key type is left
// generic as a string built by the caller: core/txn uses KeyOf, the flow
// operators a formatted register-tuple hash.
type DistinctKey string

// KeyOf packs an ID tuple into a DistinctKey. It is not meant to be
// human-readable, only unique and stable per distinct tuple of IDs.
func KeyOf(ids ...intern.ID) DistinctKey {
	b := make([]byte, 0, len(ids)*5)
	for _, id := range ids {
		b = append(b,
			byte(id>>24), byte(id>>16), byte(id>>8), byte(id), '|')
	}
	return DistinctKey(b)
}

// DistinctIndex converts a bag stream (possibly carrying negative
// counts) into a set-semantics stream: per key, per round, it tracks the
// running count and reports a +1 on a 0→positive transition and a −1 on
// a positive→0 transition (spec §4.3). This is what makes recursive
// rules sound — duplicate derivations never amplify a count, and a
// retraction retracts exactly the round at which the fact first
// appeared.
type DistinctIndex struct {
	// pending[key] accumulates round -> delta for contributions not yet
	// folded into running.
	pending map[DistinctKey]map[int]int64
	running map[DistinctKey]int64
	// firstPositiveRound remembers, per key, the round at which running
	// last transitioned to positive — emitted as the paired retract round
	// when it later falls back to zero, so a retraction always cites the
	// round the fact first appeared rather than the round it ended.
	firstPositiveRound map[DistinctKey]int
}

// NewDistinctIndex returns an empty DistinctIndex.
func NewDistinctIndex() *DistinctIndex {
	return &DistinctIndex{
		pending:            make(map[DistinctKey]map[int]int64),
		running:            make(map[DistinctKey]int64),
		firstPositiveRound: make(map[DistinctKey]int),
	}
}

// Transition is one set-semantics event: key toggled to present (Count
// == +1, at Round) or toggled to absent (Count == -1, at the Round it
// had first become present).
type Transition struct {
	Key   DistinctKey
	Round int
	Count int64 // always +1 or -1
}

// Add records a bag-delta contribution for key at round with the given
// signed count. It does not yet fold the delta into the running total —
// call Settle once all of a round's contributions for key have arrived.
func (d *DistinctIndex) Add(key DistinctKey, round int, count int64) {
	m, ok := d.pending[key]
	if !ok {
		m = make(map[int]int64)
		d.pending[key] = m
	}
	m[round] += count
}

// Settle folds every pending contribution for key into the running
// total, in round order, and returns the (possibly empty) sequence of
// presence transitions that resulted.
func (d *DistinctIndex) Settle(key DistinctKey) []Transition {
	m := d.pending[key]
	if len(m) == 0 {
		return nil
	}
	delete(d.pending, key)

	rounds := make([]int, 0, len(m))
	for r := range m {
		rounds = append(rounds, r)
	}
	sort.Ints(rounds)

	var out []Transition
	running := d.running[key]
	for _, r := range rounds {
		before := running
		running += m[r]
		switch {
		case before <= 0 && running > 0:
			d.firstPositiveRound[key] = r
			out = append(out, Transition{Key: key, Round: r, Count: 1})
		case before > 0 && running <= 0:
			out = append(out, Transition{Key: key, Round: d.firstPositiveRound[key], Count: -1})
		}
	}
	d.running[key] = running
	return out
}

// SettleAll folds every key with pending contributions and returns all
// resulting transitions, keys processed in a stable (sorted) order so
// output is deterministic across runs.
func (d *DistinctIndex) SettleAll() []Transition {
	keys := make([]DistinctKey, 0, len(d.pending))
	for k := range d.pending {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out []Transition
	for _, k := range keys {
		out = append(out, d.Settle(k)...)
	}
	return out
}

// Present reports whether key currently holds net-positive.
func (d *DistinctIndex) Present(key DistinctKey) bool {
	return d.running[key] > 0
}

// Running returns key's current settled total. A caller that folds a
// bag of retractions no insert ever balanced will see this go negative
// — callers for whom that is a fatal invariant violation (spec §7)
// check it themselves; DistinctIndex itself only tracks the number.
func (d *DistinctIndex) Running(key DistinctKey) int64 {
	return d.running[key]
}
