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

// BinaryJoin maintains two keyed indexes — left and right — each mapping a
// designated-register hash to the prefixes seen at that key (spec §4.8).
// Inserting on one side immediately joins against every entry currently on
// the other side.
type BinaryJoin struct {
	LeftKey, RightKey []change.Register

	left, right map[uint64][]change.Prefix
}

// NewBinaryJoin builds an empty BinaryJoin keyed by leftKey on the left
// input and rightKey on the right input.
func NewBinaryJoin(leftKey, rightKey []change.Register) *BinaryJoin {
	return &BinaryJoin{
		LeftKey:  leftKey,
		RightKey: rightKey,
		left:     make(map[uint64][]change.Prefix),
		right:    make(map[uint64][]change.Prefix),
	}
}

// RunLeft inserts p into the left index and emits a merged prefix for
// every right entry sharing its key.
func (b *BinaryJoin) RunLeft(p change.Prefix) ([]change.Prefix, error) {
	return b.run(p, b.LeftKey, b.RightKey, &b.left, b.right)
}

// RunRight is RunLeft's mirror image for the right input.
func (b *BinaryJoin) RunRight(p change.Prefix) ([]change.Prefix, error) {
	return b.run(p, b.RightKey, b.LeftKey, &b.right, b.left)
}

func (b *BinaryJoin) run(p change.Prefix, ownKey, otherKey []change.Register, own *map[uint64][]change.Prefix, other map[uint64][]change.Prefix) ([]change.Prefix, error) {
	key, err := keyOf(p, ownKey)
	if err != nil {
		return nil, err
	}
	(*own)[key] = append((*own)[key], p)

	var out []change.Prefix
	for _, o := range other[key] {
		merged, ok := merge(p, o)
		if !ok {
			continue
		}
		merged.Round = max(p.Round, o.Round)
		merged.Count = p.Count * o.Count
		out = append(out, merged)
	}
	return out, nil
}
