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

// Package block holds the compiled-program shape of spec.md §6: a set of
// named Blocks, each an ordered node DAG over core/join, core/flow, and
// core/output, plus the Program registry that turns block add/remove into
// the synthetic BLOCK_ADD/BLOCK_REMOVE signals spec §6 describes.
package block

import (
	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/flow"
	"github.com/evecore/dataflow/core/join"
	"github.com/evecore/dataflow/core/output"
)

// NodeID is a node's position within its owning Block's Nodes slice,
// referenced by Upstream to wire the node DAG (spec §6 "each node
// references its constraints... or upstream nodes").
type NodeID int

// Kind tags which underlying node a Node wraps. Dispatch on Kind is
// static, one struct field per variant, matching the tagged-variant shape
// already used for core/constraint's Scan/Function/Move.
type Kind int

const (
	// JoinKind nodes are driven directly by input Changes (spec §4.7);
	// every other Kind is driven by its Upstream nodes' output prefixes.
	JoinKind Kind = iota
	BinaryJoinKind
	AntiJoinKind
	// AntiJoinPresolvedKind checks its left upstream against its right
	// upstream's current batch directly, instead of through an AntiJoin's
	// own incremental DistinctIndex (spec §4.9 presolved-right variant) —
	// used when a preceding node in the same dispatch already
	// materializes the right stream this round.
	AntiJoinPresolvedKind
	UnionKind
	ChooseKind
	AggregateKind
	// AggregateOuterKind nodes gate an Aggregate to tuples whose outer key
	// is currently in scope (spec §4.11 choose-nested aggregate).
	AggregateOuterKind
	SortKind
	OutputKind
	WatchKind
)

// Node is one entry in a Block's compiled node sequence. Exactly one of
// the variant fields is populated, selected by Kind.
type Node struct {
	ID   NodeID
	Kind Kind

	Join           *join.JoinNode
	Binary         *flow.BinaryJoin
	Anti           *flow.AntiJoin
	Union          *flow.Union
	Choose         *flow.Choose
	Aggregate      *flow.Aggregate
	AggregateOuter *flow.AggregateOuterLookup
	Sort           *flow.Sort
	Output         *output.Node
	Watch          *output.WatchNode

	// Upstream names the node(s) this node reads from, in declaration
	// order. A JoinKind node has no Upstream: it is seeded directly from
	// the transaction's input changes.
	Upstream []NodeID
}

// JoinNodeAt wraps j as a JoinKind node with the given id.
func JoinNodeAt(id NodeID, j *join.JoinNode) *Node {
	return &Node{ID: id, Kind: JoinKind, Join: j}
}

// BinaryJoinAt wraps b as a BinaryJoinKind node reading from left/right.
func BinaryJoinAt(id NodeID, b *flow.BinaryJoin, left, right NodeID) *Node {
	return &Node{ID: id, Kind: BinaryJoinKind, Binary: b, Upstream: []NodeID{left, right}}
}

// AntiJoinAt wraps a as an AntiJoinKind node reading from left/right.
func AntiJoinAt(id NodeID, a *flow.AntiJoin, left, right NodeID) *Node {
	return &Node{ID: id, Kind: AntiJoinKind, Anti: a, Upstream: []NodeID{left, right}}
}

// AntiJoinPresolvedAt wraps a as an AntiJoinPresolvedKind node reading
// from a left node and a right node whose current batch is used as a's
// presolved right-side snapshot (spec §4.9).
func AntiJoinPresolvedAt(id NodeID, a *flow.AntiJoin, left, right NodeID) *Node {
	return &Node{ID: id, Kind: AntiJoinPresolvedKind, Anti: a, Upstream: []NodeID{left, right}}
}

// UnionAt wraps u as a UnionKind node reading from an outer node plus one
// node per branch, outer first.
func UnionAt(id NodeID, u *flow.Union, outer NodeID, branches ...NodeID) *Node {
	return &Node{ID: id, Kind: UnionKind, Union: u, Upstream: append([]NodeID{outer}, branches...)}
}

// ChooseAt wraps c as a ChooseKind node reading from an outer node plus
// one node per branch, outer first, in priority order (spec §4.10).
func ChooseAt(id NodeID, c *flow.Choose, outer NodeID, branches ...NodeID) *Node {
	return &Node{ID: id, Kind: ChooseKind, Choose: c, Upstream: append([]NodeID{outer}, branches...)}
}

// AggregateAt wraps a as an AggregateKind node reading from upstream.
func AggregateAt(id NodeID, a *flow.Aggregate, upstream NodeID) *Node {
	return &Node{ID: id, Kind: AggregateKind, Aggregate: a, Upstream: []NodeID{upstream}}
}

// AggregateOuterAt wraps o as an AggregateOuterKind node reading from an
// outer node plus a member node, outer first: outer's prefixes toggle
// which keys are in scope, member's prefixes are the aggregate's own
// input, gated by that scope (spec §4.11).
func AggregateOuterAt(id NodeID, o *flow.AggregateOuterLookup, outer, member NodeID) *Node {
	return &Node{ID: id, Kind: AggregateOuterKind, AggregateOuter: o, Upstream: []NodeID{outer, member}}
}

// SortAt wraps s as a SortKind node reading from upstream.
func SortAt(id NodeID, s *flow.Sort, upstream NodeID) *Node {
	return &Node{ID: id, Kind: SortKind, Sort: s, Upstream: []NodeID{upstream}}
}

// OutputAt wraps o as an OutputKind node reading from upstream.
func OutputAt(id NodeID, o *output.Node, upstream NodeID) *Node {
	return &Node{ID: id, Kind: OutputKind, Output: o, Upstream: []NodeID{upstream}}
}

// WatchAt wraps w as a WatchKind node reading from upstream.
func WatchAt(id NodeID, w *output.WatchNode, upstream NodeID) *Node {
	return &Node{ID: id, Kind: WatchKind, Watch: w, Upstream: []NodeID{upstream}}
}

// Block is one compiled rule: a name, a total register count local to its
// Nodes, and the ordered node sequence itself (spec §6).
type Block struct {
	Name         string
	NumRegisters int
	Nodes        []*Node
}

// New builds a Block from a name, register count, and nodes in
// declaration order.
func New(name string, numRegisters int, nodes ...*Node) *Block {
	return &Block{Name: name, NumRegisters: numRegisters, Nodes: nodes}
}

// NodeByID returns the node with the given ID, or false if absent.
func (b *Block) NodeByID(id NodeID) (*Node, bool) {
	for _, n := range b.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// JoinNodes returns every JoinKind node, in declaration order — the set
// of entry points an ordinary input change or a BLOCK_ADD/BLOCK_REMOVE
// signal is run against directly.
func (b *Block) JoinNodes() []*Node {
	var out []*Node
	for _, n := range b.Nodes {
		if n.Kind == JoinKind {
			out = append(out, n)
		}
	}
	return out
}

// OutputNodes returns every OutputKind node, in declaration order.
func (b *Block) OutputNodes() []*Node {
	var out []*Node
	for _, n := range b.Nodes {
		if n.Kind == OutputKind {
			out = append(out, n)
		}
	}
	return out
}

// WatchNodes returns every WatchKind node, in declaration order.
func (b *Block) WatchNodes() []*Node {
	var out []*Node
	for _, n := range b.Nodes {
		if n.Kind == WatchKind {
			out = append(out, n)
		}
	}
	return out
}

// Program is the running set of compiled Blocks, keyed by the block ID
// that output.Node.BlockID and change.Change.BlockID reference (spec §6
// "exported changes are grouped per source block ID").
type Program struct {
	Blocks map[int]*Block
	nextID int
}

// NewProgram returns an empty Program.
func NewProgram() *Program {
	return &Program{Blocks: make(map[int]*Block)}
}

// AddBlock registers b under a new block ID and returns that ID alongside
// the synthetic BLOCK_ADD signal changes (spec §6 "Program mutation") —
// one empty-prefix, count +1 signal per JoinKind node in b, which the
// caller (core/txn) runs through the block to compute its initial
// contributions against the current store.
func (p *Program) AddBlock(b *Block) (int, []change.Change) {
	id := p.nextID
	p.nextID++
	p.Blocks[id] = b
	return id, signalChanges(id, b, change.SignalBlockAdd, 1)
}

// RemoveBlock deletes the block at id and returns the synthetic
// BLOCK_REMOVE signal changes (count −1) needed to retract its
// contributions before the caller drops it from the evaluation context.
// Reports false if id is not a live block.
func (p *Program) RemoveBlock(id int) ([]change.Change, bool) {
	b, ok := p.Blocks[id]
	if !ok {
		return nil, false
	}
	changes := signalChanges(id, b, change.SignalBlockRemove, -1)
	delete(p.Blocks, id)
	return changes, true
}

func signalChanges(blockID int, b *Block, sig change.Signal, count int64) []change.Change {
	joins := b.JoinNodes()
	out := make([]change.Change, len(joins))
	for i := range joins {
		out[i] = change.Change{Count: count, BlockID: blockID, Signal: sig}
	}
	return out
}
