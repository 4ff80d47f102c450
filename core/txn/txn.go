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

package txn

import (
	"context"
	"sort"

	"github.com/evecore/dataflow/core/block"
	"github.com/evecore/dataflow/core/change"
	"github.com/evecore/dataflow/core/index"
	"github.com/evecore/dataflow/core/output"
	"github.com/evecore/dataflow/core/trace"
	"github.com/evecore/dataflow/core/txnerr"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"
)

// RunTransaction interns raws at the system boundary and runs them to a
// settled fixpoint (spec §6 "Triple input"), returning every externally
// visible export change, grouped by source block ID.
func (ctx *EvalContext) RunTransaction(raws []change.RawChange) (map[int][]change.Change, error) {
	seed, err := ctx.internRaws(raws)
	if err != nil {
		return nil, err
	}
	return ctx.runTransaction(seed)
}

// AddBlock registers b with the Program and runs the synthetic BLOCK_ADD
// signals to a settled fixpoint, seeding the block's initial contribution
// against the current store (spec §6 "Program mutation").
func (ctx *EvalContext) AddBlock(b *block.Block) (int, map[int][]change.Change, error) {
	id, signals := ctx.Program.AddBlock(b)
	exports, err := ctx.runTransaction(signals)
	return id, exports, err
}

// RemoveBlock runs the synthetic BLOCK_REMOVE signals to retract id's
// contributions, then drops it from the Program.
func (ctx *EvalContext) RemoveBlock(id int) (map[int][]change.Change, error) {
	b, ok := ctx.Program.Blocks[id]
	if !ok {
		return nil, txnerr.ErrUnknownBlock.New(id)
	}
	signals, _ := ctx.Program.RemoveBlock(id)
	ctx.Program.Blocks[id] = b // dispatch skips unknown blocks, so keep it while its signals run
	exports, err := ctx.runTransaction(signals)
	delete(ctx.Program.Blocks, id)
	return exports, err
}

func (ctx *EvalContext) internRaws(raws []change.RawChange) ([]change.Change, error) {
	out := make([]change.Change, len(raws))
	for i, r := range raws {
		e, err := ctx.Interner.Intern(r.E)
		if err != nil {
			return nil, err
		}
		a, err := ctx.Interner.Intern(r.A)
		if err != nil {
			return nil, err
		}
		v, err := ctx.Interner.Intern(r.V)
		if err != nil {
			return nil, err
		}
		n, err := ctx.Interner.Intern(r.N)
		if err != nil {
			return nil, err
		}
		out[i] = change.Change{E: e, A: a, V: v, N: n, Round: r.Round, Count: r.Count}
	}
	return out, nil
}

// runTransaction is the shared frame/round fixpoint loop behind
// RunTransaction, AddBlock, and RemoveBlock: it assigns the next
// transaction id, drives frames until no more commits are promoted,
// retracts every bind this transaction made (binds are visible only
// within the issuing transaction, spec §6), and folds every emitted
// change into the persistent export collapse.
func (ctx *EvalContext) runTransaction(seed []change.Change) (map[int][]change.Change, error) {
	txn := ctx.nextTxnID
	ctx.nextTxnID++

	id := uuid.NewV4()
	log := ctx.logger().WithFields(logrus.Fields{"txn": txn, "correlation_id": id.String()})
	span, spanCtx := ctx.tracer().StartTransaction(context.Background(), txn)

	exports, err := ctx.run(txn, seed, spanCtx, log)
	trace.FinishWithError(span, err)
	if err != nil {
		log.WithError(err).Warn("transaction aborted")
		return nil, err
	}
	return exports, nil
}

func (ctx *EvalContext) run(txn int, seed []change.Change, spanCtx context.Context, log *logrus.Entry) (map[int][]change.Change, error) {
	steps := 0
	frame := 0
	pending := seed

	var allInserted []change.Change // everything inserted this txn, for abort rollback
	var allBinds []change.Change    // bind-only inserts, retracted at the end regardless of outcome

	for {
		if frame >= ctx.Config.MaxFrames {
			err := txnerr.ErrFrameLimitExceeded.New(txn, ctx.Config.MaxFrames)
			ctx.retractAll(txn, allInserted)
			return nil, err
		}

		blockSpan, _ := ctx.tracer().StartBlock(spanCtx, "frame", frame)
		frameLog := log.WithField("frame", frame)

		frameCommits, frameBinds, err := ctx.runFrame(txn, pending, &steps, frameLog)
		trace.FinishWithError(blockSpan, err)
		if err != nil {
			ctx.retractAll(txn, append(allInserted, frameBinds...))
			return nil, err
		}
		allInserted = append(allInserted, frameBinds...)
		allBinds = append(allBinds, frameBinds...)

		frameLog.WithFields(logrus.Fields{"commits": len(frameCommits), "steps": steps}).Debug("frame settled")

		if len(frameCommits) == 0 {
			break
		}

		seedNext, commitInserted := ctx.collapseCommits(txn, frameCommits)
		allInserted = append(allInserted, commitInserted...)
		pending = seedNext
		frame++
	}

	ctx.retractAll(txn, allBinds)
	return ctx.exports.commitTxn(), nil
}

// runFrame processes pending (the frame's round-0 seed) to a round-wise
// fixpoint within one frame: each round's binds are folded through a
// fresh, frame-scoped DistinctIndex before being inserted and
// requeued, while commits accumulate raw across every round of the frame
// for the caller to collapse at the frame boundary (spec §6).
func (ctx *EvalContext) runFrame(txn int, pending []change.Change, steps *int, log *logrus.Entry) (frameCommits, bindsInserted []change.Change, err error) {
	bindDistinct := index.NewDistinctIndex()
	bindRepr := make(map[index.DistinctKey]change.Change)
	round := 0

	for len(pending) > 0 {
		for _, in := range pending {
			*steps++
			if *steps > ctx.Config.MaxIterations {
				return nil, bindsInserted, txnerr.ErrIterationLimitExceeded.New(txn, ctx.Config.MaxIterations)
			}

			binds, commits, derr := ctx.dispatch(txn, round, in, log)
			if derr != nil {
				return nil, bindsInserted, derr
			}
			frameCommits = append(frameCommits, commits...)
			for _, c := range commits {
				ctx.exports.stage(c.BlockID, c)
			}
			for _, c := range binds {
				ctx.exports.stage(c.BlockID, c)
				key := index.KeyOf(c.E, c.A, c.V, c.N)
				bindRepr[key] = c
				bindDistinct.Add(key, round, c.Count)
			}
		}

		var nextPending []change.Change
		for _, t := range bindDistinct.SettleAll() {
			tmpl := bindRepr[t.Key]
			ins := change.Change{E: tmpl.E, A: tmpl.A, V: tmpl.V, N: tmpl.N, Transaction: txn, Round: t.Round, Count: t.Count}
			ctx.Index.Insert(ins)
			bindsInserted = append(bindsInserted, ins)
			nextPending = append(nextPending, ins)
		}

		pending = nextPending
		round++
	}

	return frameCommits, bindsInserted, nil
}

// collapseCommits folds one frame's raw commit emissions through a fresh
// DistinctIndex keyed on the full fact, promoting survivors into the next
// frame's round-0 seed at a Saturated multiplicity (spec §6 "commit
// collapse").
func (ctx *EvalContext) collapseCommits(txn int, commits []change.Change) (seed, inserted []change.Change) {
	d := index.NewDistinctIndex()
	repr := make(map[index.DistinctKey]change.Change)
	for _, c := range commits {
		key := index.KeyOf(c.E, c.A, c.V, c.N)
		repr[key] = c
		d.Add(key, 0, c.Count)
	}
	for _, t := range d.SettleAll() {
		tmpl := repr[t.Key]
		ins := change.Change{E: tmpl.E, A: tmpl.A, V: tmpl.V, N: tmpl.N, Transaction: txn, Round: 0, Count: t.Count * Saturated}
		ctx.Index.Insert(ins)
		inserted = append(inserted, ins)
		seed = append(seed, ins)
	}
	return seed, inserted
}

// retractAll inserts a negation for every entry (same Transaction id, same
// Round, negated Count). Because index.entry.before treats any strictly
// earlier transaction as unconditionally visible regardless of round,
// this permanently cancels an entry's visibility for every future
// transaction while leaving its effect on txn's own already-completed
// evaluation untouched — exactly the "binds visible only within the
// issuing transaction" rule (spec §6), and also this transaction's abort
// rollback.
func (ctx *EvalContext) retractAll(txn int, entries []change.Change) {
	for _, e := range entries {
		ctx.Index.Insert(change.Change{E: e.E, A: e.A, V: e.V, N: e.N, Transaction: txn, Round: e.Round, Count: -e.Count})
	}
}

// dispatch runs one input change against the program: a BLOCK_ADD/
// BLOCK_REMOVE signal only runs against the block it names (spec §4.7),
// an ordinary change runs against every block, since nothing scopes an
// arbitrary triple change to one rule ahead of time.
func (ctx *EvalContext) dispatch(txn, round int, in change.Change, log *logrus.Entry) (binds, commits []change.Change, err error) {
	if in.Signal != change.SignalNone {
		b, ok := ctx.Program.Blocks[in.BlockID]
		if !ok {
			return nil, nil, nil
		}
		return ctx.dispatchBlock(b, in.BlockID, txn, round, in, log)
	}

	ids := make([]int, 0, len(ctx.Program.Blocks))
	for id := range ctx.Program.Blocks {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		bb, cc, derr := ctx.dispatchBlock(ctx.Program.Blocks[id], id, txn, round, in, log)
		if derr != nil {
			return nil, nil, derr
		}
		binds = append(binds, bb...)
		commits = append(commits, cc...)
	}
	return binds, commits, nil
}

// dispatchBlock runs in through b's node DAG in declaration order. Nodes
// are assumed declared after every node they read from (block.New's
// caller is responsible for that ordering, mirroring a compiled rule's
// natural topological layout): a node's Upstream results are always
// already present in prefixByNode/changeByNode by the time it runs.
func (ctx *EvalContext) dispatchBlock(b *block.Block, blockID int, txn, round int, in change.Change, log *logrus.Entry) (binds, commits []change.Change, err error) {
	prefixByNode := make(map[block.NodeID][]change.Prefix)
	changeByNode := make(map[block.NodeID][]change.Change)

	for _, n := range b.Nodes {
		switch n.Kind {
		case block.JoinKind:
			if in.Signal != change.SignalNone && in.BlockID != blockID {
				continue
			}
			prefixes, e := n.Join.Run(in, txn, round)
			if e != nil {
				return nil, nil, e
			}
			prefixByNode[n.ID] = prefixes

		case block.BinaryJoinKind:
			var out []change.Prefix
			for _, p := range prefixByNode[n.Upstream[0]] {
				r, e := n.Binary.RunLeft(p)
				if e != nil {
					return nil, nil, e
				}
				out = append(out, r...)
			}
			for _, p := range prefixByNode[n.Upstream[1]] {
				r, e := n.Binary.RunRight(p)
				if e != nil {
					return nil, nil, e
				}
				out = append(out, r...)
			}
			prefixByNode[n.ID] = out

		case block.AntiJoinKind:
			var out []change.Prefix
			for _, p := range prefixByNode[n.Upstream[0]] {
				r, e := n.Anti.RunLeft(p)
				if e != nil {
					return nil, nil, e
				}
				out = append(out, r...)
			}
			for _, p := range prefixByNode[n.Upstream[1]] {
				r, e := n.Anti.RunRight(p)
				if e != nil {
					return nil, nil, e
				}
				out = append(out, r...)
			}
			prefixByNode[n.ID] = out

		case block.AntiJoinPresolvedKind:
			rightNow := prefixByNode[n.Upstream[1]]
			var out []change.Prefix
			for _, p := range prefixByNode[n.Upstream[0]] {
				r, e := n.Anti.RunLeftPresolved(p, rightNow)
				if e != nil {
					return nil, nil, e
				}
				out = append(out, r...)
			}
			prefixByNode[n.ID] = out

		case block.UnionKind:
			var out []change.Prefix
			for _, p := range prefixByNode[n.Upstream[0]] {
				r, e := n.Union.RunLeft(p)
				if e != nil {
					return nil, nil, e
				}
				out = append(out, r...)
			}
			for i, up := range n.Upstream[1:] {
				for _, p := range prefixByNode[up] {
					r, e := n.Union.RunBranch(i, p)
					if e != nil {
						return nil, nil, e
					}
					out = append(out, r...)
				}
			}
			prefixByNode[n.ID] = out

		case block.ChooseKind:
			var out []change.Prefix
			for _, p := range prefixByNode[n.Upstream[0]] {
				r, e := n.Choose.RunLeft(p)
				if e != nil {
					return nil, nil, e
				}
				out = append(out, r...)
			}
			for i, up := range n.Upstream[1:] {
				for _, p := range prefixByNode[up] {
					r, e := n.Choose.RunBranch(i, p)
					if e != nil {
						return nil, nil, e
					}
					out = append(out, r...)
				}
			}
			prefixByNode[n.ID] = out

		case block.AggregateKind:
			var out []change.Prefix
			for _, p := range prefixByNode[n.Upstream[0]] {
				r, e := n.Aggregate.Run(p, round)
				if e != nil {
					return nil, nil, e
				}
				out = append(out, r...)
			}
			prefixByNode[n.ID] = out

		case block.AggregateOuterKind:
			for _, p := range prefixByNode[n.Upstream[0]] {
				var e error
				if p.Count > 0 {
					e = n.AggregateOuter.AddOuter(p)
				} else {
					e = n.AggregateOuter.RemoveOuter(p)
				}
				if e != nil {
					return nil, nil, e
				}
			}
			var out []change.Prefix
			for _, p := range prefixByNode[n.Upstream[1]] {
				r, e := n.AggregateOuter.Run(p, round)
				if e != nil {
					return nil, nil, e
				}
				out = append(out, r...)
			}
			prefixByNode[n.ID] = out

		case block.SortKind:
			var out []change.Prefix
			for _, p := range prefixByNode[n.Upstream[0]] {
				r, e := n.Sort.Run(p, round)
				if e != nil {
					return nil, nil, e
				}
				out = append(out, r...)
			}
			prefixByNode[n.ID] = out

		case block.OutputKind:
			var emitted []change.Change
			for _, p := range prefixByNode[n.Upstream[0]] {
				c, e := n.Output.Emit(p)
				if e != nil {
					return nil, nil, e
				}
				expanded := output.Expand(ctx.Index, c, txn, round)
				emitted = append(emitted, expanded...)
				if n.Output.Kind.IsCommit() {
					commits = append(commits, expanded...)
				} else {
					binds = append(binds, expanded...)
				}
			}
			changeByNode[n.ID] = emitted

		case block.WatchKind:
			cs := changeByNode[n.Upstream[0]]
			if len(cs) == 0 {
				continue
			}
			if e := n.Watch.Fire(cs); e != nil {
				werr := txnerr.ErrExportFailed.New(e)
				log.WithError(werr).Warn("watch handler failed")
				return nil, nil, werr
			}
		}
	}
	return binds, commits, nil
}
