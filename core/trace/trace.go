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

// Package trace wraps opentracing-go span creation for the transaction
// loop's three nesting levels (spec.md §5 "trace frame"): a transaction,
// the blocks it runs, and the nodes within a block.
package trace

import (
	"context"

	"github.com/opentracing/opentracing-go"
)

// Tracer starts spans for a transaction's three nesting levels. A zero
// Tracer is valid and uses opentracing.GlobalTracer(), matching the
// teacher's zero-value-is-valid configuration convention.
type Tracer struct {
	ot opentracing.Tracer
}

// New wraps an explicit opentracing.Tracer. Passing nil defers to
// opentracing.GlobalTracer() at call time.
func New(ot opentracing.Tracer) *Tracer {
	return &Tracer{ot: ot}
}

func (t *Tracer) tracer() opentracing.Tracer {
	if t != nil && t.ot != nil {
		return t.ot
	}
	return opentracing.GlobalTracer()
}

// StartTransaction opens the outermost span for transaction txn.
func (t *Tracer) StartTransaction(ctx context.Context, txn int) (opentracing.Span, context.Context) {
	span := t.tracer().StartSpan("transaction")
	span.SetTag("txn", txn)
	return span, opentracing.ContextWithSpan(ctx, span)
}

// StartBlock opens a child span for one block's execution within txn.
func (t *Tracer) StartBlock(ctx context.Context, blockName string, round int) (opentracing.Span, context.Context) {
	span, spanCtx := opentracing.StartSpanFromContextWithTracer(ctx, t.tracer(), "block")
	span.SetTag("block", blockName)
	span.SetTag("round", round)
	return span, spanCtx
}

// StartNode opens a child span for one node's dispatch within a block.
func (t *Tracer) StartNode(ctx context.Context, nodeID int, kind string) (opentracing.Span, context.Context) {
	span, spanCtx := opentracing.StartSpanFromContextWithTracer(ctx, t.tracer(), "node")
	span.SetTag("node", nodeID)
	span.SetTag("kind", kind)
	return span, spanCtx
}

// FinishWithError tags span as failed and finishes it — the transaction
// loop's "clear its trace frame" response to an export or invariant
// error (spec §7).
func FinishWithError(span opentracing.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.SetTag("error", true)
		span.LogKV("event", "error", "message", err.Error())
	}
	span.Finish()
}
