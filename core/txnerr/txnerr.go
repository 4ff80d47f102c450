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

// Package txnerr declares the runtime error taxonomy of spec.md §7.
// Compile/program errors belong to the (out-of-scope) parser/compiler;
// this package only names the errors the evaluation core itself can
// raise: fatal, per-transaction invariant violations, and export
// failures. Recoverable register-binding conflicts (spec §7) are not
// errors at all — see change.Prefix.Bind.
package txnerr

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrUndefinedField is raised when an output change would have any
	// undefined E/A/V/N slot.
	ErrUndefinedField = errors.NewKind("output change has undefined %s slot")

	// ErrNegativeAggregateTotal is raised when an aggregate's projection
	// count would go negative, which should never happen if retractions
	// are balanced by prior inserts.
	ErrNegativeAggregateTotal = errors.NewKind("aggregate projection count went negative for group %v")

	// ErrUnknownFunction is raised when a function constraint names a
	// function not present in the registry.
	ErrUnknownFunction = errors.NewKind("no function registered with name %q")

	// ErrIterationLimitExceeded is raised when a transaction exceeds the
	// maximum derivation-step budget (spec §5, default 10,000).
	ErrIterationLimitExceeded = errors.NewKind("transaction %d exceeded the iteration limit of %d derivation steps")

	// ErrFrameLimitExceeded is raised when a transaction exceeds the
	// maximum commit-frame budget (spec §5, default 10).
	ErrFrameLimitExceeded = errors.NewKind("transaction %d exceeded the frame limit of %d commit frames")

	// ErrExportFailed wraps an error raised by the external export
	// handler; it propagates out of the transaction and clears the
	// transaction's trace frame.
	ErrExportFailed = errors.NewKind("export handler failed: %v")

	// ErrUnknownBlock is raised when a block mutation names a block ID
	// that is not currently registered.
	ErrUnknownBlock = errors.NewKind("no block registered with id %d")
)
