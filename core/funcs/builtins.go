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

package funcs

import (
	"strings"

	"github.com/spf13/cast"
)

func numArgs(args []any) (float64, float64, error) {
	a, err := cast.ToFloat64E(args[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := cast.ToFloat64E(args[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// RegisterBuiltins adds the small set of arithmetic, comparison, and
// string functions every rule set is expected to have available without
// its own bootstrap (spec.md §6 "Function registry... registered by
// name at startup").
func RegisterBuiltins(r *Registry) error {
	defs := []*Def{
		{
			Name: "+", ArgNames: []string{"a", "b"}, ReturnNames: []string{"sum"},
			Call: func(args []any) ([]any, error) {
				a, b, err := numArgs(args)
				if err != nil {
					return nil, err
				}
				return []any{a + b}, nil
			},
		},
		{
			Name: "-", ArgNames: []string{"a", "b"}, ReturnNames: []string{"diff"},
			Call: func(args []any) ([]any, error) {
				a, b, err := numArgs(args)
				if err != nil {
					return nil, err
				}
				return []any{a - b}, nil
			},
		},
		{
			Name: "*", ArgNames: []string{"a", "b"}, ReturnNames: []string{"product"},
			Call: func(args []any) ([]any, error) {
				a, b, err := numArgs(args)
				if err != nil {
					return nil, err
				}
				return []any{a * b}, nil
			},
		},
		{
			Name: "/", ArgNames: []string{"a", "b"}, ReturnNames: []string{"quotient"},
			Call: func(args []any) ([]any, error) {
				a, b, err := numArgs(args)
				if err != nil {
					return nil, err
				}
				return []any{a / b}, nil
			},
		},
		{
			Name: "concat", ArgNames: []string{"a", "b"}, ReturnNames: []string{"result"},
			Call: func(args []any) ([]any, error) {
				a, err := cast.ToStringE(args[0])
				if err != nil {
					return nil, err
				}
				b, err := cast.ToStringE(args[1])
				if err != nil {
					return nil, err
				}
				return []any{a + b}, nil
			},
		},
		{
			Name: "<", ArgNames: []string{"a", "b"},
			Filter: func(args []any) (bool, error) {
				a, b, err := numArgs(args)
				if err != nil {
					return false, err
				}
				return a < b, nil
			},
		},
		{
			Name: ">", ArgNames: []string{"a", "b"},
			Filter: func(args []any) (bool, error) {
				a, b, err := numArgs(args)
				if err != nil {
					return false, err
				}
				return a > b, nil
			},
		},
		{
			Name: "!=", ArgNames: []string{"a", "b"},
			Filter: func(args []any) (bool, error) {
				return args[0] != args[1], nil
			},
		},
		{
			Name: "contains", ArgNames: []string{"haystack", "needle"},
			Filter: func(args []any) (bool, error) {
				haystack, err := cast.ToStringE(args[0])
				if err != nil {
					return false, err
				}
				needle, err := cast.ToStringE(args[1])
				if err != nil {
					return false, err
				}
				return strings.Contains(haystack, needle), nil
			},
		},
	}

	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
