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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	def := &Def{Name: "double", ArgNames: []string{"a"}, ReturnNames: []string{"b"}}
	require.NoError(t, r.Register(def))

	got, ok := r.Lookup("double")
	require.True(t, ok)
	require.Same(t, def, got)

	_, ok = r.Lookup("missing")
	require.False(t, ok)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Def{Name: "f"}))

	err := r.Register(&Def{Name: "f"})
	require.Error(t, err)
	require.True(t, ErrAlreadyRegistered.Is(err))
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&Def{Name: "f"})

	require.Panics(t, func() {
		r.MustRegister(&Def{Name: "f"})
	})
}

func TestIsFilter(t *testing.T) {
	filter := &Def{Name: "pred"}
	require.True(t, filter.IsFilter())

	fn := &Def{Name: "f", ReturnNames: []string{"out"}}
	require.False(t, fn.IsFilter())
}
