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

func TestRegisterBuiltinsArithmetic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))

	add, ok := r.Lookup("+")
	require.True(t, ok)
	out, err := add.Call([]any{2.0, 3.0})
	require.NoError(t, err)
	require.Equal(t, []any{5.0}, out)

	lt, ok := r.Lookup("<")
	require.True(t, ok)
	require.True(t, lt.IsFilter())
	ok2, err := lt.Filter([]any{2.0, 3.0})
	require.NoError(t, err)
	require.True(t, ok2)
}

func TestRegisterBuiltinsConcat(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))

	concat, ok := r.Lookup("concat")
	require.True(t, ok)
	out, err := concat.Call([]any{"foo", "bar"})
	require.NoError(t, err)
	require.Equal(t, []any{"foobar"}, out)
}

func TestRegisterBuiltinsRejectsDoubleBootstrap(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r))
	err := RegisterBuiltins(r)
	require.Error(t, err)
	require.True(t, ErrAlreadyRegistered.Is(err))
}
