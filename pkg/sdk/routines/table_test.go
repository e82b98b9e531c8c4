// SPDX-License-Identifier: Apache-2.0
/*
Copyright (C) 2024 The Falco Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package routines

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor(name string, kinds ...sdk.ValueKind) Descriptor {
	return Descriptor{
		Name:       name,
		Arity:      len(kinds),
		ArgKinds:   kinds,
		ReturnKind: sdk.KindText,
		Entry: func(args []any) (any, error) {
			return name, nil
		},
	}
}

func TestTableRegisterLookup(t *testing.T) {
	tab := NewTable()
	d := testDescriptor("r_all_tuples", sdk.KindInteger, sdk.KindList)
	require.NoError(t, tab.Register(d))

	res, err := tab.Lookup("r_all_tuples")
	require.NoError(t, err)
	assert.Equal(t, d.Name, res.Name)
	assert.Equal(t, d.ArgKinds, res.ArgKinds)
	assert.Equal(t, 2, res.Arity)

	_, err = tab.Lookup("missing")
	assert.True(t, errors.Is(err, sdk.ErrNotFound))
}

func TestTableDescriptorIsCopied(t *testing.T) {
	tab := NewTable()
	kinds := []sdk.ValueKind{sdk.KindInteger}
	require.NoError(t, tab.Register(testDescriptor("f", kinds...)))
	kinds[0] = sdk.KindText

	res, err := tab.Lookup("f")
	require.NoError(t, err)
	assert.Equal(t, sdk.KindInteger, res.ArgKinds[0])
}

func TestTableDuplicateName(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "dup", "dup"}
	var expected []string
	for i := 0; i < 50; i++ {
		perm := append([]string(nil), names...)
		rand.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })

		tab := NewTable()
		dups := 0
		for _, name := range perm {
			if err := tab.Register(testDescriptor(name)); err != nil {
				require.True(t, errors.Is(err, sdk.ErrDuplicateName), "order %v: %s", perm, err)
				dups++
			}
		}
		assert.Equal(t, 1, dups, "order %v", perm)
		if expected == nil {
			expected = tab.Names()
		}
		assert.Equal(t, expected, tab.Names(), "order %v", perm)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "dup", "e"}, expected)
}

func TestTableInvalidDescriptor(t *testing.T) {
	noEntry := testDescriptor("f")
	noEntry.Entry = nil
	badArity := testDescriptor("f", sdk.KindInteger)
	badArity.Arity = 2
	badKind := testDescriptor("f", sdk.ValueKind(99))
	badReturn := testDescriptor("f")
	badReturn.ReturnKind = sdk.ValueKind(99)

	tests := map[string]Descriptor{
		"empty-name": testDescriptor(""),
		"no-entry":   noEntry,
		"bad-arity":  badArity,
		"bad-kind":   badKind,
		"bad-return": badReturn,
	}
	for name, d := range tests {
		t.Run(name, func(t *testing.T) {
			err := NewTable().Register(d)
			assert.True(t, errors.Is(err, sdk.ErrInvalidDescriptor), "unexpected error: %v", err)
		})
	}
}

func TestTableFreeze(t *testing.T) {
	tab := NewTable()
	require.NoError(t, tab.Register(testDescriptor("f")))
	tab.Freeze()
	tab.Freeze()
	assert.True(t, tab.Frozen())

	err := tab.Register(testDescriptor("g"))
	assert.True(t, errors.Is(err, sdk.ErrTableFrozen))
	assert.Equal(t, 1, tab.Len())

	_, err = tab.Lookup("f")
	assert.NoError(t, err)
}

func TestTableMustRegister(t *testing.T) {
	tab := NewTable()
	assert.NotPanics(t, func() { tab.MustRegister(testDescriptor("f")) })
	assert.Panics(t, func() { tab.MustRegister(testDescriptor("f")) })
}

func TestTableDescriptors(t *testing.T) {
	tab := NewTable()
	for _, name := range []string{"c", "a", "b"} {
		tab.MustRegister(testDescriptor(name))
	}
	var names []string
	for _, d := range tab.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestTableConcurrentLookup(t *testing.T) {
	tab := NewTable()
	for i := 0; i < 32; i++ {
		tab.MustRegister(testDescriptor(fmt.Sprintf("r%d", i)))
	}
	tab.Freeze()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				name := fmt.Sprintf("r%d", i%32)
				d, err := tab.Lookup(name)
				if err != nil || d.Name != name {
					t.Errorf("lookup %s: %v", name, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDescriptorSignature(t *testing.T) {
	d := testDescriptor("r_all_tuples", sdk.KindInteger, sdk.KindList)
	d.ReturnKind = sdk.KindList
	d.Doc = "All tuples of size n."
	assert.Equal(t, sdk.Signature{
		Name:   "r_all_tuples",
		Arity:  2,
		Args:   []string{"integer", "list"},
		Return: "list",
		Doc:    "All tuples of size n.",
	}, d.Signature())
}
