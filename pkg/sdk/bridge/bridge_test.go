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

package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/falcosecurity/routine-sdk-go/pkg/cgo"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/routines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type testHost struct {
	m         sync.Mutex
	declared  []sdk.Signature
	retracted []string
	reject    map[string]bool
	abi       string
	config    string
}

func (h *testHost) DeclareRoutine(sig sdk.Signature) error {
	h.m.Lock()
	defer h.m.Unlock()
	if h.reject[sig.Name] {
		return fmt.Errorf("symbol %s already bound", sig.Name)
	}
	h.declared = append(h.declared, sig)
	return nil
}

func (h *testHost) RetractRoutines(names []string) {
	h.m.Lock()
	defer h.m.Unlock()
	h.retracted = append(h.retracted, names...)
}

func (h *testHost) RequiredABIVersion() string {
	return h.abi
}

func (h *testHost) Config() string {
	return h.config
}

func (h *testHost) names() []string {
	h.m.Lock()
	defer h.m.Unlock()
	res := make([]string, len(h.declared))
	for i, s := range h.declared {
		res[i] = s.Name
	}
	return res
}

// minimalHost only implements the required interface.
type minimalHost struct {
	count int
}

func (h *minimalHost) DeclareRoutine(sdk.Signature) error {
	h.count++
	return nil
}

func newTable(t *testing.T) *routines.Table {
	tab := routines.NewTable()
	tab.MustRegister(routines.MustFunc("square", func(x int64) int64 { return x * x }))
	tab.MustRegister(routines.MustFunc("concat", func(a, b string) string { return a + b }, routines.Doc("concatenates two strings")))
	tab.MustRegister(routines.MustFunc("explode", func() int { panic("boom") }))
	tab.MustRegister(routines.MustFunc("nucleotides", func() []string { return []string{"A", "C", "G", "T"} }))
	return tab
}

func TestLifecycle(t *testing.T) {
	b := New(newTable(t))
	assert.Equal(t, Unloaded, b.State())

	res := b.Invoke("square", []sdk.Value{sdk.Int(3)})
	require.True(t, res.IsError())
	assert.Equal(t, sdk.NotRegistered, res.Error().Kind)

	host := &testHost{}
	require.NoError(t, b.Init(host))
	assert.Equal(t, Registered, b.State())
	assert.Equal(t, []string{"concat", "explode", "nucleotides", "square"}, host.names())
	assert.Equal(t, "concatenates two strings", host.declared[0].Doc)
	assert.Equal(t, []string{"text", "text"}, host.declared[0].Args)

	res = b.Invoke("square", []sdk.Value{sdk.Int(3)})
	assert.True(t, sdk.Int(9).Equal(res), "found %s", res)
	assert.Equal(t, Active, b.State())

	res, err := b.Call("explode", nil)
	require.Error(t, err)
	assert.Equal(t, sdk.NativeFault, res.Error().Kind)
	assert.Equal(t, Active, b.State())

	res = b.Invoke("concat", []sdk.Value{sdk.Text("AC"), sdk.Text("GT")})
	assert.True(t, sdk.Text("ACGT").Equal(res), "found %s", res)

	unloaded := 0
	b.OnUnload(func() error { unloaded++; return nil })
	require.NoError(t, b.Unload())
	assert.Equal(t, Unloaded, b.State())
	assert.Equal(t, 1, unloaded)
	assert.Nil(t, b.Config())

	res = b.Invoke("square", []sdk.Value{sdk.Int(3)})
	require.True(t, res.IsError())
	assert.Equal(t, sdk.NotRegistered, res.Error().Kind)

	// unloading twice has no effect
	require.NoError(t, b.Unload())
	assert.Equal(t, 1, unloaded)

	// a library can be loaded again after unloading
	require.NoError(t, b.Init(&minimalHost{}))
	assert.Equal(t, Registered, b.State())
}

func TestAlreadyRegistered(t *testing.T) {
	b := New(newTable(t))
	host := &testHost{}
	require.NoError(t, b.Init(host))

	other := &testHost{}
	err := b.Init(other)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sdk.ErrAlreadyRegistered))
	assert.Empty(t, other.declared)
	assert.Len(t, host.declared, 4)
	assert.Equal(t, Registered, b.State())

	res := b.Invoke("square", []sdk.Value{sdk.Int(4)})
	assert.True(t, sdk.Int(16).Equal(res), "found %s", res)
}

func TestConcurrentInit(t *testing.T) {
	b := New(newTable(t))
	hosts := make([]*minimalHost, 8)
	errs := make([]error, len(hosts))
	var wg sync.WaitGroup
	for i := range hosts {
		hosts[i] = &minimalHost{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = b.Init(hosts[i])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			assert.Equal(t, 4, hosts[i].count)
			continue
		}
		assert.True(t, errors.Is(err, sdk.ErrAlreadyRegistered))
		assert.Equal(t, 0, hosts[i].count)
	}
	assert.Equal(t, 1, succeeded)
}

func TestEmptyTable(t *testing.T) {
	b := New(routines.NewTable())
	host := &testHost{}
	err := b.Init(host)
	assert.True(t, errors.Is(err, sdk.ErrEmptyTable))
	assert.Equal(t, Unloaded, b.State())
	assert.Empty(t, host.declared)
}

func TestHostRejection(t *testing.T) {
	b := New(newTable(t))
	host := &testHost{reject: map[string]bool{"explode": true, "square": true}}
	err := b.Init(host)
	require.Error(t, err)
	assert.Equal(t, Unloaded, b.State())

	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	for i, name := range []string{"explode", "square"} {
		var e *sdk.Error
		require.True(t, errors.As(errs[i], &e))
		assert.Equal(t, sdk.InvalidSignature, e.Kind)
		assert.Equal(t, name, e.Routine)
		assert.Contains(t, e.Error(), "already bound")
	}

	// declared routines are retracted
	assert.Equal(t, []string{"concat", "nucleotides"}, host.retracted)

	res := b.Invoke("concat", []sdk.Value{sdk.Text("A"), sdk.Text("C")})
	assert.Equal(t, sdk.NotRegistered, res.Error().Kind)
}

func TestInvalidSignature(t *testing.T) {
	tab := routines.NewTable()
	tab.MustRegister(routines.MustFunc("all tuples", func() {}))
	b := New(tab)
	host := &testHost{}
	err := b.Init(host)
	assert.True(t, errors.Is(err, sdk.ErrInvalidSignature))
	assert.Empty(t, host.declared)
	assert.Equal(t, Unloaded, b.State())
}

func TestABIVersion(t *testing.T) {
	tests := []struct {
		required string
		provided string
		ok       bool
	}{
		{"", "1.0.0", true},
		{"1.0.0", "1.0.0", true},
		{"1.0.0", "1.2.0", true},
		{"1.2.0", "1.2.3", true},
		{"1.3.0", "1.2.0", false},
		{"1.2.4", "1.2.3", false},
		{"2.0.0", "1.2.0", false},
		{"1.0.0", "2.0.0", false},
		{"one", "1.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.required+"/"+tt.provided, func(t *testing.T) {
			b := New(newTable(t), WithABIVersion(tt.provided))
			assert.Equal(t, tt.provided, b.ABIVersion())
			err := b.Init(&testHost{abi: tt.required})
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, sdk.ErrABIMismatch), "unexpected error: %v", err)
			assert.Equal(t, sdk.RSVersionMismatch, sdk.AsError(err).Kind.Code())
		})
	}
}

func TestConfig(t *testing.T) {
	b := New(newTable(t))
	err := b.Init(&testHost{config: `{"maxListLength": 2, "traceCalls": true}`})
	require.NoError(t, err)
	assert.Equal(t, &Config{MaxListLength: 2, TraceCalls: true}, b.Config())

	res := b.Invoke("square", []sdk.Value{sdk.Int(5)})
	assert.True(t, sdk.Int(25).Equal(res))

	for _, config := range []string{
		`{"maxListLength": -1}`,
		`{"maxListLength": "ten"}`,
		`{"traceCalls": 1}`,
		`{"unknown": true}`,
		`[]`,
		`{`,
	} {
		t.Run(config, func(t *testing.T) {
			b := New(newTable(t))
			host := &testHost{config: config}
			err := b.Init(host)
			assert.True(t, errors.Is(err, sdk.ErrInvalidConfig), "unexpected error: %v", err)
			assert.Empty(t, host.declared)
			assert.Equal(t, Unloaded, b.State())
		})
	}
}

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig("")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, c)

	c, err = ParseConfig(" {} ")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, c)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(InitSchema()), &schema))
	assert.Equal(t, "object", schema["type"])
}

func TestManifest(t *testing.T) {
	b := New(newTable(t))
	data, err := b.Manifest()
	require.NoError(t, err)

	var sigs []sdk.Signature
	require.NoError(t, json.Unmarshal(data, &sigs))
	require.Len(t, sigs, 4)
	assert.Equal(t, sdk.Signature{
		Name:   "square",
		Arity:  1,
		Args:   []string{"integer"},
		Return: "integer",
	}, sigs[3])
	assert.Equal(t, "list", sigs[2].Return)
	assert.Equal(t, []string{}, sigs[1].Args)
}

func TestUnloadReleasesOpaqueValues(t *testing.T) {
	type state struct{ n int }
	tab := routines.NewTable()
	tab.MustRegister(routines.MustFunc("state_new", func() *state { return &state{n: 1} }))
	tab.MustRegister(routines.MustFunc("state_get", func(s *state) int { return s.n }))

	b := New(tab)
	require.NoError(t, b.Init(&minimalHost{}))
	s := b.Invoke("state_new", nil)
	require.Equal(t, sdk.KindOpaque, s.Kind)

	b.OnUnload(func() error { return errors.New("cannot flush") })
	b.OnUnload(func() error { panic("cannot close") })
	err := b.Unload()
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, Unloaded, b.State())

	require.NoError(t, b.Init(&minimalHost{}))
	res := b.Invoke("state_get", []sdk.Value{s})
	require.True(t, res.IsError())
	assert.Equal(t, sdk.TypeMismatch, res.Error().Kind)
}

func TestRelease(t *testing.T) {
	type state struct{ n int }
	tab := routines.NewTable()
	tab.MustRegister(routines.MustFunc("state_new", func(n int) state { return state{n: n} }))
	tab.MustRegister(routines.MustFunc("state_get", func(s state) int { return s.n }))

	b := New(tab)
	assert.True(t, errors.Is(b.Release(1), sdk.ErrNotRegistered))
	require.NoError(t, b.Init(&minimalHost{}))

	// an equal value keeps its handle
	first := b.Invoke("state_new", []sdk.Value{sdk.Int(7)})
	for i := 0; i < 2*cgo.MaxHandle; i++ {
		res := b.Invoke("state_new", []sdk.Value{sdk.Int(7)})
		require.True(t, first.Equal(res), "call %d: %s", i, res)
	}

	// released handles are reused
	for i := 0; i < 2*cgo.MaxHandle; i++ {
		res := b.Invoke("state_new", []sdk.Value{sdk.Int(int64(i + 100))})
		require.Equal(t, sdk.KindOpaque, res.Kind, "call %d: %s", i, res)
		require.NoError(t, b.Release(res.Handle))
	}

	s := b.Invoke("state_new", []sdk.Value{sdk.Int(3)})
	assert.True(t, sdk.Int(3).Equal(b.Invoke("state_get", []sdk.Value{s})))
	require.NoError(t, b.Release(s.Handle))
	assert.True(t, errors.Is(b.Release(s.Handle), sdk.ErrNotFound))
	assert.True(t, errors.Is(b.Release(1<<40), sdk.ErrNotFound))

	res := b.Invoke("state_get", []sdk.Value{s})
	require.True(t, res.IsError())
	assert.Equal(t, sdk.TypeMismatch, res.Error().Kind)

	require.NoError(t, b.Unload())
	assert.True(t, errors.Is(b.Release(first.Handle), sdk.ErrNotRegistered))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unloaded", Unloaded.String())
	assert.Equal(t, "active", Active.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.True(t, Registered.Serving())
	assert.False(t, Unloading.Serving())
}
