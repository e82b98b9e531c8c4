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

// Package routines provides the routine table of a library: the registry
// mapping exported routine names to native entry points and their calling
// signatures.
//
// A table is populated once, typically from init() functions, and then
// frozen. After Freeze the table is read-only and lookups take no lock,
// so it can be shared by any number of concurrent callers.
package routines

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
)

// NativeFunc is the native entry point of a routine. It receives the
// arguments already converted to their native representation (see the
// sdk/marshal package) and returns a native result or an error.
type NativeFunc func(args []any) (any, error)

// Descriptor describes a routine that can be registered in a Table.
type Descriptor struct {
	Name       string
	Arity      int
	ArgKinds   []sdk.ValueKind
	ReturnKind sdk.ValueKind
	Entry      NativeFunc
	// NonReentrant marks routines that must not run concurrently with
	// themselves. Calls to such routines are serialized by the dispatcher.
	NonReentrant bool
	Doc          string
}

// Signature returns the signature advertised to the host for d.
func (d *Descriptor) Signature() sdk.Signature {
	args := make([]string, len(d.ArgKinds))
	for i, k := range d.ArgKinds {
		args[i] = k.String()
	}
	return sdk.Signature{
		Name:   d.Name,
		Arity:  d.Arity,
		Args:   args,
		Return: d.ReturnKind.String(),
		Doc:    d.Doc,
	}
}

// Validate checks the invariants of d.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return sdk.Errorf(sdk.InvalidDescriptor, "routine name must not be empty")
	}
	if d.Arity < 0 || d.Arity != len(d.ArgKinds) {
		return sdk.Errorf(sdk.InvalidDescriptor, "arity %d does not match %d argument kinds", d.Arity, len(d.ArgKinds)).
			WithRoutine(d.Name)
	}
	for i, k := range d.ArgKinds {
		if !k.Valid() {
			return sdk.Errorf(sdk.InvalidDescriptor, "invalid kind %s", k).
				WithRoutine(d.Name).
				WithPosition(i + 1)
		}
	}
	if !d.ReturnKind.Valid() {
		return sdk.Errorf(sdk.InvalidDescriptor, "invalid kind %s", d.ReturnKind).
			WithRoutine(d.Name).
			WithPosition(sdk.ReturnPosition)
	}
	if d.Entry == nil {
		return sdk.Errorf(sdk.InvalidDescriptor, "native entry point must not be nil").WithRoutine(d.Name)
	}
	return nil
}

func (d Descriptor) clone() *Descriptor {
	d.ArgKinds = append([]sdk.ValueKind(nil), d.ArgKinds...)
	return &d
}

// Table maps routine names to descriptors.
type Table struct {
	m      sync.Mutex
	frozen atomic.Bool
	byName map[string]*Descriptor
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*Descriptor)}
}

// Register adds a copy of d to the table. Returns an error wrapping
// sdk.ErrDuplicateName if a routine with the same name is already present,
// sdk.ErrInvalidDescriptor if d is not valid, and sdk.ErrTableFrozen if
// the table has already been frozen.
func (t *Table) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	t.m.Lock()
	defer t.m.Unlock()
	if t.frozen.Load() {
		return sdk.Errorf(sdk.TableFrozen, "cannot register after the table has been frozen").WithRoutine(d.Name)
	}
	if _, ok := t.byName[d.Name]; ok {
		return sdk.Errorf(sdk.DuplicateName, "routine already registered").WithRoutine(d.Name)
	}
	t.byName[d.Name] = d.clone()
	return nil
}

// MustRegister is like Register but panics on error. It is meant to be
// used in init() functions, where a registration failure is a build
// misconfiguration.
func (t *Table) MustRegister(d Descriptor) {
	if err := t.Register(d); err != nil {
		panic("routine-sdk-go/sdk/routines.MustRegister: " + err.Error())
	}
}

// Freeze ends the population step. Further calls to Register fail, and
// lookups become lock-free. Calling Freeze more than once has no effect.
func (t *Table) Freeze() {
	t.m.Lock()
	defer t.m.Unlock()
	t.frozen.Store(true)
}

// Frozen returns true if Freeze has been called.
func (t *Table) Frozen() bool {
	return t.frozen.Load()
}

// Lookup returns the descriptor registered with the given name, or an
// error wrapping sdk.ErrNotFound. The returned descriptor must not be
// modified.
func (t *Table) Lookup(name string) (*Descriptor, error) {
	var d *Descriptor
	var ok bool
	if t.frozen.Load() {
		d, ok = t.byName[name]
	} else {
		t.m.Lock()
		d, ok = t.byName[name]
		t.m.Unlock()
	}
	if !ok {
		return nil, sdk.Errorf(sdk.NotFound, "no such routine").WithRoutine(name)
	}
	return d, nil
}

// Len returns the number of registered routines.
func (t *Table) Len() int {
	if !t.frozen.Load() {
		t.m.Lock()
		defer t.m.Unlock()
	}
	return len(t.byName)
}

// Names returns the names of the registered routines, sorted.
func (t *Table) Names() []string {
	if !t.frozen.Load() {
		t.m.Lock()
		defer t.m.Unlock()
	}
	res := make([]string, 0, len(t.byName))
	for name := range t.byName {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// Descriptors returns the registered descriptors, sorted by name.
func (t *Table) Descriptors() []*Descriptor {
	names := t.Names()
	res := make([]*Descriptor, len(names))
	for i, name := range names {
		res[i], _ = t.Lookup(name)
	}
	return res
}
