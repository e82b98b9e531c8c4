// SPDX-License-Identifier: Apache-2.0
/*
Copyright (C) 2023 The Falco Authors.

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

package cgo

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Handle is an alternative implementation of cgo.Handle introduced by
// Go 1.17, see https://pkg.go.dev/runtime/cgo. This implementation
// is scoped to a handle table instead of being process-wide, so that
// every routine library (and every test) can own an independent set of
// handles that is dropped altogether when the library is unloaded.
//
// Like runtime/cgo.Handle, this provides a way to pass values that
// contain Go pointers between Go and C without breaking the cgo pointer
// passing rules. The underlying type of Handle is guaranteed to fit in
// an integer type that is large enough to hold the bit pattern of any pointer.
// The zero value of a Handle is not valid and thus is safe to use as
// a sentinel in C APIs.
//
// The maximum number of valid handles of a table is capped to a fixed
// value (see MaxHandle). Handles are used for the opaque values returned by
// routines and for the host-side owner pointers, and both are expected to
// be short-lived.
type Handle uintptr

const (
	// MaxHandle is the largest value that an Handle can hold
	MaxHandle = 4096 - 1

	// max number of times we're willing to iterate over the vector of reusable
	// handles to do compare-and-swap before giving up
	maxNewHandleRounds = 20
)

// ErrNoHandle is returned when a table has no free handle left.
var ErrNoHandle = errors.New("could not obtain a new handle: table is full")

var noHandle unsafe.Pointer = nil

// Table is a set of handles. All the methods of Table are safe for
// concurrent use. The zero value is an empty table ready to use.
type Table struct {
	slots [MaxHandle + 1]unsafe.Pointer // [int]*interface{}
	next  atomic.Uintptr
	count atomic.Int64
}

// NewTable returns an empty handle table.
func NewTable() *Table {
	return &Table{}
}

// New returns a handle for a given value.
//
// The handle is valid until Delete is called on it, or until the table
// gets reset. C code may hold on to the handle, so it must be explicitly
// deleted when no longer needed.
//
// The simultaneous number of the valid handles cannot exceed MaxHandle.
// ErrNoHandle is returned if there are no more handles available.
// Previously created handles may be made available again when
// invalidated with Delete.
func (t *Table) New(v interface{}) (Handle, error) {
	rounds := 0
	start := t.next.Load()%MaxHandle + 1
	for h := start; ; h++ {
		// we acquired ownership of an handle, return it
		// note: we attempt accessing slots 1..MaxHandle (included)
		if atomic.CompareAndSwapPointer(&t.slots[h], noHandle, (unsafe.Pointer)(&v)) {
			t.next.Store(h)
			t.count.Add(1)
			return Handle(h), nil
		}

		// we haven't acquired a handle, but we can try with the next one
		if h < MaxHandle {
			continue
		}

		// we iterated over the whole vector of handles, so we get back to start
		// and try again with another round. Once we do this too many times,
		// we have no choice if not giving up
		h = uintptr(0) // note: will be incremented when continuing
		if rounds < maxNewHandleRounds {
			rounds++
			continue
		}

		return 0, ErrNoHandle
	}
}

// Value returns the associated Go value for a handle, and false if the
// handle is not valid.
func (t *Table) Value(h Handle) (interface{}, bool) {
	if h == 0 || h > MaxHandle {
		return nil, false
	}
	p := atomic.LoadPointer(&t.slots[h])
	if p == noHandle {
		return nil, false
	}
	return *(*interface{})(p), true
}

// Delete invalidates a handle. This method should only be called once
// the program no longer needs to pass the handle to C and the C code
// no longer has a copy of the handle value. Returns false if the handle
// was not valid.
func (t *Table) Delete(h Handle) bool {
	if h == 0 || h > MaxHandle {
		return false
	}
	if atomic.SwapPointer(&t.slots[h], noHandle) == noHandle {
		return false
	}
	t.count.Add(-1)
	return true
}

// Len returns the number of valid handles.
func (t *Table) Len() int {
	return int(t.count.Load())
}

// Reset invalidates all the handles of the table.
func (t *Table) Reset() {
	for i := 0; i <= MaxHandle; i++ {
		if atomic.SwapPointer(&t.slots[i], noHandle) != noHandle {
			t.count.Add(-1)
		}
	}
	t.next.Store(0)
}

var handles Table

// NewHandle returns a handle for a given value in the process-wide table.
// This function panics if there are no more handles available.
func NewHandle(v interface{}) Handle {
	h, err := handles.New(v)
	if err != nil {
		panic("routine-sdk-go/cgo: " + err.Error())
	}
	return h
}

// Value returns the associated Go value for a valid handle of the
// process-wide table.
//
// The method panics if the handle is invalid.
func (h Handle) Value() interface{} {
	v, ok := handles.Value(h)
	if !ok {
		panic(invalidHandleMsg("value", h))
	}
	return v
}

// Delete invalidates a handle of the process-wide table.
//
// The method panics if the handle is invalid.
func (h Handle) Delete() {
	if !handles.Delete(h) {
		panic(invalidHandleMsg("delete", h))
	}
}

func invalidHandleMsg(op string, h Handle) string {
	return fmt.Sprintf("routine-sdk-go/cgo: misuse (%s) of an invalid Handle %d", op, h)
}
