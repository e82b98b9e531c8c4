/*
Copyright (C) 2021 The Falco Authors.

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

// Package hooks contains the unload hooks of a routine library, meant
// to be used internally in the SDK.
package hooks

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// OnUnloadFn is a callback run when a library is unloaded, to release
// resources owned by the library (files, caches, background workers).
type OnUnloadFn func() error

// Set is an ordered set of unload callbacks. The zero value is ready to use.
type Set struct {
	m   sync.Mutex
	fns []OnUnloadFn
}

// Add appends a callback to the set.
func (s *Set) Add(fn OnUnloadFn) {
	if fn == nil {
		panic("routine-sdk-go/sdk/internal/hooks.Add: fn must not be nil")
	}
	s.m.Lock()
	defer s.m.Unlock()
	s.fns = append(s.fns, fn)
}

// Len returns the number of callbacks of the set.
func (s *Set) Len() int {
	s.m.Lock()
	defer s.m.Unlock()
	return len(s.fns)
}

// Run calls all the callbacks, last added first, and returns all their
// errors combined. A panicking callback does not prevent the others from
// running, and its panic is returned as an error.
func (s *Set) Run() error {
	s.m.Lock()
	fns := append([]OnUnloadFn(nil), s.fns...)
	s.m.Unlock()

	var err error
	for i := len(fns) - 1; i >= 0; i-- {
		err = multierr.Append(err, run(fns[i]))
	}
	return err
}

func run(fn OnUnloadFn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unload hook panicked: %v", r)
		}
	}()
	return fn()
}
