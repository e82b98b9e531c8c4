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

package marshal

import (
	"fmt"
	"runtime/debug"

	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
)

// Guard calls fn and converts any panic raised by it into an *sdk.Error of
// kind sdk.NativeFault, carrying the recovered value and the stack of the
// panicking goroutine. This is the fault-containment boundary: no call
// from the host into native code may exit without going through it.
//
// Runtime panics (integer division by zero, out of range accesses, nil
// dereferences, oversized allocations) are all converted. Unrecoverable
// runtime failures, such as a fatal out-of-memory condition or a panic in
// a goroutine started by fn, are out of reach of any recover.
func Guard(fn func() (any, error)) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = Fault(r, string(debug.Stack()))
		}
	}()
	return fn()
}

// Fault builds the error reported for a recovered panic value.
func Fault(r any, stack string) *sdk.Error {
	e := &sdk.Error{
		Kind:  sdk.NativeFault,
		Value: r,
		Stack: stack,
	}
	switch v := r.(type) {
	case error:
		e.Detail = "panic"
		e.Cause = v
	case string:
		e.Detail = "panic: " + v
	default:
		e.Detail = fmt.Sprintf("panic: %v", v)
	}
	return e
}
