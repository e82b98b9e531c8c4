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

package loader

/*
#include <stdint.h>
*/
import "C"
import (
	"unsafe"

	"github.com/falcosecurity/routine-sdk-go/pkg/cgo"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
)

func ownerLibrary(owner unsafe.Pointer) (*Library, bool) {
	if owner == nil {
		return nil, false
	}
	l, ok := cgo.Handle(*(*C.uintptr_t)(owner)).Value().(*Library)
	return l, ok
}

//export loader_declare_routine
func loader_declare_routine(owner unsafe.Pointer, name *C.char, signature *C.char) C.int32_t {
	l, ok := ownerLibrary(owner)
	if !ok {
		return C.int32_t(sdk.RSFailure)
	}
	return C.int32_t(l.declare(C.GoString(name), C.GoString(signature)))
}

//export loader_retract_routine
func loader_retract_routine(owner unsafe.Pointer, name *C.char) {
	if l, ok := ownerLibrary(owner); ok {
		l.retract(C.GoString(name))
	}
}
