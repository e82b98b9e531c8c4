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

package entry

/*
#cgo CFLAGS: -I ../..
#include <stdlib.h>
#include "routine_sdk.h"
*/
import "C"
import (
	"unsafe"
)

//export routine_sdk_init
func routine_sdk_init(host *C.rs_host_api) {
	if host == nil {
		setLastError(errNilHost)
		return
	}
	// the failure is reported through routine_sdk_get_last_error
	_ = initWith(&cHost{api: host})
}

//export routine_sdk_invoke
func routine_sdk_invoke(name *C.char, args *C.char) *C.char {
	var argsJSON []byte
	if args != nil {
		argsJSON = []byte(C.GoString(args))
	}
	return C.CString(string(invokeJSON(C.GoString(name), argsJSON)))
}

//export routine_sdk_get_routines
func routine_sdk_get_routines() *C.char {
	return C.CString(routinesJSON())
}

//export routine_sdk_get_init_schema
func routine_sdk_get_init_schema() *C.char {
	return C.CString(initSchema())
}

//export routine_sdk_get_abi_version
func routine_sdk_get_abi_version() *C.char {
	return C.CString(abiVersion())
}

//export routine_sdk_get_last_error
func routine_sdk_get_last_error() *C.char {
	return C.CString(lastErrorString())
}

//export routine_sdk_release
func routine_sdk_release(handle C.uint64_t) C.int32_t {
	return C.int32_t(release(uint64(handle)))
}

//export routine_sdk_unload
func routine_sdk_unload() {
	unload()
}

//export routine_sdk_free
func routine_sdk_free(p unsafe.Pointer) {
	C.free(p)
}
