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

static inline int32_t call_declare_routine(rs_host_api* h, const char* name, const char* sig) {
    if (h && h->declare_routine) {
        return h->declare_routine(h->owner, name, sig);
    }
    return RS_NOT_SUPPORTED;
}

static inline void call_retract_routine(rs_host_api* h, const char* name) {
    if (h && h->retract_routine) {
        h->retract_routine(h->owner, name);
    }
}
*/
import "C"
import (
	"encoding/json"
	"fmt"
	"unsafe"

	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
)

// cHost is the bridge.Host view of the rs_host_api passed by a C host.
// It is only valid during routine_sdk_init.
type cHost struct {
	api *C.rs_host_api
}

func (h *cHost) DeclareRoutine(sig sdk.Signature) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	name := C.CString(sig.Name)
	defer C.free(unsafe.Pointer(name))
	js := C.CString(string(data))
	defer C.free(unsafe.Pointer(js))

	if rc := int32(C.call_declare_routine(h.api, name, js)); rc != sdk.RSSuccess {
		return fmt.Errorf("host returned rc %d", rc)
	}
	return nil
}

func (h *cHost) RetractRoutines(names []string) {
	for _, n := range names {
		name := C.CString(n)
		C.call_retract_routine(h.api, name)
		C.free(unsafe.Pointer(name))
	}
}

func (h *cHost) RequiredABIVersion() string {
	if h.api.required_abi_version == nil {
		return ""
	}
	return C.GoString(h.api.required_abi_version)
}

func (h *cHost) Config() string {
	if h.api.config == nil {
		return ""
	}
	return C.GoString(h.api.config)
}
