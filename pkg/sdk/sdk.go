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

package sdk

// Functions of the C ABI that return or update a rc (e.g. the declare
// callback of the host, or the status of an invocation) use one of these
// values.
const (
	RSSuccess         int32 = 0
	RSFailure         int32 = 1
	RSIllegalInput    int32 = 3
	RSNotFound        int32 = 4
	RSNotInitialized  int32 = 5
	RSVersionMismatch int32 = 8
	RSNotSupported    int32 = 9
)

// ABIVersion is the version of the C ABI implemented by this SDK. Hosts
// requiring an ABI version with the same major number and a lower or equal
// minor number can load libraries built with this SDK.
const ABIVersion = "1.0.0"

// MaxListLength is the default maximum number of elements of a List value
// accepted by the marshaling layer.
const MaxListLength = 1 << 20

// Signature describes a routine as it is advertised to the host.
// Should be used when informing the host about the exported routines.
type Signature struct {
	Name   string   `json:"name"`
	Arity  int      `json:"arity"`
	Args   []string `json:"args"`
	Return string   `json:"return"`
	Doc    string   `json:"doc,omitempty"`
}
