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

// This module provides support code for developers that would like to
// write native routine libraries in Go: shared libraries loaded by an
// embedding host (an interpreter or any other program), which declare a
// table of routines at load time and serve calls to them with safe value
// marshaling and panic containment.
//
// The module is organized as follows:
//  - pkg/sdk:                  value kinds, values, errors and return codes
//  - pkg/sdk/routines:         routine descriptors and the routine table
//  - pkg/sdk/marshal:          value conversion and the fault boundary
//  - pkg/sdk/dispatch:         the dispatch shim serving host calls
//  - pkg/sdk/bridge:           the library lifecycle and routine registration
//  - pkg/sdk/symbols/entry:    the C symbols of a routine library
//  - pkg/loader:               the host side, loading libraries from Go
//  - pkg/cgo:                  handles for passing Go values to C
//
// See examples/gcatbase for a complete routine library.
package sdk
