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

// Package marshal converts values between their host representation
// (sdk.Value) and their native representation (plain Go values), and
// provides the fault-containment boundary around native calls.
//
// Native representations are:
//   - Null: nil
//   - Integer: int64
//   - Real: float64
//   - Text: string
//   - Boolean: bool
//   - List: []any, each element in its own native representation
//   - Error: *sdk.Error
//   - Opaque: the Go value referenced by the handle
//
// Opaque values live in a handle table until they are released. Returning
// a value that already has a handle, directly or as a List element, gives
// the host back the same handle.
//
// Conversions follow a total coercion table, see Coercion. A value whose
// kind cannot be coerced to the expected one is a type mismatch, never a
// panic.
package marshal
