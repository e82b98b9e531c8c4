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

// Package symbols provides prebuilt implementations for the C symbols
// exported by a routine library, as declared in routine_sdk.h.
//
// This package defines low-level constructs meant for advanced users that
// wish to use only a portion of the SDK internals. The sdk/bridge and
// sdk/routines packages should normally be used to define the routines of
// a library, while the symbols sub-packages turn them into C symbols.
// Importing one of the sub-packages automatically includes its prebuilt
// symbols in the library. If one of the prebuilt symbols is imported it
// would not be possible to re-define it in the library, as this would
// lead to a linking failure due to multiple definitions of the same symbol.
//
// The mapping between the prebuilt C exported symbols and their sub-package
// is the following:
//  - entry:        routine_sdk_init, routine_sdk_invoke,
//                  routine_sdk_get_routines, routine_sdk_get_init_schema,
//                  routine_sdk_get_abi_version, routine_sdk_get_last_error,
//                  routine_sdk_release, routine_sdk_unload, routine_sdk_free
//
// The library-specific entry point expected by a host (for example
// R_init_<package>) is not part of this package. It is a C forwarder
// compiled in the library itself, calling routine_sdk_init.
package symbols
