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

// Package sdk provides the base definitions shared by all the packages
// of the routine SDK: the value kinds understood by the layer, the
// host-side Value representation, the error taxonomy and the return codes
// used across the C boundary.
//
// A routine library is a Go package built with -buildmode=c-shared that
// registers a table of native routines (see the sdk/routines package),
// exposes a single load-time entry point to an embedding host (see the
// sdk/bridge and sdk/symbols/entry packages), and serves calls from that
// host through the dispatch shim (see the sdk/dispatch package).
//
// Every value crossing the boundary is tagged with a ValueKind. Every
// failure crossing the boundary is an *Error tagged with an ErrorKind, and
// dispatch-time failures are always delivered to the host as Error values
// instead of aborting the host process.
package sdk
