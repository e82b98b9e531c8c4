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

package bridge

import "github.com/falcosecurity/routine-sdk-go/pkg/sdk"

// Host is the embedding host as seen by a routine library during
// registration.
type Host interface {
	// DeclareRoutine makes a routine visible to the host's users. An error
	// means the host rejected the declaration and aborts the load.
	DeclareRoutine(sig sdk.Signature) error
}

// Retracter is an optional Host capability. Hosts implementing it get the
// routines declared so far retracted when a load fails halfway.
type Retracter interface {
	RetractRoutines(names []string)
}

// Versioned is an optional Host capability. Hosts implementing it require
// a minimum ABI version from the library. An empty string means no
// requirement.
type Versioned interface {
	RequiredABIVersion() string
}

// Configured is an optional Host capability. Hosts implementing it pass a
// JSON configuration to the library, validated against InitSchema.
type Configured interface {
	Config() string
}
