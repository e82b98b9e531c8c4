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

import "strconv"

// State is the lifecycle state of a routine library.
type State int32

const (
	Unloaded State = iota
	Loading
	Registered
	Active
	Unloading
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Registered:
		return "registered"
	case Active:
		return "active"
	case Unloading:
		return "unloading"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Serving returns true in the states where calls are served.
func (s State) Serving() bool {
	return s == Registered || s == Active
}
