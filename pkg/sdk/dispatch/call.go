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

package dispatch

import (
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/routines"
	"github.com/google/uuid"
)

// CallContext is the record of a single invocation. It is created for
// each call, never shared between calls, and dropped when the call
// returns.
type CallContext struct {
	// ID identifies the call in the logs. It is only set when the call
	// gets logged.
	ID         uuid.UUID
	Name       string
	Descriptor *routines.Descriptor
	Args       []sdk.Value
	Native     []any
	Result     sdk.Value
}

func newCallContext(name string, args []sdk.Value, traced bool) *CallContext {
	c := &CallContext{
		Name: name,
		Args: args,
	}
	if traced {
		c.identify()
	}
	return c
}

// identify sets the ID of the call, if not set already.
func (c *CallContext) identify() {
	if c.ID == uuid.Nil {
		// a failing random source only degrades the logs
		c.ID, _ = uuid.NewRandom()
	}
}
