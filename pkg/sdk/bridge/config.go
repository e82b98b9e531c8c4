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

import (
	"encoding/json"
	"strings"

	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
	"github.com/xeipuuv/gojsonschema"
)

// Config is the init configuration of a routine library, supplied by the
// host as a JSON object.
type Config struct {
	// MaxListLength bounds the number of elements of List arguments.
	// Routines building lists read it to bound their results. Zero means
	// sdk.MaxListLength.
	MaxListLength int `json:"maxListLength"`
	// TraceCalls enables a debug log entry for each call.
	TraceCalls bool `json:"traceCalls"`
}

const initSchema = `{
	"$schema": "http://json-schema.org/draft-04/schema#",
	"type": "object",
	"properties": {
		"maxListLength": {
			"type": "integer",
			"minimum": 0,
			"description": "Maximum number of elements of list arguments (0 for the default)"
		},
		"traceCalls": {
			"type": "boolean",
			"description": "Log each routine call at debug level"
		}
	},
	"additionalProperties": false
}`

// InitSchema returns the JSON schema of the init configuration.
func InitSchema() string {
	return initSchema
}

// ParseConfig validates config against InitSchema and decodes it. An empty
// config is the same as "{}".
func ParseConfig(config string) (*Config, error) {
	if len(strings.TrimSpace(config)) == 0 {
		config = "{}"
	}
	schema := gojsonschema.NewStringLoader(initSchema)
	document := gojsonschema.NewStringLoader(config)
	result, err := gojsonschema.Validate(schema, document)
	if err != nil {
		return nil, sdk.Errorf(sdk.InvalidConfig, "cannot validate config").WithCause(err)
	}
	if !result.Valid() {
		// report the first error only
		return nil, sdk.Errorf(sdk.InvalidConfig, "%s", result.Errors()[0].String())
	}

	var c Config
	if err := json.Unmarshal([]byte(config), &c); err != nil {
		return nil, sdk.Errorf(sdk.InvalidConfig, "cannot decode config").WithCause(err)
	}
	return &c, nil
}
