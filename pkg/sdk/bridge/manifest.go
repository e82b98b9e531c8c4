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
	"sync"

	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/routines"
	"github.com/xeipuuv/gojsonschema"
)

// The manifest is the list of signatures advertised to the host. Routine
// names must be plain identifiers, since hosts bind them as symbols.
const manifestSchema = `{
	"$schema": "http://json-schema.org/draft-04/schema#",
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["name", "arity", "args", "return"],
		"properties": {
			"name": {
				"type": "string",
				"pattern": "^[A-Za-z_.][A-Za-z0-9_.]*$"
			},
			"arity": {
				"type": "integer",
				"minimum": 0
			},
			"args": {
				"type": "array",
				"items": {"$ref": "#/definitions/kind"}
			},
			"return": {"$ref": "#/definitions/kind"},
			"doc": {"type": "string"}
		}
	},
	"definitions": {
		"kind": {
			"enum": ["null", "integer", "real", "text", "boolean", "list", "error", "opaque"]
		}
	}
}`

var (
	manifestSchemaOnce sync.Once
	manifestSchemaVal  *gojsonschema.Schema
	manifestSchemaErr  error
)

func loadManifestSchema() (*gojsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		manifestSchemaVal, manifestSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchema))
	})
	return manifestSchemaVal, manifestSchemaErr
}

// Signatures returns the signatures of the routines of t, sorted by name.
func Signatures(t *routines.Table) []sdk.Signature {
	descs := t.Descriptors()
	res := make([]sdk.Signature, len(descs))
	for i, d := range descs {
		res[i] = d.Signature()
	}
	return res
}

// encodeManifest encodes sigs in JSON and validates the result against
// the manifest schema. All the violations are reported in a single
// InvalidSignature error.
func encodeManifest(sigs []sdk.Signature) ([]byte, error) {
	data, err := json.Marshal(sigs)
	if err != nil {
		return nil, sdk.Errorf(sdk.InvalidSignature, "cannot encode manifest").WithCause(err)
	}
	schema, err := loadManifestSchema()
	if err != nil {
		return nil, sdk.Errorf(sdk.InvalidSignature, "cannot load manifest schema").WithCause(err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, sdk.Errorf(sdk.InvalidSignature, "cannot validate manifest").WithCause(err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return nil, sdk.Errorf(sdk.InvalidSignature, "%s", strings.Join(msgs, "; "))
	}
	return data, nil
}
