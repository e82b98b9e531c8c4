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

package sdk

import (
	"encoding/json"
	"fmt"
)

// ValueKind is the tag of a value crossing the host/native boundary.
type ValueKind uint32

// The full set of kinds understood by the layer.
const (
	KindNull    ValueKind = 0
	KindInteger ValueKind = 1
	KindReal    ValueKind = 2
	KindText    ValueKind = 3
	KindBoolean ValueKind = 4
	KindList    ValueKind = 5
	KindError   ValueKind = 6
	KindOpaque  ValueKind = 7
	kindMax     ValueKind = 8
)

var kindNames = [kindMax]string{
	KindNull:    "null",
	KindInteger: "integer",
	KindReal:    "real",
	KindText:    "text",
	KindBoolean: "boolean",
	KindList:    "list",
	KindError:   "error",
	KindOpaque:  "opaque",
}

// Kinds returns all the valid kinds, ordered by tag.
func Kinds() []ValueKind {
	res := make([]ValueKind, 0, kindMax)
	for k := KindNull; k < kindMax; k++ {
		res = append(res, k)
	}
	return res
}

// Valid returns true if k is one of the known kinds.
func (k ValueKind) Valid() bool {
	return k < kindMax
}

func (k ValueKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
	return kindNames[k]
}

// ParseValueKind returns the kind named s, as printed by String.
func ParseValueKind(s string) (ValueKind, error) {
	for k, name := range kindNames {
		if name == s {
			return ValueKind(k), nil
		}
	}
	return KindNull, fmt.Errorf("unknown value kind: %q", s)
}

func (k ValueKind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid value kind: %d", uint32(k))
	}
	return json.Marshal(k.String())
}

func (k *ValueKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseValueKind(s)
	if err != nil {
		return err
	}
	*k = v
	return nil
}
