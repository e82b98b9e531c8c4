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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Values are encoded in JSON in the tagged form used by the C ABI:
//
//	{"kind":"integer","value":3}
//	{"kind":"list","value":[{"kind":"text","value":"A"}]}
//	{"kind":"error","value":{"code":"not_found","routine":"f","message":"..."}}
//
// Reals that JSON cannot represent (NaN and infinities) are encoded as the
// strings "NaN", "+Inf" and "-Inf".
type jsonValue struct {
	Kind  ValueKind       `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

type jsonError struct {
	Code     ErrorKind `json:"code"`
	Routine  string    `json:"routine,omitempty"`
	Position int       `json:"position,omitempty"`
	Message  string    `json:"message,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.Kind {
	case KindNull:
		return json.Marshal(jsonValue{Kind: KindNull})
	case KindInteger:
		payload = v.Int
	case KindReal:
		switch {
		case math.IsNaN(v.Real):
			payload = "NaN"
		case math.IsInf(v.Real, 1):
			payload = "+Inf"
		case math.IsInf(v.Real, -1):
			payload = "-Inf"
		default:
			payload = v.Real
		}
	case KindText:
		payload = v.Text
	case KindBoolean:
		payload = v.Bool
	case KindList:
		l := v.List
		if l == nil {
			l = []Value{}
		}
		payload = l
	case KindError:
		e := v.Err
		if e == nil {
			e = &Error{Kind: NativeError}
		}
		payload = jsonError{
			Code:     e.Kind,
			Routine:  e.Routine,
			Position: e.Position,
			Message:  e.detailText(),
		}
	case KindOpaque:
		payload = v.Handle
	default:
		return nil, fmt.Errorf("invalid value kind: %d", uint32(v.Kind))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonValue{Kind: v.Kind, Value: raw})
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(b, &jv); err != nil {
		return err
	}
	res := Value{Kind: jv.Kind}
	if jv.Kind != KindNull && len(jv.Value) == 0 {
		return fmt.Errorf("missing payload for %s value", jv.Kind)
	}
	switch jv.Kind {
	case KindNull:
	case KindInteger:
		dec := json.NewDecoder(bytes.NewReader(jv.Value))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("invalid integer payload: %w", err)
		}
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer payload: %w", err)
		}
		res.Int = i
	case KindReal:
		var s string
		if err := json.Unmarshal(jv.Value, &s); err == nil {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("invalid real payload: %w", err)
			}
			res.Real = f
		} else if err := json.Unmarshal(jv.Value, &res.Real); err != nil {
			return fmt.Errorf("invalid real payload: %w", err)
		}
	case KindText:
		if err := json.Unmarshal(jv.Value, &res.Text); err != nil {
			return fmt.Errorf("invalid text payload: %w", err)
		}
	case KindBoolean:
		if err := json.Unmarshal(jv.Value, &res.Bool); err != nil {
			return fmt.Errorf("invalid boolean payload: %w", err)
		}
	case KindList:
		if err := json.Unmarshal(jv.Value, &res.List); err != nil {
			return fmt.Errorf("invalid list payload: %w", err)
		}
		if res.List == nil {
			res.List = []Value{}
		}
	case KindError:
		var je jsonError
		if err := json.Unmarshal(jv.Value, &je); err != nil {
			return fmt.Errorf("invalid error payload: %w", err)
		}
		res.Err = &Error{
			Kind:     je.Code,
			Routine:  je.Routine,
			Position: je.Position,
			Detail:   je.Message,
		}
	case KindOpaque:
		if err := json.Unmarshal(jv.Value, &res.Handle); err != nil {
			return fmt.Errorf("invalid opaque payload: %w", err)
		}
	}
	*v = res
	return nil
}

// DecodeArgs decodes a JSON array of tagged values. An empty input is
// decoded as an empty argument list.
func DecodeArgs(data []byte) ([]Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Value{}, nil
	}
	var args []Value
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = []Value{}
	}
	return args, nil
}
