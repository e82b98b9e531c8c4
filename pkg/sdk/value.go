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
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a host-representable value. Only the payload field matching
// Kind is meaningful, the others are left to their zero value.
//
// Values should be created with the constructors of this package (Int,
// Text, List, ...), which always keep the payload consistent with the kind.
type Value struct {
	Kind   ValueKind
	Int    int64
	Real   float64
	Text   string
	Bool   bool
	List   []Value
	Err    *Error
	Handle uint64
}

// Null returns the null value.
func Null() Value {
	return Value{Kind: KindNull}
}

// Int returns an Integer value.
func Int(v int64) Value {
	return Value{Kind: KindInteger, Int: v}
}

// Real returns a Real value.
func Real(v float64) Value {
	return Value{Kind: KindReal, Real: v}
}

// Text returns a Text value.
func Text(v string) Value {
	return Value{Kind: KindText, Text: v}
}

// Bool returns a Boolean value.
func Bool(v bool) Value {
	return Value{Kind: KindBoolean, Bool: v}
}

// List returns a List value holding the given elements. The returned
// value never holds a nil slice.
func List(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{Kind: KindList, List: elems}
}

// Texts is a convenience for building a List of Text values.
func Texts(elems ...string) Value {
	l := make([]Value, len(elems))
	for i, s := range elems {
		l[i] = Text(s)
	}
	return List(l...)
}

// ErrorValue returns an Error value wrapping err. A nil err returns the
// null value.
func ErrorValue(err error) Value {
	e := AsError(err)
	if e == nil {
		return Null()
	}
	return Value{Kind: KindError, Err: e}
}

// Opaque returns an Opaque value referring to the given handle.
func Opaque(handle uint64) Value {
	return Value{Kind: KindOpaque, Handle: handle}
}

// IsError returns true if v is an Error value.
func (v Value) IsError() bool {
	return v.Kind == KindError
}

// Error returns the error held by v, or nil if v is not an Error value.
func (v Value) Error() *Error {
	if v.Kind != KindError {
		return nil
	}
	return v.Err
}

// Equal returns true if v and o have the same kind and payload. Errors
// are compared by kind, routine, position and message. Reals are compared
// bitwise-equal except for NaN, which equals NaN.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindInteger:
		return v.Int == o.Int
	case KindReal:
		if math.IsNaN(v.Real) && math.IsNaN(o.Real) {
			return true
		}
		return v.Real == o.Real
	case KindText:
		return v.Text == o.Text
	case KindBoolean:
		return v.Bool == o.Bool
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindError:
		if v.Err == nil || o.Err == nil {
			return v.Err == o.Err
		}
		return v.Err.Kind == o.Err.Kind &&
			v.Err.Routine == o.Err.Routine &&
			v.Err.Position == o.Err.Position &&
			v.Err.Message() == o.Err.Message()
	case KindOpaque:
		return v.Handle == o.Handle
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case KindText:
		return strconv.Quote(v.Text)
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	case KindList:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range v.List {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.String())
		}
		b.WriteByte(']')
		return b.String()
	case KindError:
		if v.Err == nil {
			return "error"
		}
		return v.Err.Error()
	case KindOpaque:
		return fmt.Sprintf("opaque(%d)", v.Handle)
	}
	return v.Kind.String()
}
