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

package marshal

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/falcosecurity/routine-sdk-go/pkg/cgo"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
)

// Marshaler converts values between host and native representations.
// A Marshaler owns the handle table of the Opaque values it hands out
// to the host. All the methods of Marshaler are safe for concurrent use.
type Marshaler struct {
	handles *cgo.Table
	maxList int

	// reverse index of the opaque values, so that passing an opaque value
	// back and forth keeps the same handle (see handleKey)
	m       sync.Mutex
	byValue map[any]cgo.Handle
}

// Option customizes a Marshaler.
type Option func(*Marshaler)

// WithHandles makes the Marshaler store Opaque values in the given table.
func WithHandles(t *cgo.Table) Option {
	return func(m *Marshaler) {
		m.handles = t
	}
}

// WithMaxListLength limits the number of elements of List arguments.
// A value of zero or less restores the default, sdk.MaxListLength.
func WithMaxListLength(n int) Option {
	return func(m *Marshaler) {
		m.maxList = n
	}
}

// New returns a Marshaler with its own handle table.
func New(opts ...Option) *Marshaler {
	m := &Marshaler{byValue: make(map[any]cgo.Handle)}
	for _, opt := range opts {
		opt(m)
	}
	if m.handles == nil {
		m.handles = cgo.NewTable()
	}
	if m.maxList <= 0 {
		m.maxList = sdk.MaxListLength
	}
	return m
}

// Handles returns the table holding the Opaque values.
func (m *Marshaler) Handles() *cgo.Table {
	return m.handles
}

// MaxListLength returns the maximum accepted length of List arguments.
func (m *Marshaler) MaxListLength() int {
	return m.maxList
}

// ToNative converts a host value into the native representation of the
// expected kind. Returns an *sdk.Error of kind sdk.TypeMismatch if the
// value cannot be coerced.
func (m *Marshaler) ToNative(v sdk.Value, expected sdk.ValueKind) (any, error) {
	res, err := m.toNative(v, expected)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Marshaler) toNative(v sdk.Value, expected sdk.ValueKind) (any, *sdk.Error) {
	rule := Coercion(v.Kind, expected)
	if rule == Forbidden {
		return nil, forbidden(v.Kind, expected)
	}

	switch expected {
	case sdk.KindNull:
		return nil, nil
	case sdk.KindInteger:
		if v.Kind == sdk.KindReal {
			return wholeNumber(v.Real)
		}
		return v.Int, nil
	case sdk.KindReal:
		if v.Kind == sdk.KindInteger {
			return float64(v.Int), nil
		}
		return v.Real, nil
	case sdk.KindText:
		return v.Text, nil
	case sdk.KindBoolean:
		return v.Bool, nil
	case sdk.KindList:
		if v.Kind == sdk.KindNull {
			return []any{}, nil
		}
		if len(v.List) > m.maxList {
			return nil, sdk.Errorf(sdk.TypeMismatch, "list of %d elements exceeds the maximum of %d", len(v.List), m.maxList)
		}
		res := make([]any, len(v.List))
		for i, e := range v.List {
			n, err := m.toNative(e, e.Kind)
			if err != nil {
				err.Detail = fmt.Sprintf("element %d: %s", i+1, err.Detail)
				return nil, err
			}
			res[i] = n
		}
		return res, nil
	case sdk.KindError:
		if v.Err == nil {
			return &sdk.Error{Kind: sdk.NativeError}, nil
		}
		return v.Err, nil
	case sdk.KindOpaque:
		res, ok := m.handles.Value(cgo.Handle(v.Handle))
		if !ok || v.Handle > cgo.MaxHandle {
			return nil, sdk.Errorf(sdk.TypeMismatch, "invalid opaque handle %d", v.Handle)
		}
		return res, nil
	}
	return nil, forbidden(v.Kind, expected)
}

// ToHost converts the outcome of a native call into a host value of the
// expected kind. A non-nil err always produces an Error value: errors
// that are not already an *sdk.Error are reported as sdk.NativeError.
// A result that cannot be coerced to the expected kind produces an Error
// value of kind sdk.TypeMismatch bound to sdk.ReturnPosition.
//
// When the expected kind is Opaque, the result is stored in the handle
// table of the Marshaler and the host receives its handle.
func (m *Marshaler) ToHost(native any, err error, expected sdk.ValueKind) sdk.Value {
	if err != nil {
		return sdk.ErrorValue(err)
	}
	if expected == sdk.KindOpaque && native != nil {
		if v, ok := native.(sdk.Value); ok && v.Kind == sdk.KindOpaque {
			return v
		}
		h, err := m.store(native)
		if err != nil {
			return sdk.ErrorValue(sdk.Errorf(sdk.NativeError, "cannot return opaque value").
				WithCause(err).
				WithPosition(sdk.ReturnPosition))
		}
		return sdk.Opaque(uint64(h))
	}

	v, e := m.fromNative(native)
	if e != nil {
		return sdk.ErrorValue(e.WithPosition(sdk.ReturnPosition))
	}
	if v.Kind == sdk.KindError {
		return v
	}
	res, e := coerceHost(v, expected)
	if e != nil {
		return sdk.ErrorValue(e.WithPosition(sdk.ReturnPosition))
	}
	return res
}

// Release invalidates the handle of an Opaque value. Returns false if v
// is not an Opaque value or if its handle is not valid.
func (m *Marshaler) Release(v sdk.Value) bool {
	if v.Kind != sdk.KindOpaque || v.Handle > cgo.MaxHandle {
		return false
	}
	h := cgo.Handle(v.Handle)
	m.m.Lock()
	defer m.m.Unlock()
	val, ok := m.handles.Value(h)
	if !ok {
		return false
	}
	if k, ok := handleKey(val); ok && m.byValue[k] == h {
		delete(m.byValue, k)
	}
	m.handles.Delete(h)
	return true
}

// Reset invalidates all the Opaque values handed out so far.
func (m *Marshaler) Reset() {
	m.m.Lock()
	defer m.m.Unlock()
	m.byValue = make(map[any]cgo.Handle)
	m.handles.Reset()
}

func (m *Marshaler) store(v any) (cgo.Handle, error) {
	k, ok := handleKey(v)
	if !ok {
		return m.handles.New(v)
	}
	m.m.Lock()
	defer m.m.Unlock()
	if h, ok := m.indexed(k); ok {
		return h, nil
	}
	h, err := m.handles.New(v)
	if err != nil {
		return 0, err
	}
	m.byValue[k] = h
	return h, nil
}

// lookup returns the handle already given to v, if any.
func (m *Marshaler) lookup(v any) (cgo.Handle, bool) {
	k, ok := handleKey(v)
	if !ok {
		return 0, false
	}
	m.m.Lock()
	defer m.m.Unlock()
	return m.indexed(k)
}

// indexed returns the handle of key k if the table still holds its value.
// Stale entries are dropped. Must be called with m.m held.
func (m *Marshaler) indexed(k any) (cgo.Handle, bool) {
	h, ok := m.byValue[k]
	if !ok {
		return 0, false
	}
	if val, valid := m.handles.Value(h); valid {
		if vk, _ := handleKey(val); vk == k {
			return h, true
		}
	}
	delete(m.byValue, k)
	return 0, false
}

// mapRef identifies a map by reference.
type mapRef struct {
	t reflect.Type
	p uintptr
}

// handleKey returns the key of v in the reverse index. Pointers, channels
// and maps are keyed by reference, other comparable values by equality.
// Values that are not comparable cannot be indexed and get a fresh handle
// each time they are returned.
func handleKey(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map {
		return mapRef{t: rv.Type(), p: rv.Pointer()}, true
	}
	if rv.Comparable() {
		return v, true
	}
	return nil, false
}

// coerceHost applies the coercion table to an already classified value.
func coerceHost(v sdk.Value, expected sdk.ValueKind) (sdk.Value, *sdk.Error) {
	switch Coercion(v.Kind, expected) {
	case Identity:
		return v, nil
	case Widen:
		if v.Kind == sdk.KindInteger {
			return sdk.Real(float64(v.Int)), nil
		}
		return sdk.List(), nil
	case Narrow:
		i, err := wholeNumber(v.Real)
		if err != nil {
			return sdk.Value{}, err
		}
		return sdk.Int(i), nil
	}
	return sdk.Value{}, forbidden(v.Kind, expected)
}

// fromNative classifies a Go value into its natural host value. Values
// that are not host-representable are Opaque values if the Marshaler
// already handed them out, such as the elements of a List argument.
func (m *Marshaler) fromNative(x any) (sdk.Value, *sdk.Error) {
	switch v := x.(type) {
	case nil:
		return sdk.Null(), nil
	case sdk.Value:
		return v, nil
	case *sdk.Error:
		if v == nil {
			return sdk.Null(), nil
		}
		return sdk.ErrorValue(v), nil
	case error:
		return sdk.ErrorValue(v), nil
	case int64:
		return sdk.Int(v), nil
	case int:
		return sdk.Int(int64(v)), nil
	case float64:
		return sdk.Real(v), nil
	case string:
		return sdk.Text(v), nil
	case bool:
		return sdk.Bool(v), nil
	case []any:
		res := make([]sdk.Value, len(v))
		for i, e := range v {
			ev, err := m.fromNative(e)
			if err != nil {
				return sdk.Value{}, err
			}
			res[i] = ev
		}
		return sdk.List(res...), nil
	case []string:
		return sdk.Texts(v...), nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Chan, reflect.Map, reflect.Struct, reflect.Array:
		if h, ok := m.lookup(x); ok {
			return sdk.Opaque(uint64(h)), nil
		}
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return sdk.Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return sdk.Value{}, sdk.Errorf(sdk.TypeMismatch, "value %d overflows integer", u)
		}
		return sdk.Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return sdk.Real(rv.Float()), nil
	case reflect.String:
		return sdk.Text(rv.String()), nil
	case reflect.Bool:
		return sdk.Bool(rv.Bool()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return sdk.List(), nil
		}
		res := make([]sdk.Value, rv.Len())
		for i := range res {
			ev, err := m.fromNative(rv.Index(i).Interface())
			if err != nil {
				return sdk.Value{}, err
			}
			res[i] = ev
		}
		return sdk.List(res...), nil
	case reflect.Pointer, reflect.Interface, reflect.Map:
		if rv.IsNil() {
			return sdk.Null(), nil
		}
	}
	return sdk.Value{}, sdk.Errorf(sdk.TypeMismatch, "unsupported native type %T", x)
}
