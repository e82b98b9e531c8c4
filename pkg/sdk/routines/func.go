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

package routines

import (
	"fmt"
	"reflect"

	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// FuncOption customizes the descriptor built by Func.
type FuncOption func(*Descriptor)

// NonReentrant marks the routine as non-reentrant.
func NonReentrant() FuncOption {
	return func(d *Descriptor) {
		d.NonReentrant = true
	}
}

// Doc sets the documentation string advertised to the host.
func Doc(doc string) FuncOption {
	return func(d *Descriptor) {
		d.Doc = doc
	}
}

// Func builds a descriptor from a Go function, deriving the calling
// signature from the function type:
//   - int, int8..int64, uint, uint8..uint64: Integer
//   - float32, float64: Real
//   - string: Text
//   - bool: Boolean
//   - slices: List (elements are converted to the slice element type)
//   - error: Error
//   - anything else (pointers, structs, maps, interfaces): Opaque
//
// The function can return nothing, a single value, an error, or a value
// followed by an error. A function returning nothing (or only an error)
// has a Null return kind. Variadic functions are not supported.
//
// Integer arguments that overflow the parameter type are rejected with
// a type mismatch at call time instead of being silently truncated.
func Func(name string, fn any, opts ...FuncOption) (Descriptor, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return Descriptor{}, sdk.Errorf(sdk.InvalidDescriptor, "expected a func, got %T", fn).WithRoutine(name)
	}
	ft := v.Type()
	if ft.IsVariadic() {
		return Descriptor{}, sdk.Errorf(sdk.InvalidDescriptor, "variadic functions are not supported").WithRoutine(name)
	}

	d := Descriptor{
		Name:     name,
		Arity:    ft.NumIn(),
		ArgKinds: make([]sdk.ValueKind, ft.NumIn()),
	}
	for i := 0; i < ft.NumIn(); i++ {
		d.ArgKinds[i] = kindOf(ft.In(i))
	}

	returnsErr := ft.NumOut() > 0 && ft.Out(ft.NumOut()-1) == errorType
	switch {
	case ft.NumOut() == 0, ft.NumOut() == 1 && returnsErr:
		d.ReturnKind = sdk.KindNull
	case ft.NumOut() == 1, ft.NumOut() == 2 && returnsErr:
		d.ReturnKind = kindOf(ft.Out(0))
	default:
		return Descriptor{}, sdk.Errorf(sdk.InvalidDescriptor, "unsupported results for %s", ft).WithRoutine(name)
	}

	d.Entry = func(args []any) (any, error) {
		if len(args) != ft.NumIn() {
			return nil, sdk.Errorf(sdk.ArityMismatch, "expected %d arguments, got %d", ft.NumIn(), len(args)).WithRoutine(name)
		}
		in := make([]reflect.Value, len(args))
		for i, a := range args {
			arg, err := convertArg(a, ft.In(i))
			if err != nil {
				return nil, err.WithRoutine(name).WithPosition(i + 1)
			}
			in[i] = arg
		}
		out := v.Call(in)
		if returnsErr {
			if errV := out[len(out)-1]; !errV.IsNil() {
				return nil, errV.Interface().(error)
			}
			out = out[:len(out)-1]
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out[0].Interface(), nil
	}

	for _, opt := range opts {
		opt(&d)
	}
	return d, d.Validate()
}

// MustFunc is like Func but panics on error.
func MustFunc(name string, fn any, opts ...FuncOption) Descriptor {
	d, err := Func(name, fn, opts...)
	if err != nil {
		panic("routine-sdk-go/sdk/routines.MustFunc: " + err.Error())
	}
	return d
}

func kindOf(t reflect.Type) sdk.ValueKind {
	if t == errorType {
		return sdk.KindError
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return sdk.KindInteger
	case reflect.Float32, reflect.Float64:
		return sdk.KindReal
	case reflect.String:
		return sdk.KindText
	case reflect.Bool:
		return sdk.KindBoolean
	case reflect.Slice:
		return sdk.KindList
	}
	return sdk.KindOpaque
}

// convertArg converts a native argument into a value assignable to t.
func convertArg(a any, t reflect.Type) (reflect.Value, *sdk.Error) {
	if a == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, mismatch("nil", t)
	}
	switch v := a.(type) {
	case int64:
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			r := reflect.New(t).Elem()
			if r.OverflowInt(v) {
				return reflect.Value{}, sdk.Errorf(sdk.TypeMismatch, "value %d overflows %s", v, t)
			}
			r.SetInt(v)
			return r, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			r := reflect.New(t).Elem()
			if v < 0 || r.OverflowUint(uint64(v)) {
				return reflect.Value{}, sdk.Errorf(sdk.TypeMismatch, "value %d overflows %s", v, t)
			}
			r.SetUint(uint64(v))
			return r, nil
		}
	case float64:
		switch t.Kind() {
		case reflect.Float32, reflect.Float64:
			r := reflect.New(t).Elem()
			if r.OverflowFloat(v) {
				return reflect.Value{}, sdk.Errorf(sdk.TypeMismatch, "value %g overflows %s", v, t)
			}
			r.SetFloat(v)
			return r, nil
		}
	case []any:
		if t.Kind() == reflect.Slice {
			r := reflect.MakeSlice(t, len(v), len(v))
			for i, e := range v {
				ev, err := convertArg(e, t.Elem())
				if err != nil {
					err.Detail = fmt.Sprintf("element %d: %s", i+1, err.Detail)
					return reflect.Value{}, err
				}
				r.Index(i).Set(ev)
			}
			return r, nil
		}
	}

	// strings, booleans, errors and opaque values
	rv := reflect.ValueOf(a)
	if rv.Type().AssignableTo(t) {
		r := reflect.New(t).Elem()
		r.Set(rv)
		return r, nil
	}
	if rv.Type().ConvertibleTo(t) && rv.Kind() == t.Kind() {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, mismatch(rv.Type().String(), t)
}

func mismatch(from string, t reflect.Type) *sdk.Error {
	return sdk.Errorf(sdk.TypeMismatch, "cannot use %s as %s", from, t)
}
