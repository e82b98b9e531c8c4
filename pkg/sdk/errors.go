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
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes the failures of the layer.
type ErrorKind string

// Registration-time and load-time kinds. All of them abort the library load.
const (
	DuplicateName     ErrorKind = "duplicate_name"
	InvalidDescriptor ErrorKind = "invalid_descriptor"
	TableFrozen       ErrorKind = "table_frozen"
	EmptyTable        ErrorKind = "empty_table"
	InvalidSignature  ErrorKind = "invalid_signature"
	AlreadyRegistered ErrorKind = "already_registered"
	ABIMismatch       ErrorKind = "abi_mismatch"
	InvalidConfig     ErrorKind = "invalid_config"
)

// Dispatch-time kinds. These are always returned to the host as Error
// values and never abort the host process.
const (
	NotRegistered ErrorKind = "not_registered"
	NotFound      ErrorKind = "not_found"
	ArityMismatch ErrorKind = "arity_mismatch"
	TypeMismatch  ErrorKind = "type_mismatch"
	NativeFault   ErrorKind = "native_fault"
	NativeError   ErrorKind = "native_error"
)

// Sentinels usable with errors.Is. Matching only considers the kind.
var (
	ErrDuplicateName     = &Error{Kind: DuplicateName}
	ErrInvalidDescriptor = &Error{Kind: InvalidDescriptor}
	ErrTableFrozen       = &Error{Kind: TableFrozen}
	ErrEmptyTable        = &Error{Kind: EmptyTable}
	ErrInvalidSignature  = &Error{Kind: InvalidSignature}
	ErrAlreadyRegistered = &Error{Kind: AlreadyRegistered}
	ErrABIMismatch       = &Error{Kind: ABIMismatch}
	ErrInvalidConfig     = &Error{Kind: InvalidConfig}
	ErrNotRegistered     = &Error{Kind: NotRegistered}
	ErrNotFound          = &Error{Kind: NotFound}
	ErrArityMismatch     = &Error{Kind: ArityMismatch}
	ErrTypeMismatch      = &Error{Kind: TypeMismatch}
	ErrNativeFault       = &Error{Kind: NativeFault}
	ErrNativeError       = &Error{Kind: NativeError}
)

// Fatal returns true for the kinds that abort a library load.
func (k ErrorKind) Fatal() bool {
	switch k {
	case DuplicateName, InvalidDescriptor, TableFrozen, EmptyTable,
		InvalidSignature, AlreadyRegistered, ABIMismatch, InvalidConfig:
		return true
	}
	return false
}

// Code returns the return code reported through the C ABI for this kind.
func (k ErrorKind) Code() int32 {
	switch k {
	case "":
		return RSSuccess
	case NotFound:
		return RSNotFound
	case ArityMismatch, TypeMismatch, InvalidConfig:
		return RSIllegalInput
	case ABIMismatch:
		return RSVersionMismatch
	case NotRegistered:
		return RSNotInitialized
	}
	return RSFailure
}

// Position values with a special meaning.
const (
	// NoPosition means that the error is not bound to an argument.
	NoPosition = 0
	// ReturnPosition means that the error concerns the return value.
	ReturnPosition = -1
)

// Error is the structured error type used throughout the layer.
type Error struct {
	Kind ErrorKind
	// Routine is the name of the routine involved, if any.
	Routine string
	// Position is the 1-based argument position, NoPosition or
	// ReturnPosition.
	Position int
	Detail   string
	Cause    error
	// Value is the recovered panic value of a NativeFault.
	Value any
	// Stack is the goroutine stack captured for a NativeFault.
	Stack string
}

// Errorf creates an error of the given kind with a formatted detail.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	e := &Error{Kind: kind}
	if len(args) > 0 {
		e.Detail = fmt.Sprintf(format, args...)
	} else {
		e.Detail = format
	}
	return e
}

// WithRoutine returns a copy of e bound to the given routine name.
func (e *Error) WithRoutine(name string) *Error {
	c := *e
	c.Routine = name
	return &c
}

// WithPosition returns a copy of e bound to the given argument position.
func (e *Error) WithPosition(pos int) *Error {
	c := *e
	c.Position = pos
	return &c
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

func (e *Error) Error() string {
	return "[" + string(e.Kind) + "]" + e.describe()
}

// Message returns the error message without the kind prefix.
func (e *Error) Message() string {
	return strings.TrimPrefix(strings.TrimPrefix(e.describe(), " "), ": ")
}

func (e *Error) describe() string {
	var b strings.Builder

	if e.Routine != "" {
		b.WriteString(" routine ")
		b.WriteString(e.Routine)
	}

	switch {
	case e.Position > 0:
		fmt.Fprintf(&b, " argument %d", e.Position)
	case e.Position == ReturnPosition:
		b.WriteString(" return value")
	}

	if d := e.detailText(); d != "" {
		b.WriteString(": ")
		b.WriteString(d)
	}

	return b.String()
}

func (e *Error) detailText() string {
	switch {
	case e.Detail != "" && e.Cause != nil:
		return e.Detail + " (caused by: " + e.Cause.Error() + ")"
	case e.Cause != nil:
		return e.Cause.Error()
	}
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// AsError converts err into an *Error. Errors that are not already part
// of the taxonomy are wrapped as NativeError. Returns nil for a nil err.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: NativeError, Cause: err}
}
