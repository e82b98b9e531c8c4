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
	"math"

	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
)

// Rule tells how a value of one kind is converted to another kind.
type Rule int

const (
	// Forbidden conversions fail with a type mismatch.
	Forbidden Rule = iota
	// Identity conversions keep the value as is.
	Identity
	// Widen conversions always succeed, possibly losing precision
	// (integers beyond 2^53 converted to reals are rounded).
	Widen
	// Narrow conversions only succeed when no information is lost
	// (reals converted to integers must be whole numbers in range).
	Narrow
)

func (r Rule) String() string {
	switch r {
	case Identity:
		return "identity"
	case Widen:
		return "widen"
	case Narrow:
		return "narrow"
	}
	return "forbidden"
}

// Coercion returns the rule for converting a value of kind from into a
// value of kind to. The table is total: every pair of valid kinds has
// exactly one rule, and pairs involving invalid kinds are Forbidden.
//
//	from \ to  null  integer  real    text  boolean  list   error  opaque
//	null       id    -        -       -     -        widen  -      -
//	integer    -     id       widen   -     -        -      -      -
//	real       -     narrow   id      -     -        -      -      -
//	text       -     -        -       id    -        -      -      -
//	boolean    -     -        -       -     id       -      -      -
//	list       -     -        -       -     -        id     -      -
//	error      -     -        -       -     -        -      id     -
//	opaque     -     -        -       -     -        -      -      id
func Coercion(from, to sdk.ValueKind) Rule {
	if !from.Valid() || !to.Valid() {
		return Forbidden
	}
	switch {
	case from == to:
		return Identity
	case from == sdk.KindInteger && to == sdk.KindReal:
		return Widen
	case from == sdk.KindReal && to == sdk.KindInteger:
		return Narrow
	case from == sdk.KindNull && to == sdk.KindList:
		return Widen
	}
	return Forbidden
}

// wholeNumber converts f to an int64 if f is a whole number that fits.
func wholeNumber(f float64) (int64, *sdk.Error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, sdk.Errorf(sdk.TypeMismatch, "value %g is not a whole number", f)
	}
	if math.Trunc(f) != f {
		return 0, sdk.Errorf(sdk.TypeMismatch, "value %g is not a whole number", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, sdk.Errorf(sdk.TypeMismatch, "value %g overflows integer", f)
	}
	return int64(f), nil
}

func forbidden(from, to sdk.ValueKind) *sdk.Error {
	return sdk.Errorf(sdk.TypeMismatch, "cannot convert %s to %s", from, to)
}
