/*
Copyright (C) 2021 The Falco Authors.

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

package hooks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func TestSet(t *testing.T) {
	var s Set
	assert.NoError(t, s.Run())

	var order []int
	s.Add(func() error { order = append(order, 1); return nil })
	s.Add(func() error { order = append(order, 2); return errors.New("second") })
	s.Add(func() error { order = append(order, 3); panic("third") })
	s.Add(func() error { order = append(order, 4); return errors.New("fourth") })
	assert.Equal(t, 4, s.Len())

	err := s.Run()
	assert.Equal(t, []int{4, 3, 2, 1}, order)
	errs := multierr.Errors(err)
	if assert.Len(t, errs, 3) {
		assert.EqualError(t, errs[0], "fourth")
		assert.EqualError(t, errs[1], "unload hook panicked: third")
		assert.EqualError(t, errs[2], "second")
	}
}

func TestSetNil(t *testing.T) {
	var s Set
	assert.Panics(t, func() { s.Add(nil) })
}
