// SPDX-License-Identifier: Apache-2.0
/*
Copyright (C) 2023 The Falco Authors.

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

package loader

import (
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/falcosecurity/routine-sdk-go/pkg/cgo"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// buildExample builds the gcatbase example as a shared library and
// returns its path.
func buildExample(t *testing.T) string {
	if testing.Short() {
		t.Skip("skipping c-shared build in short mode")
	}
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go command not found")
	}
	out, err := exec.Command(goBin, "env", "CGO_ENABLED", "CC").Output()
	if err != nil {
		t.Skipf("cannot read go env: %s", err)
	}
	env := strings.Fields(string(out))
	if len(env) < 2 || env[0] != "1" {
		t.Skip("cgo is disabled")
	}
	if _, err := exec.LookPath(env[1]); err != nil {
		t.Skipf("C compiler %s not found", env[1])
	}

	path := filepath.Join(t.TempDir(), "libgcatbase.so")
	cmd := exec.Command(goBin, "build", "-buildmode=c-shared", "-o", path, "./examples/gcatbase")
	cmd.Dir = filepath.Join("..", "..")
	out, err = cmd.CombinedOutput()
	require.NoError(t, err, "%s", out)
	return path
}

func TestLibrary(t *testing.T) {
	path := buildExample(t)
	core, logs := observer.New(zapcore.InfoLevel)

	l, err := NewLibrary(path, WithLogger(zap.New(core)))
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())
	assert.Equal(t, sdk.ABIVersion, l.ABIVersion())
	assert.JSONEq(t, bridge.InitSchema(), l.InitSchema())

	manifest, err := l.Manifest()
	require.NoError(t, err)
	names := make([]string, len(manifest))
	for i, sig := range manifest {
		names[i] = sig.Name
	}
	assert.Equal(t, []string{
		"all_codons", "all_nuc_tuples", "nucleotide", "r_all_tuples",
		"strand", "strand_len", "strand_text",
	}, names)

	_, err = l.Invoke("all_codons")
	assert.True(t, errors.Is(err, sdk.ErrNotRegistered))
	assert.True(t, errors.Is(l.Init(`{"maxListLength": -1}`), sdk.ErrInvalidConfig))

	require.NoError(t, l.Init(`{"maxListLength": 100}`))
	assert.Equal(t, manifest, l.Routines())
	assert.Len(t, logs.FilterMessage("routine library initialized").All(), 1)

	t.Run("invoke", func(t *testing.T) {
		res, err := l.Invoke("r_all_tuples", sdk.Int(4), sdk.Texts("A", "B", "C"))
		require.NoError(t, err)
		require.Equal(t, sdk.KindList, res.Kind)
		require.Len(t, res.List, 81)
		assert.True(t, sdk.Text("AABB").Equal(res.List[4]), "found %s", res.List[4])

		res, err = l.Invoke("nucleotide", sdk.Text("c"))
		require.NoError(t, err)
		assert.True(t, sdk.Text("C").Equal(res), "found %s", res)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := l.Invoke("missing")
		assert.True(t, errors.Is(err, sdk.ErrNotFound))

		_, err = l.Invoke("r_all_tuples", sdk.Int(2))
		assert.True(t, errors.Is(err, sdk.ErrArityMismatch))

		res, err := l.Invoke("r_all_tuples", sdk.Int(70000), sdk.Texts("A"))
		assert.True(t, errors.Is(err, sdk.ErrTypeMismatch))
		assert.Equal(t, 1, res.Error().Position)
		assert.Equal(t, "r_all_tuples", res.Error().Routine)

		_, err = l.Invoke("nucleotide", sdk.Text("U"))
		assert.True(t, errors.Is(err, sdk.ErrNativeError))

		// the configured list limit bounds the results
		_, err = l.Invoke("all_nuc_tuples", sdk.Int(4))
		assert.True(t, errors.Is(err, sdk.ErrNativeError))
		assert.Contains(t, err.Error(), "of 100")
	})

	t.Run("opaque", func(t *testing.T) {
		v, err := l.Invoke("strand", sdk.Text("GATTACA"))
		require.NoError(t, err)
		require.Equal(t, sdk.KindOpaque, v.Kind)

		res, err := l.Invoke("strand_len", v)
		require.NoError(t, err)
		assert.True(t, sdk.Int(7).Equal(res), "found %s", res)

		require.NoError(t, l.Release(v))
		assert.True(t, errors.Is(l.Release(v), sdk.ErrNotFound))
		assert.True(t, errors.Is(l.Release(sdk.Int(1)), sdk.ErrTypeMismatch))
		_, err = l.Invoke("strand_len", v)
		assert.True(t, errors.Is(err, sdk.ErrTypeMismatch))

		// released handles are available again
		for i := 0; i < 2*cgo.MaxHandle; i++ {
			v, err := l.Invoke("strand", sdk.Text("ACGT"))
			require.NoError(t, err, "call %d", i)
			require.NoError(t, l.Release(v), "call %d", i)
		}
	})

	assert.True(t, errors.Is(l.Init(""), sdk.ErrAlreadyRegistered))

	v, err := l.Invoke("strand", sdk.Text("A"))
	require.NoError(t, err)
	require.NoError(t, l.Unload())
	_, err = l.Invoke("all_codons")
	assert.True(t, errors.Is(err, sdk.ErrNotRegistered))
	assert.True(t, errors.Is(l.Release(v), sdk.ErrNotRegistered))

	// the same library loaded by a host requiring a newer ABI
	newer, err := NewLibrary(path, WithRequiredABIVersion("2.0.0"))
	require.NoError(t, err)
	err = newer.Init("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abi_mismatch")
	assert.Nil(t, newer.Routines())

	// a failed load leaves the library ready for another one
	require.NoError(t, l.Init(""))
	res, err := l.Invoke("all_codons")
	require.NoError(t, err)
	assert.Len(t, res.List, 64)
	require.NoError(t, l.Unload())
}
