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

// Package entry exports the C symbols of a routine library built with
// -buildmode=c-shared. Importing this package is enough to make a Go
// package a routine library: the host calls routine_sdk_init once, then
// routine_sdk_invoke for each call, routine_sdk_release for each opaque
// value it is done with, and routine_sdk_unload when done.
//
// The library provides its routines by setting a bridge from an init()
// function:
//
//	func init() {
//		t := routines.NewTable()
//		t.MustRegister(routines.MustFunc("add", func(a, b int64) int64 { return a + b }))
//		entry.SetBridge(bridge.New(t))
//	}
//
// Hosts often look for an entry point with a library-specific name. That
// name is provided by a two-line C forwarder compiled in the library's
// main package:
//
//	#include "routine_sdk.h"
//	extern void routine_sdk_init(rs_host_api* host);
//	void R_init_mylib(rs_host_api* host) { routine_sdk_init(host); }
//
// A mistyped forwarder name fails when the host resolves the symbol, never
// after the library has been loaded.
package entry

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/bridge"
)

var errNilHost = errors.New("routine_sdk_init called with a nil host")

var (
	current atomic.Pointer[bridge.Bridge]

	lastErrMu sync.Mutex
	lastErr   error
)

// SetBridge sets the bridge serving the C symbols of the library. It is
// meant to be called from an init() function.
func SetBridge(b *bridge.Bridge) {
	if b == nil {
		panic("routine-sdk-go/sdk/symbols/entry.SetBridge: b must not be nil")
	}
	current.Store(b)
}

// Bridge returns the bridge set with SetBridge, or nil.
func Bridge() *bridge.Bridge {
	return current.Load()
}

// LastError returns the error of the last failed load or unload, or nil.
func LastError() error {
	lastErrMu.Lock()
	defer lastErrMu.Unlock()
	return lastErr
}

func setLastError(err error) {
	lastErrMu.Lock()
	defer lastErrMu.Unlock()
	lastErr = err
}

func initWith(h bridge.Host) error {
	b := current.Load()
	if b == nil {
		err := sdk.Errorf(sdk.EmptyTable, "no routine library bridge set")
		setLastError(err)
		return err
	}
	err := b.Init(h)
	setLastError(err)
	return err
}

func invokeJSON(name string, argsJSON []byte) []byte {
	var res sdk.Value
	b := current.Load()
	if b == nil {
		res = sdk.ErrorValue(sdk.Errorf(sdk.NotRegistered, "no routine library bridge set").WithRoutine(name))
		return encodeValue(res)
	}
	args, err := sdk.DecodeArgs(argsJSON)
	if err != nil {
		res = sdk.ErrorValue(sdk.Errorf(sdk.TypeMismatch, "cannot decode arguments").
			WithRoutine(name).
			WithCause(err))
		return encodeValue(res)
	}
	return encodeValue(b.Invoke(name, args))
}

func encodeValue(v sdk.Value) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(sdk.ErrorValue(sdk.Errorf(sdk.NativeError, "cannot encode result").WithCause(err)))
	}
	return data
}

func routinesJSON() string {
	b := current.Load()
	if b == nil {
		return "[]"
	}
	data, err := b.Manifest()
	if err != nil {
		setLastError(err)
		return "[]"
	}
	return string(data)
}

func abiVersion() string {
	if b := current.Load(); b != nil {
		return b.ABIVersion()
	}
	return sdk.ABIVersion
}

func initSchema() string {
	return bridge.InitSchema()
}

func lastErrorString() string {
	if err := LastError(); err != nil {
		return err.Error()
	}
	return ""
}

func release(handle uint64) int32 {
	b := current.Load()
	if b == nil {
		return sdk.RSNotInitialized
	}
	if err := b.Release(handle); err != nil {
		return sdk.AsError(err).Kind.Code()
	}
	return sdk.RSSuccess
}

func unload() {
	b := current.Load()
	if b == nil {
		return
	}
	if err := b.Unload(); err != nil {
		setLastError(err)
	}
}
