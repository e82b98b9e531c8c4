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

// Package loader loads routine libraries from the local filesystem and
// plays the host side of their C ABI. It is used to embed routine
// libraries in Go programs, and to test libraries end to end.
package loader

// note: cgo does not support calling function pointers, so we have to
// create wrappers around those to access them from Go code

/*
#cgo linux LDFLAGS: -ldl
#cgo CFLAGS: -I ../sdk

#include <dlfcn.h>
#include <stdio.h>
#include <stdlib.h>
#include "routine_sdk.h"

typedef struct rs_library
{
	void* handle;
	rs_init_fn init;
	rs_invoke_fn invoke;
	rs_get_str_fn get_routines;
	rs_get_str_fn get_init_schema;
	rs_get_str_fn get_abi_version;
	rs_get_str_fn get_last_error;
	rs_release_fn release;
	rs_unload_fn unload;
	rs_free_fn free_mem;
} rs_library;

extern int32_t loader_declare_routine(void* owner, char* name, char* signature);
extern void loader_retract_routine(void* owner, char* name);

static int rs_resolve(void* h, void** dst, const char* sym, char* err, size_t errlen)
{
	*dst = dlsym(h, sym);
	if (*dst == NULL)
	{
		snprintf(err, errlen, "missing symbol %s", sym);
		return 0;
	}
	return 1;
}

static rs_library* rs_load(const char* path, char* err, size_t errlen)
{
	void* h = dlopen(path, RTLD_NOW | RTLD_LOCAL);
	if (h == NULL)
	{
		snprintf(err, errlen, "%s", dlerror());
		return NULL;
	}
	rs_library* l = (rs_library*) calloc(1, sizeof(rs_library));
	l->handle = h;
	if (!rs_resolve(h, (void**) &l->init, "routine_sdk_init", err, errlen)
		|| !rs_resolve(h, (void**) &l->invoke, "routine_sdk_invoke", err, errlen)
		|| !rs_resolve(h, (void**) &l->get_routines, "routine_sdk_get_routines", err, errlen)
		|| !rs_resolve(h, (void**) &l->get_init_schema, "routine_sdk_get_init_schema", err, errlen)
		|| !rs_resolve(h, (void**) &l->get_abi_version, "routine_sdk_get_abi_version", err, errlen)
		|| !rs_resolve(h, (void**) &l->get_last_error, "routine_sdk_get_last_error", err, errlen)
		|| !rs_resolve(h, (void**) &l->release, "routine_sdk_release", err, errlen)
		|| !rs_resolve(h, (void**) &l->unload, "routine_sdk_unload", err, errlen)
		|| !rs_resolve(h, (void**) &l->free_mem, "routine_sdk_free", err, errlen))
	{
		dlclose(h);
		free(l);
		return NULL;
	}
	return l;
}

static void rs_init(rs_library* l, rs_host_api* api)
{
	api->declare_routine = (int32_t (*)(void*, const char*, const char*)) loader_declare_routine;
	api->retract_routine = (void (*)(void*, const char*)) loader_retract_routine;
	l->init(api);
}

static char* rs_invoke(rs_library* l, char* name, char* args)
{
	return l->invoke(name, args);
}

static char* rs_get_routines(rs_library* l)
{
	return l->get_routines();
}

static char* rs_get_init_schema(rs_library* l)
{
	return l->get_init_schema();
}

static char* rs_get_abi_version(rs_library* l)
{
	return l->get_abi_version();
}

static char* rs_get_last_error(rs_library* l)
{
	return l->get_last_error();
}

static int32_t rs_release(rs_library* l, uint64_t handle)
{
	return l->release(handle);
}

static void rs_unload(rs_library* l)
{
	l->unload();
}

static void rs_free(rs_library* l, void* p)
{
	l->free_mem(p);
}
*/
import "C"
import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/falcosecurity/routine-sdk-go/pkg/cgo"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

const maxErrLen = 1024

// Library represents a routine library loaded from an external shared
// dynamic library.
//
// Libraries embedding a Go runtime cannot be closed, so a loaded library
// stays mapped until the process exits even after Unload.
type Library struct {
	m           sync.RWMutex
	lib         *C.rs_library
	path        string
	abiVersion  string
	initSchema  string
	requiredABI string
	logger      *zap.Logger

	initialized bool
	routines    []sdk.Signature
	// routines declared by the library during Init
	pending map[string]sdk.Signature
}

type Option func(*Library)

func WithLogger(l *zap.Logger) Option {
	return func(lib *Library) {
		lib.logger = l
	}
}

// WithRequiredABIVersion sets the minimum ABI version required from the
// library. Defaults to sdk.ABIVersion. An empty string disables the check.
func WithRequiredABIVersion(v string) Option {
	return func(lib *Library) {
		lib.requiredABI = v
	}
}

// NewLibrary loads a routine library from the dynamic library present in
// the local filesystem at the given path. This resolves all the symbols
// of the library and reads its static information, but does not
// initialize it. For that purpose, refer to the Init function of the
// returned *Library.
func NewLibrary(path string, opts ...Option) (*Library, error) {
	l := &Library{
		path:        path,
		requiredABI: sdk.ABIVersion,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}

	errBuf := (*C.char)(C.malloc(C.size_t(maxErrLen) * C.sizeof_char))
	defer C.free(unsafe.Pointer(errBuf))
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	l.lib = C.rs_load(cPath, errBuf, C.size_t(maxErrLen))
	if l.lib == nil {
		return nil, fmt.Errorf("cannot load routine library %s: %s", path, C.GoString(errBuf))
	}
	l.abiVersion = l.takeString(C.rs_get_abi_version(l.lib))
	l.initSchema = l.takeString(C.rs_get_init_schema(l.lib))
	l.logger.Debug("routine library loaded",
		zap.String("path", path),
		zap.String("abiVersion", l.abiVersion))
	return l, nil
}

// takeString copies a string returned by the library and releases it.
func (l *Library) takeString(s *C.char) string {
	if s == nil {
		return ""
	}
	defer C.rs_free(l.lib, unsafe.Pointer(s))
	return C.GoString(s)
}

// Path returns the path the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

// ABIVersion returns the ABI version implemented by the library.
func (l *Library) ABIVersion() string {
	return l.abiVersion
}

// InitSchema returns the JSON schema of the init configuration of the
// library, or an empty string if the library accepts no configuration.
func (l *Library) InitSchema() string {
	return l.initSchema
}

// Init initializes the library with a given config string, collecting the
// routines it declares. The config is first validated against the init
// schema of the library. A successful call returns a nil error, and
// invoking Init on an initialized library returns an error wrapping
// sdk.ErrAlreadyRegistered.
func (l *Library) Init(config string) error {
	l.m.Lock()
	defer l.m.Unlock()
	if l.initialized {
		return sdk.Errorf(sdk.AlreadyRegistered, "routine library %s is already initialized", l.path)
	}

	config, err := validateConfig(l.initSchema, config)
	if err != nil {
		return err
	}

	l.pending = make(map[string]sdk.Signature)
	defer func() { l.pending = nil }()

	// the owner pointer carries a handle to l, since C code cannot hold
	// Go pointers
	h := cgo.NewHandle(l)
	defer h.Delete()
	owner := (*C.uintptr_t)(C.malloc(C.sizeof_uintptr_t))
	defer C.free(unsafe.Pointer(owner))
	*owner = C.uintptr_t(h)

	api := (*C.rs_host_api)(C.calloc(1, C.sizeof_rs_host_api))
	defer C.free(unsafe.Pointer(api))
	api.owner = unsafe.Pointer(owner)
	api.config = C.CString(config)
	defer C.free(unsafe.Pointer(api.config))
	if l.requiredABI != "" {
		api.required_abi_version = C.CString(l.requiredABI)
		defer C.free(unsafe.Pointer(api.required_abi_version))
	}

	C.rs_init(l.lib, api)
	if err := l.lastError(); err != nil {
		return err
	}

	l.routines = make([]sdk.Signature, 0, len(l.pending))
	for _, sig := range l.pending {
		l.routines = append(l.routines, sig)
	}
	sort.Slice(l.routines, func(i, j int) bool {
		return l.routines[i].Name < l.routines[j].Name
	})
	l.initialized = true
	l.logger.Info("routine library initialized",
		zap.String("path", l.path),
		zap.Int("routines", len(l.routines)))
	return nil
}

// declare is the host side of declare_routine.
func (l *Library) declare(name, signature string) int32 {
	var sig sdk.Signature
	if err := json.Unmarshal([]byte(signature), &sig); err != nil {
		l.logger.Warn("malformed routine signature", zap.String("routine", name), zap.Error(err))
		return sdk.RSIllegalInput
	}
	if sig.Name != name {
		l.logger.Warn("routine signature does not match its name",
			zap.String("routine", name),
			zap.String("signature", sig.Name))
		return sdk.RSIllegalInput
	}
	if _, ok := l.pending[name]; ok {
		l.logger.Warn("routine declared twice", zap.String("routine", name))
		return sdk.RSFailure
	}
	l.pending[name] = sig
	return sdk.RSSuccess
}

// retract is the host side of retract_routine.
func (l *Library) retract(name string) {
	delete(l.pending, name)
}

// Routines returns the signatures of the routines declared by the library,
// sorted by name. Returns nil if the library is not initialized.
func (l *Library) Routines() []sdk.Signature {
	l.m.RLock()
	defer l.m.RUnlock()
	return l.routines
}

// Manifest returns the signatures advertised by the library through its
// routine_sdk_get_routines symbol.
func (l *Library) Manifest() ([]sdk.Signature, error) {
	var res []sdk.Signature
	if err := json.Unmarshal([]byte(l.takeString(C.rs_get_routines(l.lib))), &res); err != nil {
		return nil, err
	}
	return res, nil
}

// Invoke calls a routine of the library. An Error value returned by the
// routine is also returned as a Go error.
func (l *Library) Invoke(name string, args ...sdk.Value) (sdk.Value, error) {
	l.m.RLock()
	defer l.m.RUnlock()
	if !l.initialized {
		err := sdk.Errorf(sdk.NotRegistered, "routine library %s is not initialized", l.path).WithRoutine(name)
		return sdk.ErrorValue(err), err
	}
	if args == nil {
		args = []sdk.Value{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return sdk.Value{}, err
	}

	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	cArgs := C.CString(string(data))
	defer C.free(unsafe.Pointer(cArgs))

	var res sdk.Value
	if err := json.Unmarshal([]byte(l.takeString(C.rs_invoke(l.lib, cName, cArgs))), &res); err != nil {
		return sdk.Value{}, err
	}
	if e := res.Error(); e != nil {
		return res, e
	}
	return res, nil
}

// Release gives back an Opaque value returned by a routine of the library.
// The value must not be used afterwards.
func (l *Library) Release(v sdk.Value) error {
	l.m.RLock()
	defer l.m.RUnlock()
	if !l.initialized {
		return sdk.Errorf(sdk.NotRegistered, "routine library %s is not initialized", l.path)
	}
	if v.Kind != sdk.KindOpaque {
		return sdk.Errorf(sdk.TypeMismatch, "cannot release %s value", v.Kind)
	}
	switch rc := int32(C.rs_release(l.lib, C.uint64_t(v.Handle))); rc {
	case sdk.RSSuccess:
		return nil
	case sdk.RSNotFound:
		return sdk.Errorf(sdk.NotFound, "no opaque value with handle %d", v.Handle)
	case sdk.RSNotInitialized:
		return sdk.Errorf(sdk.NotRegistered, "routine library %s is not initialized", l.path)
	default:
		return sdk.Errorf(sdk.NativeError, "release failed with code %d", rc)
	}
}

// LastError returns the last error reported by the library, or nil.
func (l *Library) LastError() error {
	l.m.RLock()
	defer l.m.RUnlock()
	return l.lastError()
}

func (l *Library) lastError() error {
	if s := l.takeString(C.rs_get_last_error(l.lib)); s != "" {
		return errors.New(s)
	}
	return nil
}

// Unload releases the resources of the library. The library can be
// initialized again afterwards. Waits for the in-flight calls to return.
func (l *Library) Unload() error {
	l.m.Lock()
	defer l.m.Unlock()
	if !l.initialized {
		return nil
	}
	C.rs_unload(l.lib)
	l.initialized = false
	l.routines = nil
	l.logger.Info("routine library unloaded", zap.String("path", l.path))
	return l.lastError()
}

// validateConfig validates config against schema. An empty config is
// the same as "{}".
func validateConfig(schema, config string) (string, error) {
	if len(config) == 0 {
		config = "{}"
	}
	if len(schema) == 0 {
		return config, nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(config))
	if err != nil {
		return "", sdk.Errorf(sdk.InvalidConfig, "cannot validate config").WithCause(err)
	}
	if !result.Valid() {
		// return first error
		return "", sdk.Errorf(sdk.InvalidConfig, "%s", result.Errors()[0].Description())
	}
	return config, nil
}
