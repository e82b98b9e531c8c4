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

// Package bridge implements the registration bridge of a routine library:
// the lifecycle of the library as seen by the host, from the load-time
// declaration of its routines to unloading.
//
// A bridge moves through the states Unloaded, Loading, Registered, Active
// and Unloading. Init is the only way from Unloaded to Registered, and
// it succeeds at most once per load.
package bridge

import (
	"sync/atomic"

	"github.com/falcosecurity/routine-sdk-go/pkg/cgo"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/dispatch"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/internal/hooks"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/marshal"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/routines"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Bridge connects a routine table to a host.
type Bridge struct {
	table      *routines.Table
	handles    *cgo.Table
	logger     *zap.Logger
	abiVersion string

	state      atomic.Int32
	dispatcher atomic.Pointer[dispatch.Dispatcher]
	config     atomic.Pointer[Config]
	onUnload   hooks.Set
}

type Option func(*Bridge)

func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithABIVersion overrides the ABI version the library claims to
// implement. Defaults to sdk.ABIVersion.
func WithABIVersion(v string) Option {
	return func(b *Bridge) {
		b.abiVersion = v
	}
}

// WithHandles sets the table storing the opaque values returned by the
// routines. Defaults to a table owned by the bridge.
func WithHandles(t *cgo.Table) Option {
	return func(b *Bridge) {
		b.handles = t
	}
}

// New returns an unloaded bridge for the routines of t.
func New(t *routines.Table, opts ...Option) *Bridge {
	b := &Bridge{
		table:      t,
		abiVersion: sdk.ABIVersion,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = Logger()
	}
	if b.handles == nil {
		b.handles = cgo.NewTable()
	}
	return b
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Table returns the routine table of the bridge.
func (b *Bridge) Table() *routines.Table {
	return b.table
}

// ABIVersion returns the ABI version implemented by the library.
func (b *Bridge) ABIVersion() string {
	return b.abiVersion
}

// Config returns the configuration received by the last successful Init,
// or nil if the bridge is not serving calls.
func (b *Bridge) Config() *Config {
	return b.config.Load()
}

// OnUnload adds a callback run by Unload.
func (b *Bridge) OnUnload(fn hooks.OnUnloadFn) {
	b.onUnload.Add(fn)
}

// Init registers the routines of the library with the host. It checks the
// ABI version required by the host, validates the host configuration,
// freezes the routine table and declares every routine to the host in
// name order.
//
// Init fails with sdk.ErrAlreadyRegistered if the bridge is not Unloaded,
// including when another Init is in progress. In that case nothing is
// declared to the host. Any other failure aborts the load: the routines
// already declared are retracted (if the host implements Retracter), the
// bridge goes back to Unloaded and the returned error combines all the
// failures.
func (b *Bridge) Init(host Host) (err error) {
	if !b.state.CompareAndSwap(int32(Unloaded), int32(Loading)) {
		return sdk.Errorf(sdk.AlreadyRegistered, "library is %s", b.State())
	}
	defer func() {
		if err != nil {
			b.logger.Error("routine library load failed", zap.Error(err))
			b.state.Store(int32(Unloaded))
		}
	}()

	if v, ok := host.(Versioned); ok {
		if req := v.RequiredABIVersion(); req != "" {
			if err := checkABI(req, b.abiVersion); err != nil {
				return err
			}
		}
	}

	var config string
	if c, ok := host.(Configured); ok {
		config = c.Config()
	}
	cfg, err := ParseConfig(config)
	if err != nil {
		return err
	}

	b.table.Freeze()
	if b.table.Len() == 0 {
		return sdk.Errorf(sdk.EmptyTable, "no routine to register")
	}
	sigs := Signatures(b.table)
	if _, err := encodeManifest(sigs); err != nil {
		return err
	}

	if err := b.declare(host, sigs); err != nil {
		return err
	}

	m := marshal.New(
		marshal.WithHandles(b.handles),
		marshal.WithMaxListLength(cfg.MaxListLength))
	d := dispatch.New(b.table,
		dispatch.WithMarshaler(m),
		dispatch.WithLogger(b.logger),
		dispatch.WithTracing(cfg.TraceCalls))
	b.config.Store(cfg)
	b.dispatcher.Store(d)
	b.state.Store(int32(Registered))

	b.logger.Info("routine library registered",
		zap.Int("routines", len(sigs)),
		zap.String("abiVersion", b.abiVersion))
	return nil
}

func (b *Bridge) declare(host Host, sigs []sdk.Signature) error {
	var err error
	declared := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		if e := host.DeclareRoutine(sig); e != nil {
			err = multierr.Append(err, sdk.Errorf(sdk.InvalidSignature, "declaration rejected by host").
				WithRoutine(sig.Name).
				WithCause(e))
			continue
		}
		declared = append(declared, sig.Name)
	}
	if err == nil {
		return nil
	}
	if r, ok := host.(Retracter); ok && len(declared) > 0 {
		b.logger.Warn("retracting declared routines", zap.Strings("routines", declared))
		r.RetractRoutines(declared)
	}
	return err
}

// Invoke calls a routine. Calls made while the bridge is not serving
// calls return a NotRegistered Error value.
func (b *Bridge) Invoke(name string, args []sdk.Value) sdk.Value {
	res, _ := b.Call(name, args)
	return res
}

// Call is like Invoke, but also returns the failure, if any, as a Go error.
// The first call moves the bridge from Registered to Active.
func (b *Bridge) Call(name string, args []sdk.Value) (sdk.Value, error) {
	d := b.dispatcher.Load()
	if d == nil || !b.State().Serving() {
		err := sdk.Errorf(sdk.NotRegistered, "library is %s", b.State()).WithRoutine(name)
		return sdk.ErrorValue(err), err
	}
	b.state.CompareAndSwap(int32(Registered), int32(Active))
	return d.Call(name, args)
}

// Release invalidates the opaque value with the given handle. The host
// calls it once it no longer holds the value, which makes the handle
// available again.
func (b *Bridge) Release(handle uint64) error {
	d := b.dispatcher.Load()
	if d == nil || !b.State().Serving() {
		return sdk.Errorf(sdk.NotRegistered, "library is %s", b.State())
	}
	if !d.Marshaler().Release(sdk.Opaque(handle)) {
		return sdk.Errorf(sdk.NotFound, "no opaque value with handle %d", handle)
	}
	return nil
}

// Manifest returns the JSON list of the signatures of the routines.
func (b *Bridge) Manifest() ([]byte, error) {
	return encodeManifest(Signatures(b.table))
}

// Unload releases the resources of the library: it runs the OnUnload
// callbacks and invalidates all the opaque values handed to the host.
// Unload has no effect unless the bridge is Registered or Active. The host
// must not call routines concurrently with Unload.
func (b *Bridge) Unload() error {
	for {
		s := b.State()
		if !s.Serving() {
			return nil
		}
		if b.state.CompareAndSwap(int32(s), int32(Unloading)) {
			break
		}
	}

	d := b.dispatcher.Swap(nil)
	b.config.Store(nil)
	err := b.onUnload.Run()
	if d != nil {
		d.Marshaler().Reset()
	}
	b.state.Store(int32(Unloaded))

	if err != nil {
		b.logger.Warn("unload hooks failed", zap.Error(err))
	}
	b.logger.Info("routine library unloaded")
	return err
}
