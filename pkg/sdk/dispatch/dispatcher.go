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

package dispatch

import (
	"runtime/debug"
	"sync"

	"github.com/falcosecurity/routine-sdk-go/pkg/sdk"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/marshal"
	"github.com/falcosecurity/routine-sdk-go/pkg/sdk/routines"
	"go.uber.org/zap"
)

// Dispatcher serves the calls to the routines of a table.
type Dispatcher struct {
	table     *routines.Table
	marshaler *marshal.Marshaler
	logger    *zap.Logger
	trace     bool

	// one lock per non-reentrant routine, read-only after New
	locks map[string]*sync.Mutex
}

type Option func(*Dispatcher)

// WithMarshaler sets the marshaler used to convert arguments and results.
func WithMarshaler(m *marshal.Marshaler) Option {
	return func(d *Dispatcher) {
		d.marshaler = m
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithTracing enables a debug log entry for each call and its result.
func WithTracing(enabled bool) Option {
	return func(d *Dispatcher) {
		d.trace = enabled
	}
}

// New returns a dispatcher serving the routines of t. The table is frozen
// by New, since the set of routines must not change once calls can be
// served.
func New(t *routines.Table, opts ...Option) *Dispatcher {
	t.Freeze()
	d := &Dispatcher{
		table: t,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.marshaler == nil {
		d.marshaler = marshal.New()
	}
	if d.logger == nil {
		d.logger = Logger()
	}
	for _, desc := range t.Descriptors() {
		if desc.NonReentrant {
			d.locks[desc.Name] = &sync.Mutex{}
		}
	}
	return d
}

// Marshaler returns the marshaler used by d.
func (d *Dispatcher) Marshaler() *marshal.Marshaler {
	return d.marshaler
}

// Invoke calls the routine registered with the given name. Failures are
// returned as Error values: Invoke never panics and has no error result.
func (d *Dispatcher) Invoke(name string, args []sdk.Value) sdk.Value {
	res, _ := d.Call(name, args)
	return res
}

// Call is like Invoke, but also returns the failure, if any, as a Go
// error. The returned error is the *sdk.Error embedded in the result.
// A routine returning an Error value as its regular result does not
// produce a Go error.
func (d *Dispatcher) Call(name string, args []sdk.Value) (res sdk.Value, err error) {
	c := newCallContext(name, args, d.trace)
	defer func() {
		// the boundary also covers the dispatch path itself
		if r := recover(); r != nil {
			e := marshal.Fault(r, string(debug.Stack())).WithRoutine(name)
			d.logFault(c, e)
			res, err = sdk.ErrorValue(e), e
		}
	}()

	if d.trace {
		d.logger.Debug("routine call",
			zap.String("routine", name),
			zap.Stringer("call", c.ID),
			zap.Int("args", len(args)))
	}

	if e := d.call(c); e != nil {
		if e.Routine == "" {
			e = e.WithRoutine(name)
		}
		c.Result = sdk.ErrorValue(e)
		err = e
	}

	if d.trace {
		d.logger.Debug("routine return",
			zap.String("routine", name),
			zap.Stringer("call", c.ID),
			zap.Stringer("result", c.Result.Kind),
			zap.Error(err))
	}
	return c.Result, err
}

func (d *Dispatcher) call(c *CallContext) *sdk.Error {
	desc, err := d.table.Lookup(c.Name)
	if err != nil {
		return sdk.AsError(err)
	}
	c.Descriptor = desc

	if len(c.Args) != desc.Arity {
		return sdk.Errorf(sdk.ArityMismatch, "expected %d arguments, got %d", desc.Arity, len(c.Args))
	}

	c.Native = make([]any, len(c.Args))
	for i, a := range c.Args {
		n, err := d.marshaler.ToNative(a, desc.ArgKinds[i])
		if err != nil {
			return sdk.AsError(err).WithPosition(i + 1)
		}
		c.Native[i] = n
	}

	native, err := d.invoke(desc, c.Native)
	if err != nil {
		e := sdk.AsError(err)
		if e.Kind == sdk.NativeFault {
			d.logFault(c, e)
		}
		return e
	}

	c.Result = d.marshaler.ToHost(native, nil, desc.ReturnKind)
	if e := c.Result.Error(); e != nil {
		if desc.ReturnKind != sdk.KindError || e.Position == sdk.ReturnPosition {
			return e
		}
	}
	return nil
}

func (d *Dispatcher) invoke(desc *routines.Descriptor, args []any) (any, error) {
	if l, ok := d.locks[desc.Name]; ok {
		l.Lock()
		defer l.Unlock()
	}
	return marshal.Guard(func() (any, error) {
		return desc.Entry(args)
	})
}

func (d *Dispatcher) logFault(c *CallContext, e *sdk.Error) {
	c.identify()
	d.logger.Error("routine panicked",
		zap.String("routine", c.Name),
		zap.Stringer("call", c.ID),
		zap.Any("panic", e.Value),
		zap.String("stack", e.Stack))
}
