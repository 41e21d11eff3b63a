// Copyright 2024 The qflow Authors
// This file is part of the qflow library.
//
// The qflow library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The qflow library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the qflow library. If not, see <http://www.gnu.org/licenses/>.

package sandbox

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// StateStore is the only persistence channel a module has, and every call
// is mediated by the Isolation Layer (C4) so a module can never read or
// write another tenant's keyed state. Sandbox depends only on this
// interface, not on internal/isolation, keeping the dependency direction
// the narrow ABI implies.
type StateStore interface {
	ReadState(ctx context.Context, tenantID, execID, key string) ([]byte, bool, error)
	WriteState(ctx context.Context, tenantID, execID, key string, value []byte) error
}

// EventSink receives emit_event calls from a running module.
type EventSink interface {
	EmitEvent(ctx context.Context, execID string, event []byte) error
}

// hostModuleName is the import module name every step action module must
// use for its narrow ABI imports.
const hostModuleName = "env"

// invocation is the per-call state the host functions close over: the
// active tenant/execution context, the call budgets, and the module's own
// linear memory for marshaling bytes across the boundary.
type invocation struct {
	ctx      context.Context
	tenantID string
	execID   string
	input    []byte
	store    StateStore
	events   EventSink

	callCounts map[string]uint64
	callLimits map[string]uint64

	startedAt time.Time
	timeout   time.Duration

	aborted error
}

func (v *invocation) checkBudget(call string) bool {
	v.callCounts[call]++
	limit, ok := v.callLimits[call]
	if ok && v.callCounts[call] > limit {
		v.aborted = ErrHostCallBudget
		return false
	}
	if time.Since(v.startedAt) > v.timeout {
		v.aborted = ErrTimeout
		return false
	}
	return true
}

func readMemory(mod api.Module, ptr, length uint32) ([]byte, bool) {
	b, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, true
}

// buildHostModule registers the narrow, capability-gated ABI spec.md §4.2
// names: log, now, get_input, emit_event, read_state, write_state. There is
// no filesystem, no raw network, no process, no thread import — a module
// that declares any import outside this set fails instantiation with
// ErrDisallowedImport (checked by Invoke before instantiating).
func buildHostModule(rt wazero.Runtime, v *invocation) wazero.HostModuleBuilder {
	b := rt.NewHostModuleBuilder(hostModuleName)

	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) {
			if !v.checkBudget("log") {
				return
			}
			readMemory(mod, ptr, length) // discarded: host-side logging sink is wired by the node, not the sandbox itself
		}).
		Export("log")

	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module) uint64 {
			v.checkBudget("now")
			return uint64(time.Now().UnixNano())
		}).
		Export("now")

	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, dstPtr uint32) uint32 {
			if !v.checkBudget("get_input") {
				return 0
			}
			if !mod.Memory().Write(dstPtr, v.input) {
				v.aborted = ErrOutOfMemory
				return 0
			}
			return uint32(len(v.input))
		}).
		Export("get_input")

	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) uint32 {
			if !v.checkBudget("emit_event") {
				return 1
			}
			payload, ok := readMemory(mod, ptr, length)
			if !ok {
				v.aborted = ErrOutOfMemory
				return 1
			}
			if v.events == nil {
				return 0
			}
			if err := v.events.EmitEvent(v.ctx, v.execID, payload); err != nil {
				v.aborted = err
				return 1
			}
			return 0
		}).
		Export("emit_event")

	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, keyPtr, keyLen, dstPtr, dstCap uint32) uint32 {
			if !v.checkBudget("read_state") {
				return 0
			}
			key, ok := readMemory(mod, keyPtr, keyLen)
			if !ok {
				v.aborted = ErrOutOfMemory
				return 0
			}
			val, found, err := v.store.ReadState(v.ctx, v.tenantID, v.execID, string(key))
			if err != nil {
				v.aborted = err
				return 0
			}
			if !found || uint32(len(val)) > dstCap {
				return 0
			}
			if !mod.Memory().Write(dstPtr, val) {
				v.aborted = ErrOutOfMemory
				return 0
			}
			return uint32(len(val))
		}).
		Export("read_state")

	b.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, keyPtr, keyLen, valPtr, valLen uint32) uint32 {
			if !v.checkBudget("write_state") {
				return 1
			}
			key, ok := readMemory(mod, keyPtr, keyLen)
			if !ok {
				v.aborted = ErrOutOfMemory
				return 1
			}
			val, ok := readMemory(mod, valPtr, valLen)
			if !ok {
				v.aborted = ErrOutOfMemory
				return 1
			}
			if err := v.store.WriteState(v.ctx, v.tenantID, v.execID, string(key), val); err != nil {
				v.aborted = err
				return 1
			}
			return 0
		}).
		Export("write_state")

	return b
}

// allowedImports is the set of (module, name) pairs a step action module
// is allowed to import; anything else trips ErrDisallowedImport.
var allowedImports = map[string]bool{
	"log": true, "now": true, "get_input": true,
	"emit_event": true, "read_state": true, "write_state": true,
}
