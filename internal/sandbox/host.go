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

// Package sandbox implements C2: loading and executing untrusted WASM step
// actions under the resource caps and narrow host ABI of spec.md §4.2.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
)

const wasmPageSize = 65536

// Config carries every resource cap enforced per invocation (§4.2), mirroring
// how core/vm.Config bundles the EVM's gas/memory/jump-table limits into one
// value threaded through every call rather than scattering global state.
type Config struct {
	// MaxMemoryPages bounds a module's linear memory; the node sets it from
	// sandbox_memory_ceiling_mb, with no per-tenant limit applied on top.
	MaxMemoryPages uint32

	// Timeout is the wall-clock ceiling for one invocation (default 5s,
	// ceiling 60s per §4.2); enforced both by context cancellation and by
	// a budget check on every host call.
	Timeout time.Duration

	// HostCallLimits caps invocations per host-call type; absent entries
	// are unlimited. Read by checkBudget in abi.go.
	HostCallLimits map[string]uint64

	// WorkerPoolSize bounds how many invocations run concurrently on this
	// host, the threadpool-sized worker pool SPEC_FULL.md §5 calls for.
	WorkerPoolSize int
}

// DefaultConfig returns a 5s timeout, 16 MiB of memory and a pool of 4.
// Config has no fuel or instruction budget: an invocation is bounded only
// by Timeout, MaxMemoryPages and HostCallLimits, and ErrOutOfFuel is never
// returned.
func DefaultConfig() Config {
	return Config{
		MaxMemoryPages: 256, // 16 MiB
		Timeout:        5 * time.Second,
		WorkerPoolSize: 4,
	}
}

// Host owns the wazero runtime, a compiled-module cache keyed by the
// caller-supplied module key, and the worker pool every Invoke call acquires a slot from.
type Host struct {
	cfg Config
	rt  wazero.Runtime

	mu      sync.Mutex
	modules map[string]wazero.CompiledModule

	sem       chan struct{}
	instances atomic.Uint64
}

// NewHost constructs a sandbox host bound to cfg. The runtime is pure-Go
// (tetratelabs/wazero's interpreter/compiler backend), so no CGo toolchain
// is required to embed WASM execution in the node.
func NewHost(ctx context.Context, cfg Config) *Host {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 1
	}
	rtCfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(cfg.MaxMemoryPages)
	return &Host{
		cfg:     cfg,
		rt:      wazero.NewRuntimeWithConfig(ctx, rtCfg),
		modules: make(map[string]wazero.CompiledModule),
		sem:     make(chan struct{}, cfg.WorkerPoolSize),
	}
}

// Close releases the runtime and every compiled module.
func (h *Host) Close(ctx context.Context) error {
	return h.rt.Close(ctx)
}

// Result is what one successful invocation produces.
type Result struct {
	Output     []byte
	HostCalls  map[string]uint64
	WallTime   time.Duration
}

// compile caches a module's compilation by a caller-supplied key (the
// action name or module content hash), since compiling is expensive and
// the same action module runs repeatedly across many steps.
func (h *Host) compile(ctx context.Context, key string, wasmBytes []byte) (wazero.CompiledModule, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cm, ok := h.modules[key]; ok {
		return cm, nil
	}
	cm, err := h.rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModule, err)
	}
	if err := checkImports(cm); err != nil {
		cm.Close(ctx)
		return nil, err
	}
	if _, ok := findRunExport(cm); !ok {
		cm.Close(ctx)
		return nil, ErrMissingEntryPoint
	}
	h.modules[key] = cm
	return cm, nil
}

func checkImports(cm wazero.CompiledModule) error {
	for _, fn := range cm.ImportedFunctions() {
		moduleName, name, isImport := fn.Import()
		if !isImport {
			continue
		}
		if moduleName != hostModuleName || !allowedImports[name] {
			return fmt.Errorf("%w: %s.%s", ErrDisallowedImport, moduleName, name)
		}
	}
	return nil
}

func findRunExport(cm wazero.CompiledModule) (string, bool) {
	for name := range cm.ExportedFunctions() {
		if name == "run" {
			return name, true
		}
	}
	return "", false
}

// Invoke instantiates moduleKey's compiled module fresh (sandbox state is
// destroyed after each invocation per §4.2) and calls its run(payload_ptr,
// payload_len) entry point with input, mediating all host imports through
// store/events under the given tenant/execution context.
func (h *Host) Invoke(ctx context.Context, moduleKey string, wasmBytes []byte, tenantID, execID string, input []byte, store StateStore, events EventSink) (Result, error) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	cm, err := h.compile(ctx, moduleKey, wasmBytes)
	if err != nil {
		return Result{}, err
	}

	timeout := h.cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	if timeout > 60*time.Second {
		timeout = 60 * time.Second
	}
	invokeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v := &invocation{
		ctx:        invokeCtx,
		tenantID:   tenantID,
		execID:     execID,
		input:      input,
		store:      store,
		events:     events,
		callCounts: make(map[string]uint64),
		callLimits: h.cfg.HostCallLimits,
		startedAt:  time.Now(),
		timeout:    timeout,
	}
	hostBuilder := buildHostModule(h.rt, v)
	hostMod, err := hostBuilder.Instantiate(invokeCtx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidModule, err)
	}
	defer hostMod.Close(invokeCtx)

	instanceName := fmt.Sprintf("%s#%d", moduleKey, h.instances.Add(1))
	modCfg := wazero.NewModuleConfig().WithName(instanceName)
	mod, err := h.rt.InstantiateModule(invokeCtx, cm, modCfg)
	if err != nil {
		return Result{}, classifyInstantiateErr(v, err)
	}
	defer mod.Close(invokeCtx)

	fn := mod.ExportedFunction("run")
	ptrLen := uint64(len(input))
	results, err := fn.Call(invokeCtx, 0, ptrLen)
	if v.aborted != nil {
		return Result{}, v.aborted
	}
	if err != nil {
		return Result{}, classifyInstantiateErr(v, err)
	}

	var output []byte
	if len(results) > 0 {
		resultPtr := uint32(results[0])
		// The module is expected to terminate its result with a NUL byte
		// or the caller-provided buffer size; without a declared length
		// export, read until memory bounds and let the caller trim.
		mem := mod.Memory()
		size := mem.Size()
		if resultPtr < size {
			raw, _ := mem.Read(resultPtr, size-resultPtr)
			output = raw
		}
	}

	return Result{
		Output:    output,
		HostCalls: v.callCounts,
		WallTime:  time.Since(v.startedAt),
	}, nil
}

func classifyInstantiateErr(v *invocation, err error) error {
	if v.aborted != nil {
		return v.aborted
	}
	if v.ctx.Err() == context.DeadlineExceeded {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrTrap, err)
}
