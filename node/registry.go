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

package node

import (
	"fmt"
	"sync"
)

// ModuleRegistry maps a flow step's Action name to the compiled WASM
// bytecode the sandbox should run for it. A flow's StepDef only carries the
// action name (§4.2); resolving that name to bytecode is a node-local
// concern, the same way the teacher's trie/rawdb split "what" a key means
// from "where" its bytes live.
type ModuleRegistry struct {
	mu      sync.RWMutex
	modules map[string][]byte
}

// NewModuleRegistry builds an empty registry.
func NewModuleRegistry() *ModuleRegistry {
	return &ModuleRegistry{modules: make(map[string][]byte)}
}

// Register associates action with wasmBytes, overwriting any prior module
// registered under that name.
func (r *ModuleRegistry) Register(action string, wasmBytes []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[action] = wasmBytes
}

// Resolve returns the bytecode registered for action.
func (r *ModuleRegistry) Resolve(action string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.modules[action]
	if !ok {
		return nil, fmt.Errorf("node: no module registered for action %q", action)
	}
	return b, nil
}
