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

import "errors"

// Sentinel errors for every invocation-abort path named in spec.md §4.2,
// the same way core/vm gives out-of-gas, stack, and invalid-opcode faults
// their own distinct error values rather than one generic "execution
// failed". Every abort returns one of these, never a panic.
var (
	ErrOutOfMemory        = errors.New("sandbox: module exceeded its memory cap")
	ErrOutOfFuel          = errors.New("sandbox: module exhausted its instruction budget")
	ErrTimeout            = errors.New("sandbox: invocation exceeded its wall-clock timeout")
	ErrHostCallBudget     = errors.New("sandbox: host call budget exceeded")
	ErrDisallowedImport   = errors.New("sandbox: module imports a host function outside the narrow ABI")
	ErrMissingEntryPoint  = errors.New("sandbox: module does not export run(payload_ptr, payload_len)")
	ErrTrap               = errors.New("sandbox: module trapped")
	ErrInvalidModule      = errors.New("sandbox: invalid WASM module")
)
