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

package engine

import "errors"

var (
	ErrUnknownExecution    = errors.New("engine: unknown execution")
	ErrUnknownStep         = errors.New("engine: unknown step id")
	ErrCycleDetected       = errors.New("engine: step graph contains a cycle")
	ErrNotRunning          = errors.New("engine: execution is not in a state that accepts this transition")
	ErrNotPaused           = errors.New("engine: execution is not paused")
	ErrLoopCeilingExceeded = errors.New("engine: loop unrolling hit its iteration ceiling")
	ErrFatalStepFailure    = errors.New("engine: step exhausted its retry policy")
	ErrTerminalExecution   = errors.New("engine: execution already reached a terminal state")
)
