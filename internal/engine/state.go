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

// ExecutionState is a flow execution's position in
// Pending → Running → {Paused ↔ Running} → {Completed | Failed | Aborted},
// per spec.md §4.5. Terminal states are absorbing.
type ExecutionState uint8

const (
	ExecutionPending ExecutionState = iota
	ExecutionRunning
	ExecutionPaused
	ExecutionCompleted
	ExecutionFailed
	ExecutionAborted
)

func (s ExecutionState) String() string {
	switch s {
	case ExecutionPending:
		return "Pending"
	case ExecutionRunning:
		return "Running"
	case ExecutionPaused:
		return "Paused"
	case ExecutionCompleted:
		return "Completed"
	case ExecutionFailed:
		return "Failed"
	case ExecutionAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is one of the absorbing execution states.
func (s ExecutionState) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionAborted
}

// StepState is one step's position in
// Blocked → Ready → Leased → Started → {Completed | Failed}; Failed → Ready
// (bounded retries) or → FatalFailed, per spec.md §4.5.
type StepState uint8

const (
	StepBlocked StepState = iota
	StepReady
	StepLeased
	StepStarted
	StepCompleted
	StepFailed
	StepFatalFailed
	StepSkipped
)

func (s StepState) String() string {
	switch s {
	case StepBlocked:
		return "Blocked"
	case StepReady:
		return "Ready"
	case StepLeased:
		return "Leased"
	case StepStarted:
		return "Started"
	case StepCompleted:
		return "Completed"
	case StepFailed:
		return "Failed"
	case StepFatalFailed:
		return "FatalFailed"
	case StepSkipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// satisfiesDependency reports whether s counts as "done" for a dependent
// step's Blocked → Ready transition. Skipped counts as terminal-success for
// dependency satisfaction per §4.5's conditional-step rule.
func (s StepState) satisfiesDependency() bool {
	return s == StepCompleted || s == StepSkipped
}
