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

import "time"

// StepKind distinguishes the handful of step shapes a flow graph can
// contain; loop and parallel steps synthesize ordinary action vertices
// into the graph rather than being a distinct runtime type.
type StepKind uint8

const (
	StepKindAction StepKind = iota
	StepKindParallel
	StepKindLoop
	StepKindOnFailure
)

// RetryPolicy bounds how many times a Failed step returns to Ready before
// it becomes FatalFailed, per §4.5/§7.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// StepDef is one node of a flow graph as authored: its dependencies, its
// action (for StepKindAction), its guard (for conditional and loop steps),
// and its retry policy.
type StepDef struct {
	ID       string
	Kind     StepKind
	DependsOn []string

	// Action names the sandboxed WASM module to invoke for StepKindAction
	// steps.
	Action string

	// Guard is a go-bexpr boolean expression evaluated against the
	// execution's shared state. For a conditional step it gates whether
	// the step (and its branch) runs at all; for StepKindLoop it is
	// re-evaluated before each iteration is unrolled.
	Guard string

	// LoopBody is not read by the engine: each iteration of a StepKindLoop
	// step is one synthesized action vertex "{ID}#{i}" that runs the loop
	// step's own Action and Retry policy and depends on iteration i-1 (or,
	// for i==0, on StepDef.DependsOn).
	LoopBody []StepDef

	// MaxIterations bounds loop unrolling (a design cap, per §4.5) when
	// positive; zero means DefaultLoopCeiling.
	MaxIterations int

	// OnFailure, if set, names a step to run as compensation when this
	// step reaches FatalFailed, modeled as any other step (§4.5).
	OnFailure string

	Retry RetryPolicy
}

// FlowDef is a complete flow graph as authored.
type FlowDef struct {
	ID    string
	Steps []StepDef
}

// DefaultLoopCeiling is the iteration cap applied when a StepKindLoop step
// does not declare MaxIterations, preventing runaway unrolling.
const DefaultLoopCeiling = 1000
