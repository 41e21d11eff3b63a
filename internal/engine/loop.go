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

import "fmt"

// loopIterInfo records which loop a synthesized iteration vertex belongs
// to, so completing it can decide whether to unroll the next iteration or
// connect to the loop's fan-in vertex.
type loopIterInfo struct {
	loopID  string
	index   int
	origDef StepDef
}

func loopIterID(loopID string, i int) string { return fmt.Sprintf("%s#%d", loopID, i) }
func loopFanInID(loopID string) string       { return loopID + "#done" }

// unrollNext is called once completedID (a loop iteration vertex) reaches
// Completed. It re-evaluates the loop guard against the execution's shared
// state and either synthesizes the next iteration vertex or, once the
// guard is false or the iteration ceiling is hit, wires completedID as the
// fan-in's dependency so the loop's dependents become eligible.
func (e *Engine) unrollNext(ex *Execution, completedID string, info loopIterInfo) error {
	ceiling := info.origDef.MaxIterations
	if ceiling <= 0 {
		ceiling = DefaultLoopCeiling
	}

	ex.mu.Lock()
	cont, err := evalGuard(info.origDef.Guard, ex.sharedState)
	ex.mu.Unlock()
	if err != nil {
		return err
	}

	if cont && info.index+1 < ceiling {
		nextID := loopIterID(info.loopID, info.index+1)
		ex.mu.Lock()
		if err := ex.addStep(StepDef{ID: nextID, Kind: StepKindAction, Action: info.origDef.Action, Retry: info.origDef.Retry}); err != nil {
			ex.mu.Unlock()
			return err
		}
		if err := ex.graph.AddDependency(nextID, completedID); err != nil {
			ex.mu.Unlock()
			return err
		}
		ex.stepState[nextID] = StepBlocked
		ex.loopIter[nextID] = loopIterInfo{loopID: info.loopID, index: info.index + 1, origDef: info.origDef}
		ex.mu.Unlock()
		return nil
	}

	// Either the guard went false or the iteration ceiling (ErrLoopCeilingExceeded's
	// condition, a design cap per §4.5) was reached: either way unrolling halts
	// here and the loop connects to its fan-in exactly as a normal loop exit.
	fanIn := ex.loopFanIn[info.loopID]
	ex.mu.Lock()
	err = ex.graph.AddDependency(fanIn, completedID)
	ex.mu.Unlock()
	return err
}
