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

// Package engine implements C5: interpreting a flow graph and driving it to
// a terminal state, per spec.md §4.5.
package engine

import (
	"fmt"
	"sync"

	"github.com/qflow/qflow/internal/ledger"
)

// Execution is one flow's live run: its graph, every step's current state,
// and the shared state guard expressions are evaluated against.
type Execution struct {
	mu sync.Mutex

	ExecID string
	Flow   FlowDef

	graph *Graph
	defs  map[string]StepDef

	stepState map[string]StepState
	attempts  map[string]int

	// loopIter maps a synthesized loop-iteration step id to the loop it
	// belongs to, so StepCompleted can decide whether to unroll another
	// iteration or connect to the loop's fan-in. synthetic marks steps
	// (currently just fan-ins) that have no action and auto-complete the
	// moment their dependencies are satisfied.
	loopIter  map[string]loopIterInfo
	loopFanIn map[string]string // original loop step id -> fan-in step id
	synthetic map[string]bool

	state       ExecutionState
	sharedState map[string]string

	// DryRun is not read by the engine or by any other package: every
	// transition is appended to the ledger whether or not it is set, and
	// it does not keep steps from being leased or run in the sandbox.
	DryRun bool
}

// Engine drives zero or more Executions, appending every transition to a
// per-execution ledger for tamper-evident audit (§3/§4.1).
type Engine struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
	execs  map[string]*Execution
}

// New builds an Engine whose transitions are appended to l.
func New(l *ledger.Ledger) *Engine {
	return &Engine{ledger: l, execs: make(map[string]*Execution)}
}

// Start builds flow's graph, appends FlowStarted, and computes the initial
// Ready set (every root step whose guard, if any, evaluates true).
func (e *Engine) Start(execID string, flow FlowDef) (*Execution, error) {
	ex := &Execution{
		ExecID:      execID,
		Flow:        flow,
		graph:       NewGraph(),
		defs:        make(map[string]StepDef),
		stepState:   make(map[string]StepState),
		attempts:    make(map[string]int),
		loopIter:    make(map[string]loopIterInfo),
		loopFanIn:   make(map[string]string),
		synthetic:   make(map[string]bool),
		state:       ExecutionRunning,
		sharedState: make(map[string]string),
	}

	// graphID names the graph vertex a given authored step id resolves to
	// (a loop's own id resolves to its iteration-0 vertex); depTarget names
	// the vertex a *dependent* of that authored id should depend on instead
	// (a loop's dependents wait on its fan-in, not on any one iteration).
	graphID := make(map[string]string)
	depTarget := make(map[string]string)

	for _, s := range flow.Steps {
		if s.Kind == StepKindLoop {
			iter0 := loopIterID(s.ID, 0)
			fanIn := loopFanInID(s.ID)
			if err := ex.addStep(StepDef{ID: iter0, Kind: StepKindAction, Action: s.Action, Retry: s.Retry}); err != nil {
				return nil, err
			}
			if err := ex.addStep(StepDef{ID: fanIn, Kind: StepKindAction}); err != nil {
				return nil, err
			}
			ex.synthetic[fanIn] = true
			ex.loopFanIn[s.ID] = fanIn
			ex.loopIter[iter0] = loopIterInfo{loopID: s.ID, index: 0, origDef: s}
			graphID[s.ID] = iter0
			depTarget[s.ID] = fanIn
			continue
		}
		if err := ex.addStep(s); err != nil {
			return nil, err
		}
		graphID[s.ID] = s.ID
		depTarget[s.ID] = s.ID
	}
	for _, s := range flow.Steps {
		for _, dep := range s.DependsOn {
			if err := ex.graph.AddDependency(graphID[s.ID], depTarget[dep]); err != nil {
				return nil, err
			}
		}
	}
	for _, id := range ex.graph.StepIDs() {
		ex.stepState[id] = StepBlocked
	}

	if _, err := e.append(execID, ledger.KindFlowStarted, nil); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.execs[execID] = ex
	e.mu.Unlock()

	if err := e.recomputeReady(ex); err != nil {
		return nil, err
	}
	return ex, nil
}

func (ex *Execution) addStep(s StepDef) error {
	if err := ex.graph.AddStep(s.ID); err != nil {
		return err
	}
	ex.defs[s.ID] = s
	return nil
}

// Execution returns the live Execution for execID, if any.
func (e *Engine) Execution(execID string) (*Execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.execs[execID]
	return ex, ok
}

func (e *Engine) append(execID string, kind ledger.Kind, payload []byte) (uint64, error) {
	seq, _, err := e.ledger.Append(execID, kind, payload)
	return seq, err
}

// recomputeReady walks every Blocked step and promotes it to Ready (or
// Skipped, for an untaken conditional branch) once every dependency
// satisfies §4.5's Blocked→Ready rule, appending StepReady for each
// promotion.
func (e *Engine) recomputeReady(ex *Execution) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	for changed := true; changed; {
		changed = false
		for _, id := range ex.graph.StepIDs() {
			if ex.stepState[id] != StepBlocked {
				continue
			}
			parents, err := ex.graph.Parents(id)
			if err != nil {
				return err
			}
			// A loop's fan-in gets its only dependency when the loop exits
			// (unrollNext); until then it has none and stays Blocked.
			if ex.synthetic[id] && len(parents) == 0 {
				continue
			}
			ready := true
			for _, p := range parents {
				if !ex.stepState[p].satisfiesDependency() {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}

			def := ex.defs[id]
			take, err := evalGuard(def.Guard, ex.sharedState)
			if err != nil {
				return err
			}
			if !take {
				ex.stepState[id] = StepSkipped
				changed = true
				continue
			}

			// Synthetic steps (loop fan-ins) carry no action: they
			// complete the instant their dependencies are satisfied
			// rather than waiting on a Dispatcher lease.
			if ex.synthetic[id] {
				ex.stepState[id] = StepCompleted
				if _, err := e.append(ex.ExecID, ledger.KindStepCompleted, []byte(id)); err != nil {
					return err
				}
				changed = true
				continue
			}

			ex.stepState[id] = StepReady
			if _, err := e.append(ex.ExecID, ledger.KindStepReady, []byte(id)); err != nil {
				return err
			}
			changed = true
		}
	}
	return nil
}

// ReadySteps returns every step currently in StepReady, the set the
// Dispatcher (C6) is eligible to lease.
func (ex *Execution) ReadySteps() []string {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	var ids []string
	for id, st := range ex.stepState {
		if st == StepReady {
			ids = append(ids, id)
		}
	}
	return ids
}

// StepDef returns id's step definition as resolved into the execution's
// graph (a loop's synthesized iteration steps carry the loop's original
// Action and Retry policy, per Start's unrolling).
func (ex *Execution) StepDef(id string) (StepDef, bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	d, ok := ex.defs[id]
	return d, ok
}

// State returns the execution's current ExecutionState.
func (ex *Execution) State() ExecutionState {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.state
}

// StepState returns id's current StepState.
func (ex *Execution) StepState(id string) (StepState, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	st, ok := ex.stepState[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStep, id)
	}
	return st, nil
}

// Lease transitions id from Ready to Leased, per §4.5's "Ready → Leased
// when the Dispatcher grants a lease".
func (e *Engine) Lease(ex *Execution, id string) error {
	ex.mu.Lock()
	if ex.stepState[id] != StepReady {
		ex.mu.Unlock()
		return fmt.Errorf("%w: step %s is not Ready", ErrNotRunning, id)
	}
	ex.stepState[id] = StepLeased
	ex.mu.Unlock()
	_, err := e.append(ex.ExecID, ledger.KindStepLeased, []byte(id))
	return err
}

// StepStarted transitions id from Leased to Started on receipt of the
// assigned node's StepStarted signal.
func (e *Engine) StepStarted(ex *Execution, id string) error {
	ex.mu.Lock()
	if ex.stepState[id] != StepLeased {
		ex.mu.Unlock()
		return fmt.Errorf("%w: step %s is not Leased", ErrNotRunning, id)
	}
	ex.stepState[id] = StepStarted
	ex.mu.Unlock()
	_, err := e.append(ex.ExecID, ledger.KindStepStarted, []byte(id))
	return err
}

// StepCompleted transitions id to Completed, merges result into the
// execution's shared state (keyed "{id}_result"), recomputes readiness for
// its dependents, and — if this was the flow's last outstanding step —
// completes the flow.
func (e *Engine) StepCompleted(ex *Execution, id string, result string) error {
	ex.mu.Lock()
	if ex.stepState[id] != StepStarted {
		ex.mu.Unlock()
		return fmt.Errorf("%w: step %s is not Started", ErrNotRunning, id)
	}
	ex.stepState[id] = StepCompleted
	// Flat, dot-free key: go-bexpr's default evaluator treats a selector's
	// dots as a nested-path split, so a flat map[string]string datum keeps
	// every guard a single-level key match rather than courting selector
	// ambiguity between "a literal key containing a dot" and "a nested
	// a -> result path".
	ex.sharedState[id+"_result"] = result
	info, isLoopIter := ex.loopIter[id]
	ex.mu.Unlock()

	if _, err := e.append(ex.ExecID, ledger.KindStepCompleted, []byte(id)); err != nil {
		return err
	}

	if isLoopIter {
		if err := e.unrollNext(ex, id, info); err != nil {
			return err
		}
	}

	if err := e.recomputeReady(ex); err != nil {
		return err
	}
	return e.maybeFinish(ex)
}

// StepFailed transitions id to Failed and, per the retry policy, either
// returns it to Ready (with attempt count preserved) or promotes it to
// FatalFailed, which propagates to Flow.Failed unless the step declares an
// on_failure compensation step.
func (e *Engine) StepFailed(ex *Execution, id string, retryable bool) error {
	ex.mu.Lock()
	if ex.stepState[id] != StepStarted && ex.stepState[id] != StepLeased {
		ex.mu.Unlock()
		return fmt.Errorf("%w: step %s is not outstanding", ErrNotRunning, id)
	}
	def := ex.defs[id]
	ex.attempts[id]++
	attempt := ex.attempts[id]
	ex.stepState[id] = StepFailed
	ex.mu.Unlock()

	if _, err := e.append(ex.ExecID, ledger.KindStepFailed, []byte(id)); err != nil {
		return err
	}

	if retryable && attempt < def.Retry.maxAttempts() {
		ex.mu.Lock()
		ex.stepState[id] = StepReady
		ex.mu.Unlock()
		if _, err := e.append(ex.ExecID, ledger.KindStepRetried, []byte(id)); err != nil {
			return err
		}
		return nil
	}

	ex.mu.Lock()
	ex.stepState[id] = StepFatalFailed
	ex.mu.Unlock()

	if def.OnFailure != "" {
		ex.mu.Lock()
		compErr := ex.addStep(StepDef{ID: def.OnFailure, Kind: StepKindOnFailure})
		if compErr == nil {
			ex.stepState[def.OnFailure] = StepReady
		}
		ex.mu.Unlock()
		if compErr == nil {
			if _, err := e.append(ex.ExecID, ledger.KindStepReady, []byte(def.OnFailure)); err != nil {
				return err
			}
		}
		return nil
	}

	return e.fail(ex, fmt.Errorf("%w: %s", ErrFatalStepFailure, id))
}

// FailoverLease returns a Leased or Started step to Ready after a missed
// heartbeat, preserving attempt count, per §4.5's lease-expiry rule.
func (e *Engine) FailoverLease(ex *Execution, id string) error {
	ex.mu.Lock()
	if ex.stepState[id] != StepLeased && ex.stepState[id] != StepStarted {
		ex.mu.Unlock()
		return fmt.Errorf("%w: step %s has no outstanding lease", ErrNotRunning, id)
	}
	ex.stepState[id] = StepReady
	ex.mu.Unlock()
	_, err := e.append(ex.ExecID, ledger.KindNodeFailoverOccurred, []byte(id))
	return err
}

func (e *Engine) maybeFinish(ex *Execution) error {
	ex.mu.Lock()
	done := true
	for _, st := range ex.stepState {
		if st != StepCompleted && st != StepSkipped && st != StepFatalFailed {
			done = false
			break
		}
	}
	already := ex.state.Terminal()
	ex.mu.Unlock()
	if !done || already {
		return nil
	}
	return e.complete(ex)
}

func (e *Engine) complete(ex *Execution) error {
	ex.mu.Lock()
	ex.state = ExecutionCompleted
	ex.mu.Unlock()
	_, err := e.append(ex.ExecID, ledger.KindFlowCompleted, nil)
	return err
}

func (e *Engine) fail(ex *Execution, cause error) error {
	ex.mu.Lock()
	ex.state = ExecutionFailed
	ex.mu.Unlock()
	if _, err := e.append(ex.ExecID, ledger.KindFlowFailed, []byte(cause.Error())); err != nil {
		return err
	}
	return cause
}

// Pause writes FlowPaused; the Dispatcher grants no new lease to a step of
// an execution that is not Running, and in-flight steps are left to finish
// and commit normally (§4.5).
func (e *Engine) Pause(ex *Execution) error {
	ex.mu.Lock()
	if ex.state != ExecutionRunning {
		ex.mu.Unlock()
		return fmt.Errorf("%w", ErrNotRunning)
	}
	ex.state = ExecutionPaused
	ex.mu.Unlock()
	_, err := e.append(ex.ExecID, ledger.KindFlowPaused, nil)
	return err
}

// Resume writes FlowResumed and re-enables leasing.
func (e *Engine) Resume(ex *Execution) error {
	ex.mu.Lock()
	if ex.state != ExecutionPaused {
		ex.mu.Unlock()
		return fmt.Errorf("%w", ErrNotPaused)
	}
	ex.state = ExecutionRunning
	ex.mu.Unlock()
	_, err := e.append(ex.ExecID, ledger.KindFlowResumed, nil)
	return err
}

// Abort marks the execution Aborted and writes FlowAborted. It does not
// cancel outstanding leases: steps that are Leased or Started keep that
// state, and only new leases stop, since the Dispatcher skips a step whose
// execution is not Running.
func (e *Engine) Abort(ex *Execution) error {
	ex.mu.Lock()
	if ex.state.Terminal() {
		ex.mu.Unlock()
		return fmt.Errorf("%w", ErrTerminalExecution)
	}
	ex.state = ExecutionAborted
	ex.mu.Unlock()
	_, err := e.append(ex.ExecID, ledger.KindFlowAborted, nil)
	return err
}
