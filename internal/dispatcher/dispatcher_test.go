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

package dispatcher

import (
	"errors"
	"testing"

	"github.com/qflow/qflow/common/mclock"
	"github.com/qflow/qflow/internal/engine"
	"github.com/qflow/qflow/internal/ledger"
	"github.com/qflow/qflow/internal/nodearena"
	"github.com/qflow/qflow/internal/storage"
)

type allowAllLimiter struct{ denyTenant string }

func (l allowAllLimiter) Admit(tenantID string) bool { return tenantID != l.denyTenant }

func newTestDispatcher(t *testing.T, limiter TenantLimiter) (*Dispatcher, *engine.Engine, *nodearena.Arena, *mclock.Simulated) {
	t.Helper()
	clock := &mclock.Simulated{}
	arena := nodearena.New(clock)
	eng := engine.New(ledger.New(storage.NewMemory()))
	d := New(Config{}, clock, arena, eng, limiter)
	return d, eng, arena, clock
}

func TestDispatchPicksHighestScoringNode(t *testing.T) {
	d, eng, arena, _ := newTestDispatcher(t, nil)
	ex, err := eng.Start("exec-1", engine.FlowDef{ID: "f1", Steps: []engine.StepDef{{ID: "a"}}})
	if err != nil {
		t.Fatal(err)
	}

	arena.ReportSample("slow", nodearena.Sample{CPUPercent: 0.9, QueueDepth: 10})
	arena.ReportSample("fast", nodearena.Sample{CPUPercent: 0.1, QueueDepth: 0})

	d.Enqueue(ex.ExecID, "a", "tenant-1", PriorityNormal)

	_, stepID, nodeID, err := d.Dispatch(nil)
	if err != nil {
		t.Fatal(err)
	}
	if stepID != "a" || nodeID != "fast" {
		t.Fatalf("got step=%s node=%s, want a/fast", stepID, nodeID)
	}
	if st, _ := ex.StepState("a"); st != engine.StepLeased {
		t.Fatalf("state = %v, want Leased", st)
	}
}

func TestDispatchExcludesUnhealthyAndOfflineNodes(t *testing.T) {
	d, eng, arena, _ := newTestDispatcher(t, nil)
	ex, _ := eng.Start("exec-1", engine.FlowDef{ID: "f1", Steps: []engine.StepDef{{ID: "a"}}})

	arena.ReportSample("bad", nodearena.Sample{CPUPercent: 0.0})
	arena.Reclaim("bad")
	arena.ReportSample("good", nodearena.Sample{CPUPercent: 0.5})

	d.Enqueue(ex.ExecID, "a", "tenant-1", PriorityNormal)
	_, _, nodeID, err := d.Dispatch(nil)
	if err != nil {
		t.Fatal(err)
	}
	if nodeID != "good" {
		t.Fatalf("nodeID = %s, want good", nodeID)
	}
}

func TestDispatchExcludesNodesMissingCapability(t *testing.T) {
	d, eng, arena, _ := newTestDispatcher(t, nil)
	ex, _ := eng.Start("exec-1", engine.FlowDef{ID: "f1", Steps: []engine.StepDef{{ID: "a"}}})

	arena.ReportSample("plain", nodearena.Sample{CPUPercent: 0.1})
	arena.ReportSample("gpu", nodearena.Sample{CPUPercent: 0.8, Capabilities: map[string]bool{"gpu": true}})

	d.Enqueue(ex.ExecID, "a", "tenant-1", PriorityNormal)
	_, _, nodeID, err := d.Dispatch(requiredCapabilities{"gpu": true})
	if err != nil {
		t.Fatal(err)
	}
	if nodeID != "gpu" {
		t.Fatalf("nodeID = %s, want gpu (only capable node)", nodeID)
	}
}

func TestDispatchReturnsNoEligibleNodeWhenQueueEmpty(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, nil)
	_, _, _, err := d.Dispatch(nil)
	if !errors.Is(err, ErrNoEligibleNode) {
		t.Fatalf("err = %v, want ErrNoEligibleNode", err)
	}
}

func TestDispatchSkipsTenantAtCapWithoutStarvingOthers(t *testing.T) {
	d, eng, arena, _ := newTestDispatcher(t, allowAllLimiter{denyTenant: "capped"})
	exCapped, _ := eng.Start("exec-capped", engine.FlowDef{ID: "f1", Steps: []engine.StepDef{{ID: "a"}}})
	exOther, _ := eng.Start("exec-other", engine.FlowDef{ID: "f2", Steps: []engine.StepDef{{ID: "a"}}})

	arena.ReportSample("n1", nodearena.Sample{CPUPercent: 0.1})

	d.Enqueue(exCapped.ExecID, "a", "capped", PriorityCritical)
	d.Enqueue(exOther.ExecID, "a", "free", PriorityLow)

	_, stepID, _, err := d.Dispatch(nil)
	if err != nil {
		t.Fatal(err)
	}
	if stepID != "a" {
		t.Fatal("expected the free tenant's step to be dispatched")
	}
	if st, _ := exOther.StepState("a"); st != engine.StepLeased {
		t.Fatal("expected free tenant's step leased")
	}
	if st, _ := exCapped.StepState("a"); st != engine.StepReady {
		t.Fatal("expected capped tenant's step to remain Ready, untouched")
	}

	// The capped step must still be in the queue for a later pass once
	// its tenant has capacity again.
	d.mu.Lock()
	size := d.queue.size()
	d.mu.Unlock()
	if size != 1 {
		t.Fatalf("queue size = %d, want 1 (capped step requeued)", size)
	}
}

func TestDispatchTiesBreakByLowestNodeID(t *testing.T) {
	d, eng, arena, _ := newTestDispatcher(t, nil)
	ex, _ := eng.Start("exec-1", engine.FlowDef{ID: "f1", Steps: []engine.StepDef{{ID: "a"}}})

	arena.ReportSample("zzz", nodearena.Sample{CPUPercent: 0.2})
	arena.ReportSample("aaa", nodearena.Sample{CPUPercent: 0.2})

	d.Enqueue(ex.ExecID, "a", "tenant-1", PriorityNormal)
	_, _, nodeID, err := d.Dispatch(nil)
	if err != nil {
		t.Fatal(err)
	}
	if nodeID != "aaa" {
		t.Fatalf("nodeID = %s, want aaa (lowest id tiebreak)", nodeID)
	}
}
