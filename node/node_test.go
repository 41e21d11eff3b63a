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
	"context"
	"encoding/hex"
	"testing"

	"github.com/qflow/qflow/config"
	"github.com/qflow/qflow/internal/engine"
	"github.com/qflow/qflow/internal/isolation"
	"github.com/qflow/qflow/internal/nodearena"
	"github.com/qflow/qflow/internal/validation"
)

// minimalRunModule is the same hand-assembled no-op WASM binary
// internal/sandbox's own tests use: a "run" export taking two i32s and
// returning a constant 0, no imports declared.
var minimalRunModule = mustHex(
	"0061736d01000000" +
		"01070160027f7f017f" +
		"03020100" +
		"0503010001" +
		"071002066d656d6f727902000372756e0000" +
		"0a0601040041000b",
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	cfg := config.Default()
	cfg.NodeID = "node-a"
	n, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { n.Stop(context.Background()) })
	return n
}

func TestSubmitFlowRunsLinearFlowToCompletion(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	n.RegisterModule("noop", minimalRunModule)
	n.ProvisionTenant("tenant-a", "subnet-a", isolation.Quota{ConcurrentSteps: 4})
	n.Arena.ReportSample("node-a", nodearena.Sample{Capabilities: map[string]bool{}})

	flow := engine.FlowDef{
		ID: "flow-1",
		Steps: []engine.StepDef{
			{ID: "step-1", Kind: engine.StepKindAction, Action: "noop"},
			{ID: "step-2", Kind: engine.StepKindAction, Action: "noop", DependsOn: []string{"step-1"}},
		},
	}

	ex, err := n.SubmitFlow(ctx, "exec-1", "tenant-a", "subnet-a", flow, validation.Input{})
	if err != nil {
		t.Fatalf("SubmitFlow: %v", err)
	}

	for i := 0; i < 10 && ex.State() != engine.ExecutionCompleted; i++ {
		if _, err := n.DispatchOnce(ctx); err != nil {
			continue
		}
	}

	if got := ex.State(); got != engine.ExecutionCompleted {
		t.Fatalf("execution state = %s, want Completed", got)
	}
}

func TestDispatchOnceFailsStepWithUnregisteredModule(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	n.ProvisionTenant("tenant-a", "subnet-a", isolation.Quota{ConcurrentSteps: 4})
	n.Arena.ReportSample("node-a", nodearena.Sample{Capabilities: map[string]bool{}})

	flow := engine.FlowDef{
		ID:    "flow-1",
		Steps: []engine.StepDef{{ID: "step-1", Kind: engine.StepKindAction, Action: "missing"}},
	}
	ex, err := n.SubmitFlow(ctx, "exec-1", "tenant-a", "subnet-a", flow, validation.Input{})
	if err != nil {
		t.Fatalf("SubmitFlow: %v", err)
	}

	if _, err := n.DispatchOnce(ctx); err == nil {
		t.Fatal("expected DispatchOnce to surface the missing-module error")
	}

	st, err := ex.StepState("step-1")
	if err != nil {
		t.Fatal(err)
	}
	if st != engine.StepFatalFailed {
		t.Fatalf("step-1 state = %v, want FatalFailed (retry=false, no retry policy configured)", st)
	}
}

func TestDispatchOnceReturnsErrNoEligibleNodeWhenNothingReady(t *testing.T) {
	n := newTestNode(t)
	if _, err := n.DispatchOnce(context.Background()); err == nil {
		t.Fatal("expected an error when the queue is empty")
	}
}
