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

// Package node wires every component package into one runnable qflow node:
// the ledger, the step-graph engine, the dispatcher, the sandbox, the
// isolation layer, the validation pipeline, coordination, and transport,
// the way eth.Ethereum wires the chain, txpool, miner, and protocol manager
// behind a single Start/Stop lifecycle.
package node

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/qflow/qflow/common/mclock"
	"github.com/qflow/qflow/config"
	"github.com/qflow/qflow/internal/coordination"
	"github.com/qflow/qflow/internal/dispatcher"
	"github.com/qflow/qflow/internal/engine"
	"github.com/qflow/qflow/internal/isolation"
	"github.com/qflow/qflow/internal/ledger"
	"github.com/qflow/qflow/internal/nodearena"
	"github.com/qflow/qflow/internal/sandbox"
	"github.com/qflow/qflow/internal/storage"
	"github.com/qflow/qflow/internal/transport"
	"github.com/qflow/qflow/internal/validation"
	"github.com/qflow/qflow/metrics"
)

// execMeta is the tenant/subnet context SubmitFlow records for an
// execution, since neither the engine nor the dispatcher carry a subnet
// id — the narrow step-lease path only needs execID/stepID/node, but
// leaseAndRun needs the fuller context to charge quotas and bind sandbox
// state isolation.
type execMeta struct {
	tenantID string
	subnetID string
}

// Node is one qflow node: every component package wired together behind a
// single lifecycle. Exported so cmd/qflownode (and tests) can construct and
// drive one directly.
type Node struct {
	ID  string
	cfg config.Config

	clock mclock.Clock

	kv     storage.KV
	Ledger *ledger.Ledger

	Engine      *engine.Engine
	Arena       *nodearena.Arena
	Dispatcher  *dispatcher.Dispatcher
	Coordinator *coordination.Coordinator
	Transport   transport.PubSub

	store      *isolation.Store
	Accountant *isolation.Accountant
	Keys       *isolation.KeyStore
	perms      *subnetPermissions
	indexer    *memIndexer
	Validator  *validation.Pipeline

	SandboxHost *sandbox.Host
	Modules     *ModuleRegistry

	Metrics metrics.Registry

	mu       sync.Mutex
	execMeta map[string]execMeta

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Node from cfg but does not start its background loops —
// call Start for that. ctx bounds the sandbox host's startup only.
func New(ctx context.Context, cfg config.Config) (*Node, error) {
	clock := mclock.Clock(mclock.System{})

	var kv storage.KV
	if cfg.DataDir != "" {
		db, err := storage.OpenPebble(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("node: open data dir: %w", err)
		}
		kv = db
	} else {
		kv = storage.NewMemory()
	}

	reg := metrics.NewRegistry()
	l := ledger.New(kv)
	eng := engine.New(l)
	arena := nodearena.New(clock)
	coord := coordination.New(cfg.NodeID, clock, l, arena)
	accountant := isolation.NewAccountant(reg)
	store := isolation.NewStore(kv)
	keys := isolation.NewKeyStore()
	perms := newSubnetPermissions()
	indexer := newMemIndexer()

	sandboxCfg := sandbox.DefaultConfig()
	sandboxCfg.Timeout = cfg.SandboxDefaultTimeout()
	sandboxCfg.MaxMemoryPages = uint32(cfg.SandboxMemoryCeilingMB) * 16 // 64KiB pages per MiB
	host := sandbox.NewHost(ctx, sandboxCfg)

	disp := dispatcher.New(dispatcher.Config{
		Weights: dispatcher.Weights{
			CPU:   cfg.ScoringWeights.CPU,
			Mem:   cfg.ScoringWeights.Mem,
			Net:   cfg.ScoringWeights.Net,
			Lat:   cfg.ScoringWeights.Lat,
			Err:   cfg.ScoringWeights.Err,
			Cap:   cfg.ScoringWeights.Cap,
			Queue: cfg.ScoringWeights.Queue,
		},
		LeaseTTL:           cfg.LeaseTTL(),
		StalenessThreshold: cfg.HeartbeatInterval() * 3,
		AutoscaleWaitP95:   cfg.LeaseTTL() / 2,
		AutoscaleIdleFloor: cfg.HeartbeatInterval() * 4,
	}, clock, arena, eng, tenantAdmitter{accountant: accountant})

	verifier := validation.Ed25519Verifier{
		KeyFor: func(signer string) (ed25519.PublicKey, error) {
			b, err := keys.ResolveKey(context.Background(), "", signer)
			if err != nil {
				return nil, err
			}
			return ed25519.PublicKey(b), nil
		},
	}
	validator := validation.NewPipeline(keys, validation.AEADDecrypter{}, perms, indexer, verifier, validation.StaticSchemaValidator{}, 1024)

	return &Node{
		ID:          cfg.NodeID,
		cfg:         cfg,
		clock:       clock,
		kv:          kv,
		Ledger:      l,
		Engine:      eng,
		Arena:       arena,
		Dispatcher:  disp,
		Coordinator: coord,
		Transport:   transport.NewInProc(),
		store:       store,
		Accountant:  accountant,
		Keys:        keys,
		perms:       perms,
		indexer:     indexer,
		Validator:   validator,
		SandboxHost: host,
		Modules:     NewModuleRegistry(),
		Metrics:     reg,
		execMeta:    make(map[string]execMeta),
		stopCh:      make(chan struct{}),
	}, nil
}

// RegisterModule associates a flow step action name with the WASM module
// bytecode the sandbox should run for it.
func (n *Node) RegisterModule(action string, wasmBytes []byte) {
	n.Modules.Register(action, wasmBytes)
}

// ProvisionTenant configures tenantID's resource quota and registers its
// DAO subnet membership — a tenant cannot submit a flow, and no step can
// charge resources, until this has been called (§4.4).
func (n *Node) ProvisionTenant(tenantID, subnetID string, quota isolation.Quota) {
	n.Accountant.SetQuota(tenantID, quota)
	n.perms.RegisterSubnet(tenantID, subnetID)
}

// SubmitFlow validates the flow's admission payload (if non-empty),
// starts the execution, and enqueues every initially Ready step into the
// dispatcher, per §4.3's "flow admission" validation boundary feeding
// directly into §4.5's Start.
func (n *Node) SubmitFlow(ctx context.Context, execID, tenantID, subnetID string, flow engine.FlowDef, admission validation.Input) (*engine.Execution, error) {
	if len(admission.Plaintext) > 0 || admission.Sealed {
		admission.TenantID = tenantID
		admission.SubnetID = subnetID
		if _, err := n.Validator.Validate(ctx, admission); err != nil {
			return nil, fmt.Errorf("node: flow admission rejected: %w", err)
		}
	}

	ex, err := n.Engine.Start(execID, flow)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.execMeta[execID] = execMeta{tenantID: tenantID, subnetID: subnetID}
	n.mu.Unlock()

	n.enqueueReady(ex, tenantID)
	return ex, nil
}

func (n *Node) enqueueReady(ex *engine.Execution, tenantID string) {
	for _, id := range ex.ReadySteps() {
		n.Dispatcher.Enqueue(ex.ExecID, id, tenantID, dispatcher.PriorityNormal)
	}
}

// DispatchOnce leases exactly one Ready step to the best eligible node and
// runs it synchronously through the sandbox, returning the node id the
// step was leased to. It returns dispatcher.ErrNoEligibleNode when there is
// nothing admissible to run right now — a node's background loop (Start)
// calls this in a tight poll, same shape as the teacher's miner worker
// loop pulling from a task channel.
func (n *Node) DispatchOnce(ctx context.Context) (nodeID string, err error) {
	execID, stepID, nodeID, err := n.Dispatcher.Dispatch(nil)
	if err != nil {
		return "", err
	}
	if err := n.runStep(ctx, execID, stepID); err != nil {
		return nodeID, err
	}
	return nodeID, nil
}

func (n *Node) runStep(ctx context.Context, execID, stepID string) error {
	ex, ok := n.Engine.Execution(execID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExecution, execID)
	}
	n.mu.Lock()
	meta, ok := n.execMeta[execID]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExecution, execID)
	}

	if err := n.Accountant.Charge(meta.tenantID, isolation.ResourceConcurrentStep, 1); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	defer n.Accountant.Release(meta.tenantID, isolation.ResourceConcurrentStep, 1)

	if err := n.Engine.StepStarted(ex, stepID); err != nil {
		return err
	}

	def, ok := ex.StepDef(stepID)
	if !ok {
		return fmt.Errorf("node: step %s has no definition", stepID)
	}
	wasmBytes, err := n.Modules.Resolve(def.Action)
	if err != nil {
		_ = n.Engine.StepFailed(ex, stepID, false)
		return err
	}

	bound := n.store.Bind(meta.subnetID)
	result, err := n.SandboxHost.Invoke(ctx, def.Action, wasmBytes, meta.tenantID, execID, nil, bound, eventSink{ps: n.Transport})
	if err != nil {
		if ferr := n.Engine.StepFailed(ex, stepID, true); ferr != nil {
			return ferr
		}
		n.enqueueReady(ex, meta.tenantID)
		return nil
	}

	if err := n.Engine.StepCompleted(ex, stepID, string(result.Output)); err != nil {
		return err
	}
	n.enqueueReady(ex, meta.tenantID)
	return nil
}

// Start launches the node's background dispatch loop: it polls the
// dispatcher for an admissible step roughly every heartbeat interval,
// idling quietly (ErrNoEligibleNode is not an error condition) when there
// is nothing to do.
func (n *Node) Start(ctx context.Context) {
	n.wg.Add(1)
	go n.dispatchLoop(ctx)
}

func (n *Node) dispatchLoop(ctx context.Context) {
	defer n.wg.Done()
	interval := n.cfg.HeartbeatInterval() / 5
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				if _, err := n.DispatchOnce(ctx); err != nil {
					break
				}
			}
			n.Dispatcher.ReportMetrics(n.Metrics)
		}
	}
}

// Stop halts the background dispatch loop and closes the sandbox host and
// transport.
func (n *Node) Stop(ctx context.Context) error {
	close(n.stopCh)
	n.wg.Wait()
	if err := n.SandboxHost.Close(ctx); err != nil {
		return err
	}
	return n.Transport.Close()
}
