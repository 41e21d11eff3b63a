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
	"sync"

	"github.com/qflow/qflow/internal/isolation"
	"github.com/qflow/qflow/internal/transport"
)

// tenantAdmitter adapts isolation.Accountant to dispatcher.TenantLimiter: a
// trial one-slot Charge against ResourceConcurrentStep fails exactly when
// the tenant is already at its configured concurrency ceiling, and a
// successful trial is released again at once — the actual charge happens
// once the step is leased, in Node.leaseAndRun.
type tenantAdmitter struct {
	accountant *isolation.Accountant
}

func (a tenantAdmitter) Admit(tenantID string) bool {
	if a.accountant.Charge(tenantID, isolation.ResourceConcurrentStep, 1) != nil {
		return false
	}
	a.accountant.Release(tenantID, isolation.ResourceConcurrentStep, 1)
	return true
}

// memIndexer is an in-process validation.Indexer: fingerprints seen this
// process's lifetime are suppressed as duplicates. A multi-node deployment
// would back this with shared storage; nothing in the retrieved example
// pack exercises a distributed dedup index, so this node-local map is the
// concrete implementation wired into Pipeline, same scope as the teacher's
// in-memory txpool dedup before a transaction is ever broadcast.
type memIndexer struct {
	mu   sync.Mutex
	seen map[string]string
}

func newMemIndexer() *memIndexer {
	return &memIndexer{seen: make(map[string]string)}
}

func (i *memIndexer) Index(ctx context.Context, tenantID, subnetID, fingerprint string) (bool, string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := tenantID + "/" + subnetID + "/" + fingerprint
	if ref, ok := i.seen[key]; ok {
		return true, ref, nil
	}
	i.seen[key] = fingerprint
	return false, "", nil
}

// subnetPermissions enforces §4.4's tenant/DAO-subnet membership check: an
// identity may act within a subnet only if the subnet was registered under
// that tenant. It does not model per-action/per-resource ACLs — a real
// deployment would delegate to the DAO subnet's own governance, which is
// out of scope (§1 "DAO governance, voting, and token-economic...are
// non-goals").
type subnetPermissions struct {
	mu      sync.RWMutex
	subnets map[string]map[string]bool // tenantID -> subnetID -> member
}

func newSubnetPermissions() *subnetPermissions {
	return &subnetPermissions{subnets: make(map[string]map[string]bool)}
}

func (p *subnetPermissions) RegisterSubnet(tenantID, subnetID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subnets[tenantID] == nil {
		p.subnets[tenantID] = make(map[string]bool)
	}
	p.subnets[tenantID][subnetID] = true
}

func (p *subnetPermissions) Allowed(ctx context.Context, tenantID, subnetID, identity, action, resource string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.subnets[tenantID][subnetID], nil
}

// eventSink publishes a step's emitted events onto the transport mesh under
// a per-execution topic, so other nodes (and any external subscriber
// bridged through transport.WS) observe them without the sandbox ABI
// knowing anything about transport.
type eventSink struct {
	ps transport.PubSub
}

func (s eventSink) EmitEvent(ctx context.Context, execID string, event []byte) error {
	return s.ps.Publish("events."+execID, event)
}
