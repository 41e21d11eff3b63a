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

// Package coordination implements C7: keeping ledger heads and step
// statuses eventually consistent across nodes, leader election per
// execution, partition detection/recovery, and Byzantine-tolerant chain
// verification, per spec.md §4.7.
package coordination

import (
	"sync"

	"github.com/qflow/qflow/common/mclock"
	"github.com/qflow/qflow/internal/ledger"
	"github.com/qflow/qflow/internal/nodearena"
)

// Role is a node's standing with respect to one execution's ledger.
type Role uint8

const (
	RoleFollower Role = iota
	RoleLeader
)

// peerPosition is the last ledger position a peer has reported for one
// execution, the raw material leader election and quorum checks are
// computed from.
type peerPosition struct {
	seq      uint64
	lastSeen mclock.AbsTime
}

// execState is everything the coordinator tracks for one execution.
type execState struct {
	epoch       uint64
	leaderID    string
	role        Role
	lastContact mclock.AbsTime // last time this node heard from the leader
	peers       map[string]peerPosition
}

// Coordinator is the node-local C7 component: one instance per node,
// tracking leader/follower state for every execution it participates in.
type Coordinator struct {
	nodeID string
	clock  mclock.Clock
	ledger *ledger.Ledger
	arena  *nodearena.Arena

	mu    sync.Mutex
	execs map[string]*execState
}

// New builds a Coordinator for nodeID. arena is used to down-weight peers
// whose entries fail chain verification (§4.7 "Byzantine tolerance").
func New(nodeID string, clock mclock.Clock, l *ledger.Ledger, arena *nodearena.Arena) *Coordinator {
	if clock == nil {
		clock = mclock.System{}
	}
	return &Coordinator{
		nodeID: nodeID,
		clock:  clock,
		ledger: l,
		arena:  arena,
		execs:  make(map[string]*execState),
	}
}

func (c *Coordinator) stateFor(execID string) *execState {
	st, ok := c.execs[execID]
	if !ok {
		st = &execState{peers: make(map[string]peerPosition)}
		c.execs[execID] = st
	}
	return st
}

// AdmitAsLeader registers this node as execID's initial leader — "the
// admitter by default" (§4.7 "Model") — at epoch 0.
func (c *Coordinator) AdmitAsLeader(execID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateFor(execID)
	st.role = RoleLeader
	st.leaderID = c.nodeID
	st.lastContact = c.clock.Now()
}

// Role reports this node's current role for execID.
func (c *Coordinator) Role(execID string) Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateFor(execID).role
}

// LeaderID reports the node this coordinator currently believes leads
// execID.
func (c *Coordinator) LeaderID(execID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateFor(execID).leaderID
}

// RequireLeader returns ErrNotLeader unless this node is currently the
// leader for execID — the guard every ledger-appending operation must
// pass, since "only the leader appends to the ledger" (§4.7).
func (c *Coordinator) RequireLeader(execID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stateFor(execID).role != RoleLeader {
		return ErrNotLeader
	}
	return nil
}
