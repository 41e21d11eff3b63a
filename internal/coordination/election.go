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

package coordination

// ReportPeerPosition records the seq a peer (or this node itself) has
// reached for execID, the raw input to leader election. Callers feed this
// from both locally observed ledger heads and remote gossip received over
// internal/transport.
func (c *Coordinator) ReportPeerPosition(execID, nodeID string, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateFor(execID)
	st.peers[nodeID] = peerPosition{seq: seq, lastSeen: c.clock.Now()}
}

// ElectLeader applies §4.7's deterministic re-election rule — "lowest
// node_id among the quorum that has seen the highest seq" — over every
// peer position reported for execID (this node's own position must be
// reported via ReportPeerPosition like any other peer), and advances the
// epoch. It returns the elected node_id.
func (c *Coordinator) ElectLeader(execID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateFor(execID)
	if len(st.peers) == 0 {
		return "", ErrNoQuorum
	}

	var maxSeq uint64
	for _, p := range st.peers {
		if p.seq > maxSeq {
			maxSeq = p.seq
		}
	}

	var winner string
	for id, p := range st.peers {
		if p.seq != maxSeq {
			continue
		}
		if winner == "" || id < winner {
			winner = id
		}
	}

	st.epoch++
	st.leaderID = winner
	if winner == c.nodeID {
		st.role = RoleLeader
	} else {
		st.role = RoleFollower
	}
	st.lastContact = c.clock.Now()
	return winner, nil
}

// Epoch returns execID's current leader epoch, which ElectLeader increments
// on every election. Gossiped ledger entries do not carry it, and Reconcile
// does not read it.
func (c *Coordinator) Epoch(execID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateFor(execID).epoch
}
