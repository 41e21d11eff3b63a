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

import "time"

// Heartbeat records contact with execID's leader, resetting the
// partition clock. The leader itself calls this on every self-append (it
// is always in contact with itself); followers call it on receipt of a
// heartbeat or ledger delta from the leader over internal/transport.
func (c *Coordinator) Heartbeat(execID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateFor(execID).lastContact = c.clock.Now()
}

// Partitioned reports whether this node has not heard from execID's
// leader for at least threshold (§4.7 "Partition handling"). A node's own
// leadership of an execution is never partitioned from itself.
func (c *Coordinator) Partitioned(execID string, threshold time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateFor(execID)
	if st.role == RoleLeader {
		return false
	}
	return c.clock.Now().Sub(st.lastContact) >= threshold
}

// CanLease reports whether this node may issue new leases for execID
// right now: "a node that cannot reach the leader for partition_threshold
// ceases issuing new leases for that execution but continues running
// in-flight steps" (§4.7). The dispatcher is expected to consult this
// before granting any lease for steps belonging to execID.
func (c *Coordinator) CanLease(execID string, threshold time.Duration) bool {
	return !c.Partitioned(execID, threshold)
}
