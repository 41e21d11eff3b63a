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

import "errors"

// Sentinel errors matching §7's Coordination taxonomy.
var (
	ErrNotLeader         = errors.New("coordination: not the leader for this execution")
	ErrPartitionDetected = errors.New("coordination: partitioned from leader")
	ErrPeerUnreachable   = errors.New("coordination: peer unreachable")
	ErrNoQuorum          = errors.New("coordination: no peer has reported a ledger position")
)
